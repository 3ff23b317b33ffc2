// Package visualization renders label slices for checking an input volume
// before and after meshing.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"labelmesh/internal/models"
)

// Viewer extracts coloured slices from a label window.
type Viewer struct {
	win *models.VoxelWindow

	// only, when non-nil, limits colouring to these labels
	only models.LabelSet
}

// NewViewer creates a viewer over win.
func NewViewer(win *models.VoxelWindow) *Viewer {
	return &Viewer{win: win}
}

// Highlight restricts colouring to labels; other voxels are drawn as
// background. A nil set colours everything.
func (v *Viewer) Highlight(labels models.LabelSet) {
	v.only = labels
}

// LabelColor returns the preview colour of label. Background is black and
// neighbouring label values get well separated hues.
func LabelColor(label, background uint64) color.RGBA {
	if label == background {
		return color.RGBA{A: 255}
	}
	const golden = 0.618033988749895
	h := math.Mod(float64(label)*golden, 1) * 6
	s, val := 0.65, 0.95
	c := val * s
	x := c * (1 - math.Abs(math.Mod(h, 2)-1))
	var r, g, b float64
	switch int(h) {
	case 0:
		r, g = c, x
	case 1:
		r, g = x, c
	case 2:
		g, b = c, x
	case 3:
		g, b = x, c
	case 4:
		r, b = x, c
	default:
		r, b = c, x
	}
	m := val - c
	return color.RGBA{
		R: uint8(math.Round((r + m) * 255)),
		G: uint8(math.Round((g + m) * 255)),
		B: uint8(math.Round((b + m) * 255)),
		A: 255,
	}
}

func (v *Viewer) color(label uint64) color.RGBA {
	bg := v.win.Background()
	if v.only != nil && !v.only.Contains(label) {
		label = bg
	}
	return LabelColor(label, bg)
}

// ExtractSlice extracts a 2D slice from the window along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (*image.RGBA, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	dims := v.win.Dims()

	var img *image.RGBA
	switch axis {
	case "x", "X":
		if position >= dims[0] {
			return nil, fmt.Errorf("position %d exceeds width %d", position, dims[0])
		}
		img = image.NewRGBA(image.Rect(0, 0, dims[2], dims[1]))
		for y := 0; y < dims[1]; y++ {
			for z := 0; z < dims[2]; z++ {
				img.SetRGBA(z, y, v.color(v.win.At(position, y, z)))
			}
		}

	case "y", "Y":
		if position >= dims[1] {
			return nil, fmt.Errorf("position %d exceeds height %d", position, dims[1])
		}
		img = image.NewRGBA(image.Rect(0, 0, dims[0], dims[2]))
		for z := 0; z < dims[2]; z++ {
			for x := 0; x < dims[0]; x++ {
				img.SetRGBA(x, z, v.color(v.win.At(x, position, z)))
			}
		}

	case "z", "Z":
		if position >= dims[2] {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, dims[2])
		}
		img = image.NewRGBA(image.Rect(0, 0, dims[0], dims[1]))
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				img.SetRGBA(x, y, v.color(v.win.At(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
	return img, nil
}

// SaveSlice saves an extracted slice as a PNG image
func SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence saves every step-th slice along axis into outputDir and
// returns the written paths.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string, step int) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	if step < 1 {
		step = 1
	}

	dims := v.win.Dims()
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = dims[0]
	case "y", "Y":
		maxPos = dims[1]
	case "z", "Z":
		maxPos = dims[2]
	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	var paths []string
	for pos := 0; pos < maxPos; pos += step {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return paths, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := SaveSlice(img, filename); err != nil {
			return paths, err
		}
		paths = append(paths, filename)
	}
	return paths, nil
}
