// Package isosurface turns one label of a dense label grid into a closed
// triangle mesh with marching cubes.
package isosurface

import (
	"errors"
	"fmt"

	"github.com/deadsy/sdfx/render"
	"gonum.org/v1/gonum/spatial/r3"

	"labelmesh/internal/models"
	"labelmesh/pkg/logging"
	"labelmesh/pkg/mesh"
)

const (
	// MaxSpacingRatio is the z/x voxel size ratio above which marching cubes
	// is refused.
	MaxSpacingRatio = 15000.0

	// SuspiciousSpacingRatio is the z/x ratio above which extraction still
	// runs but is reported.
	SuspiciousSpacingRatio = 1000.0
)

// ErrDegenerateSpacing is returned when the voxel anisotropy is too extreme
// for marching cubes.
var ErrDegenerateSpacing = errors.New("voxel spacing ratio too large for marching cubes")

// Extractor runs marching cubes on label grids with a fixed voxel spacing.
type Extractor struct {
	Spacing models.Spacing
}

// NewExtractor returns an Extractor for the given spacing.
func NewExtractor(spacing models.Spacing) *Extractor {
	return &Extractor{Spacing: spacing}
}

// Ratio returns the z/x voxel size ratio.
func (e *Extractor) Ratio() float64 {
	return e.Spacing.Z / e.Spacing.X
}

// Suspicious reports whether the spacing ratio is high enough to distrust
// the output.
func (e *Extractor) Suspicious() bool {
	return e.Ratio() > SuspiciousSpacingRatio
}

// Check returns ErrDegenerateSpacing when extraction must be refused.
func (e *Extractor) Check() error {
	if err := e.Spacing.Validate(); err != nil {
		return err
	}
	if r := e.Ratio(); r > MaxSpacingRatio {
		return fmt.Errorf("%w: z/x = %g", ErrDegenerateSpacing, r)
	}
	return nil
}

// Extract binarizes g against label and returns the isosurface in grid
// coordinates scaled by the voxel spacing. A label absent from g gives an
// empty mesh and no error.
func (e *Extractor) Extract(g *models.Grid, label uint64) (m *mesh.Mesh, err error) {
	if err := e.Check(); err != nil {
		logging.Warningf("Refusing marching cubes for label %d: %v", label, err)
		return &mesh.Mesh{}, err
	}
	if e.Suspicious() {
		logging.Warningf("Label %d: voxel spacing ratio %.0f is suspicious, output may be degenerate",
			label, e.Ratio())
	}

	field := newBinaryField(g, label)
	if field.count == 0 {
		return &mesh.Mesh{}, nil
	}

	defer func() {
		if r := recover(); r != nil {
			m, err = &mesh.Mesh{}, fmt.Errorf("marching cubes failed for label %d: %v", label, r)
		}
	}()

	renderer := render.NewMarchingCubesUniform(field.cells())
	triangles := render.ToTriangles(field, renderer)

	m = weld(triangles)
	if m.Empty() {
		return &mesh.Mesh{}, nil
	}
	m.Normals = field.normals(m.Vertices)
	orient(m)
	fillNormals(m)

	spacing := r3.Vec{X: e.Spacing.X, Y: e.Spacing.Y, Z: e.Spacing.Z}
	return m.Scale(spacing), nil
}

// orient flips every face when the winding disagrees with the field normals.
func orient(m *mesh.Mesh) {
	var agree float64
	for f, t := range m.Faces {
		n := m.FaceNormal(f)
		for _, v := range t {
			agree += r3.Dot(n, m.Normals[v])
		}
	}
	if agree >= 0 {
		return
	}
	for i, t := range m.Faces {
		m.Faces[i] = [3]int{t[0], t[2], t[1]}
	}
}
