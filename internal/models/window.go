package models

import "sort"

// VoxelWindow is a read-only view over one channel of a LabelVolume,
// sub-sampled by a Downsample stride. It never copies the parent data and is
// safe for concurrent readers.
type VoxelWindow struct {
	vol     *LabelVolume
	channel int
	ds      Downsample
	dims    [3]int
}

// Dims returns the sub-sampled shape.
func (w *VoxelWindow) Dims() [3]int { return w.dims }

// Channel returns the channel this window reads.
func (w *VoxelWindow) Channel() int { return w.channel }

// Downsample returns the stride used by the window.
func (w *VoxelWindow) Downsample() Downsample { return w.ds }

// Background returns the background label of the parent volume.
func (w *VoxelWindow) Background() uint64 { return w.vol.Background }

// At returns the label at sub-sampled coordinate (x, y, z).
func (w *VoxelWindow) At(x, y, z int) uint64 {
	return w.vol.At(x*w.ds.XY, y*w.ds.XY, z*w.ds.Z, w.channel)
}

// Labels returns the distinct non-background labels visible through the
// window, ascending.
func (w *VoxelWindow) Labels() []uint64 {
	seen := make(map[uint64]struct{})
	bg := w.vol.Background
	var last uint64 = bg
	for z := 0; z < w.dims[2]; z++ {
		for y := 0; y < w.dims[1]; y++ {
			for x := 0; x < w.dims[0]; x++ {
				l := w.At(x, y, z)
				if l == bg || l == last {
					continue
				}
				last = l
				seen[l] = struct{}{}
			}
		}
	}
	labels := make([]uint64, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// ToWindowBox converts a full-resolution box into window coordinates,
// rounding outward and clamping to the window.
func (w *VoxelWindow) ToWindowBox(b BoundingBox) BoundingBox {
	f := [3]int{w.ds.XY, w.ds.XY, w.ds.Z}
	var out BoundingBox
	for i := 0; i < 3; i++ {
		out.Min[i] = b.Min[i] / f[i]
		out.Max[i] = ceilDiv(b.Max[i], f[i])
	}
	return out.Clamp(w.dims)
}

// Copy returns a dense copy of box surrounded by pad voxels of background on
// every side, so a surface extracted from it is closed at the box boundary.
func (w *VoxelWindow) Copy(box BoundingBox, pad int) *Grid {
	box = box.Clamp(w.dims)
	size := box.Size()
	g := &Grid{
		Dims:       [3]int{size[0] + 2*pad, size[1] + 2*pad, size[2] + 2*pad},
		Origin:     [3]int{box.Min[0] - pad, box.Min[1] - pad, box.Min[2] - pad},
		Background: w.vol.Background,
	}
	g.Data = make([]uint64, g.Dims[0]*g.Dims[1]*g.Dims[2])
	if g.Background != 0 {
		for i := range g.Data {
			g.Data[i] = g.Background
		}
	}
	for z := 0; z < size[2]; z++ {
		for y := 0; y < size[1]; y++ {
			row := ((z+pad)*g.Dims[1] + y + pad) * g.Dims[0]
			for x := 0; x < size[0]; x++ {
				g.Data[row+x+pad] = w.At(box.Min[0]+x, box.Min[1]+y, box.Min[2]+z)
			}
		}
	}
	return g
}

// Grid is a dense x-fastest copy of part of a window.
type Grid struct {
	Data []uint64
	Dims [3]int

	// Origin is the window coordinate of Data[0]; negative when padded at the
	// window edge.
	Origin [3]int

	Background uint64
}

// At returns the label at grid coordinate (x, y, z), or background outside.
func (g *Grid) At(x, y, z int) uint64 {
	if x < 0 || y < 0 || z < 0 || x >= g.Dims[0] || y >= g.Dims[1] || z >= g.Dims[2] {
		return g.Background
	}
	return g.Data[(z*g.Dims[1]+y)*g.Dims[0]+x]
}

// Count returns how many voxels of the grid hold label.
func (g *Grid) Count(label uint64) int {
	n := 0
	for _, v := range g.Data {
		if v == label {
			n++
		}
	}
	return n
}
