package models

import "fmt"

// BoundingBox is an axis-aligned voxel box with exclusive upper bounds.
type BoundingBox struct {
	Min [3]int
	Max [3]int
}

// BoundingBoxes maps a label to the box holding all its voxels, in
// full-resolution voxel coordinates (the region-properties convention).
type BoundingBoxes map[uint64]BoundingBox

// BoxFromArray builds a box from the six-integer form [x0,y0,z0,x1,y1,z1].
func BoxFromArray(a [6]int) BoundingBox {
	return BoundingBox{
		Min: [3]int{a[0], a[1], a[2]},
		Max: [3]int{a[3], a[4], a[5]},
	}
}

// Array returns the six-integer form [x0,y0,z0,x1,y1,z1].
func (b BoundingBox) Array() [6]int {
	return [6]int{b.Min[0], b.Min[1], b.Min[2], b.Max[0], b.Max[1], b.Max[2]}
}

// Empty reports whether the box holds no voxel.
func (b BoundingBox) Empty() bool {
	return b.Max[0] <= b.Min[0] || b.Max[1] <= b.Min[1] || b.Max[2] <= b.Min[2]
}

// Size returns the extent along each axis.
func (b BoundingBox) Size() [3]int {
	var s [3]int
	for i := range s {
		if b.Max[i] > b.Min[i] {
			s[i] = b.Max[i] - b.Min[i]
		}
	}
	return s
}

// Contains reports whether voxel (x, y, z) is inside the box.
func (b BoundingBox) Contains(x, y, z int) bool {
	return x >= b.Min[0] && x < b.Max[0] &&
		y >= b.Min[1] && y < b.Max[1] &&
		z >= b.Min[2] && z < b.Max[2]
}

// Include grows the box to hold voxel (x, y, z). An empty zero box becomes
// the single voxel.
func (b *BoundingBox) Include(x, y, z int) {
	p := [3]int{x, y, z}
	if b.Empty() {
		b.Min = p
		b.Max = [3]int{x + 1, y + 1, z + 1}
		return
	}
	for i := range p {
		if p[i] < b.Min[i] {
			b.Min[i] = p[i]
		}
		if p[i]+1 > b.Max[i] {
			b.Max[i] = p[i] + 1
		}
	}
}

// Clamp limits the box to [0, dims).
func (b BoundingBox) Clamp(dims [3]int) BoundingBox {
	for i := 0; i < 3; i++ {
		if b.Min[i] < 0 {
			b.Min[i] = 0
		}
		if b.Max[i] > dims[i] {
			b.Max[i] = dims[i]
		}
	}
	return b
}

// Expand grows the box by border voxels on each side, clamped to dims.
func (b BoundingBox) Expand(border int, dims [3]int) BoundingBox {
	for i := 0; i < 3; i++ {
		b.Min[i] -= border
		b.Max[i] += border
	}
	return b.Clamp(dims)
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%d,%d,%d)-[%d,%d,%d)", b.Min[0], b.Min[1], b.Min[2], b.Max[0], b.Max[1], b.Max[2])
}
