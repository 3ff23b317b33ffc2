package isosurface

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r3"

	"labelmesh/internal/models"
)

// binaryField is a label grid binarized against one label and exposed as an
// sdf.SDF3: negative inside, zero on the 0.5 isosurface of the trilinearly
// interpolated occupancy. Coordinates are grid voxel indices.
type binaryField struct {
	dims  [3]int
	occ   []bool
	count int
}

var _ sdf.SDF3 = (*binaryField)(nil)

func newBinaryField(g *models.Grid, label uint64) *binaryField {
	f := &binaryField{
		dims: g.Dims,
		occ:  make([]bool, len(g.Data)),
	}
	for i, v := range g.Data {
		if v == label {
			f.occ[i] = true
			f.count++
		}
	}
	return f
}

// cells is the marching cubes resolution giving one cell per voxel.
func (f *binaryField) cells() int {
	n := f.dims[0]
	if f.dims[1] > n {
		n = f.dims[1]
	}
	if f.dims[2] > n {
		n = f.dims[2]
	}
	return n
}

func (f *binaryField) value(x, y, z int) float64 {
	if x < 0 || y < 0 || z < 0 || x >= f.dims[0] || y >= f.dims[1] || z >= f.dims[2] {
		return 0
	}
	if f.occ[(z*f.dims[1]+y)*f.dims[0]+x] {
		return 1
	}
	return 0
}

// occupancy interpolates the binary field trilinearly at p.
func (f *binaryField) occupancy(x, y, z float64) float64 {
	x0, y0, z0 := math.Floor(x), math.Floor(y), math.Floor(z)
	fx, fy, fz := x-x0, y-y0, z-z0
	ix, iy, iz := int(x0), int(y0), int(z0)

	var sum float64
	for dz := 0; dz < 2; dz++ {
		wz := 1 - fz
		if dz == 1 {
			wz = fz
		}
		if wz == 0 {
			continue
		}
		for dy := 0; dy < 2; dy++ {
			wy := 1 - fy
			if dy == 1 {
				wy = fy
			}
			if wy == 0 {
				continue
			}
			for dx := 0; dx < 2; dx++ {
				wx := 1 - fx
				if dx == 1 {
					wx = fx
				}
				if wx == 0 {
					continue
				}
				sum += wx * wy * wz * f.value(ix+dx, iy+dy, iz+dz)
			}
		}
	}
	return sum
}

// Evaluate implements sdf.SDF3.
func (f *binaryField) Evaluate(p v3.Vec) float64 {
	return 0.5 - f.occupancy(p.X, p.Y, p.Z)
}

// BoundingBox implements sdf.SDF3. The box is offset by half a voxel so the
// uniform marching cubes lattice lands on voxel centres.
func (f *binaryField) BoundingBox() sdf.Box3 {
	return sdf.Box3{
		Min: v3.Vec{X: -0.5, Y: -0.5, Z: -0.5},
		Max: v3.Vec{
			X: float64(f.dims[0]) - 0.5,
			Y: float64(f.dims[1]) - 0.5,
			Z: float64(f.dims[2]) - 0.5,
		},
	}
}

// gradient of the occupancy at p by central differences.
func (f *binaryField) gradient(p r3.Vec) r3.Vec {
	const h = 0.5
	return r3.Vec{
		X: (f.occupancy(p.X+h, p.Y, p.Z) - f.occupancy(p.X-h, p.Y, p.Z)) / (2 * h),
		Y: (f.occupancy(p.X, p.Y+h, p.Z) - f.occupancy(p.X, p.Y-h, p.Z)) / (2 * h),
		Z: (f.occupancy(p.X, p.Y, p.Z+h) - f.occupancy(p.X, p.Y, p.Z-h)) / (2 * h),
	}
}

// normals returns outward unit normals (the negated occupancy gradient) at
// the given grid positions. A vanishing gradient leaves a zero normal that
// is filled from the faces afterwards.
func (f *binaryField) normals(vertices []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(vertices))
	for i, v := range vertices {
		g := f.gradient(v)
		if n := r3.Norm(g); n > 0 {
			out[i] = r3.Scale(-1/n, g)
		}
	}
	return out
}
