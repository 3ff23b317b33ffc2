package isosurface

import (
	"github.com/deadsy/sdfx/sdf"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"labelmesh/pkg/mesh"
)

// weldTolerance is the distance, in voxels, under which two triangle corners
// are the same vertex.
const weldTolerance = 1e-4

// weld merges coincident corners of a triangle soup into an indexed mesh.
// Every corner maps to the lowest soup index within weldTolerance, so the
// result does not depend on tree layout.
func weld(triangles []*sdf.Triangle3) *mesh.Mesh {
	if len(triangles) == 0 {
		return &mesh.Mesh{}
	}
	corners := make([][3]float64, 0, 3*len(triangles))
	first := make(map[[3]float64]int, len(triangles))
	var distinct [][3]float64
	for _, tri := range triangles {
		for _, v := range tri {
			p := [3]float64{v.X, v.Y, v.Z}
			if _, ok := first[p]; !ok {
				first[p] = len(corners)
				distinct = append(distinct, p)
			}
			corners = append(corners, p)
		}
	}

	// kdtree.New reorders its input
	pts := make(kdtree.Points, len(distinct))
	for i, p := range distinct {
		pts[i] = kdtree.Point{p[0], p[1], p[2]}
	}
	tree := kdtree.New(pts, false)

	rep := make(map[[3]float64]int, len(distinct))
	for _, p := range distinct {
		keeper := kdtree.NewDistKeeper(weldTolerance * weldTolerance)
		tree.NearestSet(keeper, kdtree.Point{p[0], p[1], p[2]})
		r := first[p]
		for _, c := range keeper.Heap {
			if c.Comparable == nil {
				continue
			}
			q := c.Comparable.(kdtree.Point)
			if j := first[[3]float64{q[0], q[1], q[2]}]; j < r {
				r = j
			}
		}
		rep[p] = r
	}

	out := &mesh.Mesh{}
	vertexOf := make(map[int]int, len(distinct))
	index := func(corner int) int {
		r := rep[corners[corner]]
		v, ok := vertexOf[r]
		if !ok {
			v = len(out.Vertices)
			vertexOf[r] = v
			p := corners[r]
			out.Vertices = append(out.Vertices, r3.Vec{X: p[0], Y: p[1], Z: p[2]})
		}
		return v
	}
	out.Faces = make([][3]int, 0, len(triangles))
	for t := range triangles {
		out.Faces = append(out.Faces, [3]int{index(3 * t), index(3*t + 1), index(3*t + 2)})
	}
	return out.Compact()
}

// fillNormals replaces zero normals with area-weighted face normals.
func fillNormals(m *mesh.Mesh) {
	var faceBased *mesh.Mesh
	for i, n := range m.Normals {
		if n != (r3.Vec{}) {
			continue
		}
		if faceBased == nil {
			faceBased = m.ComputeNormals()
		}
		m.Normals[i] = faceBased.Normals[i]
	}
}
