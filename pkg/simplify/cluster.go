package simplify

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"labelmesh/pkg/mesh"
)

// ClusterFeatureAngle is the dihedral angle above which an edge adds
// constraint quadrics during clustering.
const ClusterFeatureAngle = 30 * math.Pi / 180

// ClusterDivisions returns the clustering grid for an object whose voxel box
// has the given shape: fineness * shape / 2 cells per axis, at least one.
func ClusterDivisions(shape [3]int, fineness float64) [3]int {
	var d [3]int
	for i, s := range shape {
		d[i] = int(fineness * float64(s) / 2)
		if d[i] < 1 {
			d[i] = 1
		}
	}
	return d
}

type clusterGrid struct {
	min  r3.Vec
	size [3]float64
	div  [3]int
}

func newClusterGrid(m *mesh.Mesh, div [3]int) clusterGrid {
	min, max := m.Bounds()
	ext := [3]float64{max.X - min.X, max.Y - min.Y, max.Z - min.Z}
	g := clusterGrid{min: min, div: div}
	for i := range ext {
		if ext[i] <= 0 || g.div[i] < 1 {
			g.div[i] = 1
			g.size[i] = 1
			continue
		}
		g.size[i] = ext[i] / float64(g.div[i])
	}
	return g
}

func (g clusterGrid) cell(p r3.Vec) int {
	c := [3]float64{p.X - g.min.X, p.Y - g.min.Y, p.Z - g.min.Z}
	var idx [3]int
	for i := range c {
		idx[i] = int(c[i] / g.size[i])
		if idx[i] >= g.div[i] {
			idx[i] = g.div[i] - 1
		}
		if idx[i] < 0 {
			idx[i] = 0
		}
	}
	return (idx[2]*g.div[1]+idx[1])*g.div[0] + idx[0]
}

// QuadricCluster bins vertices into a divisions grid over the mesh bounds and
// replaces each occupied cell by the point minimising the summed face-plane
// quadrics of its vertices. Edges sharper than featureAngle contribute
// constraint planes so creases survive. Faces collapsing inside one cell are
// dropped.
func QuadricCluster(m *mesh.Mesh, divisions [3]int, featureAngle float64) *mesh.Mesh {
	if m.Empty() {
		return m
	}
	grid := newClusterGrid(m, divisions)

	cellOf := make([]int, len(m.Vertices))
	for i, v := range m.Vertices {
		cellOf[i] = grid.cell(v)
	}

	quadrics := make(map[int]*quadric)
	centroid := make(map[int]r3.Vec)
	count := make(map[int]int)
	for i, v := range m.Vertices {
		c := cellOf[i]
		if quadrics[c] == nil {
			quadrics[c] = &quadric{}
		}
		centroid[c] = r3.Add(centroid[c], v)
		count[c]++
	}

	for f, t := range m.Faces {
		n := m.FaceNormal(f)
		if n == (r3.Vec{}) {
			continue
		}
		d := -r3.Dot(n, m.Vertices[t[0]])
		q := planeQuadric(n, d, m.FaceArea(f))
		for _, v := range t {
			quadrics[cellOf[v]].add(q)
		}
	}

	if featureAngle > 0 {
		edgeFaces := m.EdgeFaces()
		for _, e := range mesh.SortedEdges(m.FeatureEdges(featureAngle)) {
			a, b := m.Vertices[e.A], m.Vertices[e.B]
			dir := r3.Sub(b, a)
			w := r3.Dot(dir, dir)
			for _, f := range edgeFaces[e] {
				perp := r3.Cross(dir, m.FaceNormal(f))
				if n := r3.Norm(perp); n > 0 {
					perp = r3.Scale(1/n, perp)
					q := planeQuadric(perp, -r3.Dot(perp, a), w)
					quadrics[cellOf[e.A]].add(q)
					quadrics[cellOf[e.B]].add(q)
				}
			}
		}
	}

	out := &mesh.Mesh{}
	vertexOf := make(map[int]int, len(quadrics))
	rep := func(c int) int {
		if i, ok := vertexOf[c]; ok {
			return i
		}
		center := r3.Scale(1/float64(count[c]), centroid[c])
		vertexOf[c] = len(out.Vertices)
		out.Vertices = append(out.Vertices, quadrics[c].minimize(center))
		return vertexOf[c]
	}
	for _, t := range m.Faces {
		a, b, c := cellOf[t[0]], cellOf[t[1]], cellOf[t[2]]
		if a == b || b == c || a == c {
			continue
		}
		out.Faces = append(out.Faces, [3]int{rep(a), rep(b), rep(c)})
	}
	out = out.Compact()
	if len(m.Normals) > 0 && !out.Empty() {
		out = out.ComputeNormals()
	}
	return out
}
