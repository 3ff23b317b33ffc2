package mesh

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Edge is an undirected edge with A < B.
type Edge struct {
	A, B int
}

// NewEdge orders a and b.
func NewEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{a, b}
}

// EdgeFaces maps every edge to the faces that use it.
func (m *Mesh) EdgeFaces() map[Edge][]int {
	ef := make(map[Edge][]int, len(m.Faces)*3/2)
	for f, t := range m.Faces {
		for i := 0; i < 3; i++ {
			e := NewEdge(t[i], t[(i+1)%3])
			ef[e] = append(ef[e], f)
		}
	}
	return ef
}

// Neighbors returns the sorted edge-adjacent vertices of every vertex.
func (m *Mesh) Neighbors() [][]int {
	nb := make([][]int, len(m.Vertices))
	for _, t := range m.Faces {
		for i := 0; i < 3; i++ {
			a, b := t[i], t[(i+1)%3]
			nb[a] = append(nb[a], b)
			nb[b] = append(nb[b], a)
		}
	}
	for i, n := range nb {
		sort.Ints(n)
		nb[i] = dedupe(n)
	}
	return nb
}

// FeatureEdges returns the edges whose two faces meet at a dihedral angle
// above angle (radians). Edges used by one face or by more than two faces
// count as features.
func (m *Mesh) FeatureEdges(angle float64) map[Edge]bool {
	cosLimit := math.Cos(angle)
	features := make(map[Edge]bool)
	normals := make([]r3.Vec, len(m.Faces))
	for f := range m.Faces {
		normals[f] = m.FaceNormal(f)
	}
	for e, faces := range m.EdgeFaces() {
		if len(faces) != 2 {
			features[e] = true
			continue
		}
		if r3.Dot(normals[faces[0]], normals[faces[1]]) < cosLimit {
			features[e] = true
		}
	}
	return features
}

// SortedEdges returns the keys of set ordered by (A, B).
func SortedEdges(set map[Edge]bool) []Edge {
	out := make([]Edge, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// EdgeLengths returns the length of every distinct edge.
func (m *Mesh) EdgeLengths() []float64 {
	ef := m.EdgeFaces()
	out := make([]float64, 0, len(ef))
	for e := range ef {
		out = append(out, r3.Norm(r3.Sub(m.Vertices[e.A], m.Vertices[e.B])))
	}
	return out
}

func dedupe(s []int) []int {
	if len(s) < 2 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
