package mesh

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// tetrahedron returns a closed, outward-wound tetrahedron
func tetrahedron() *Mesh {
	return &Mesh{
		Vertices: []r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: 1}},
		Faces:    [][3]int{{0, 2, 1}, {0, 1, 3}, {0, 3, 2}, {1, 2, 3}},
	}
}

func TestEmptyAndCounts(t *testing.T) {
	var m *Mesh
	if !m.Empty() || m.NumVertices() != 0 || m.NumFaces() != 0 {
		t.Error("Nil mesh should be empty")
	}
	tet := tetrahedron()
	if tet.Empty() || tet.NumVertices() != 4 || tet.NumFaces() != 4 {
		t.Errorf("Unexpected counts %d/%d", tet.NumVertices(), tet.NumFaces())
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tet := tetrahedron()
	c := tet.Clone()
	c.Vertices[0].X = 42
	c.Faces[0][0] = 3
	if tet.Vertices[0].X != 0 || tet.Faces[0][0] != 0 {
		t.Error("Clone shares storage with the original")
	}
}

func TestComputeNormalsPointOutward(t *testing.T) {
	tet := tetrahedron().ComputeNormals()
	centroid := r3.Vec{X: 0.25, Y: 0.25, Z: 0.25}
	for i, v := range tet.Vertices {
		out := r3.Sub(v, centroid)
		if r3.Dot(out, tet.Normals[i]) <= 0 {
			t.Errorf("Normal %d points inward: %v", i, tet.Normals[i])
		}
		if math.Abs(r3.Norm(tet.Normals[i])-1) > 1e-9 {
			t.Errorf("Normal %d is not unit length", i)
		}
	}
}

func TestScaleAndTranslate(t *testing.T) {
	tet := tetrahedron()
	s := tet.Scale(r3.Vec{X: 2, Y: 3, Z: 4}).Translate(r3.Vec{X: 1})
	min, max := s.Bounds()
	if min != (r3.Vec{X: 1}) || max != (r3.Vec{X: 3, Y: 3, Z: 4}) {
		t.Errorf("Unexpected bounds %v %v", min, max)
	}
	if tet.Vertices[1].X != 1 {
		t.Error("Scale mutated its input")
	}
}

func TestCompactDropsDegenerateAndUnused(t *testing.T) {
	m := tetrahedron()
	m.Vertices = append(m.Vertices, r3.Vec{X: 9, Y: 9, Z: 9})
	m.Faces = append(m.Faces, [3]int{1, 1, 2}, [3]int{2, 1, 0})
	c := m.Compact()
	if c.NumVertices() != 4 {
		t.Errorf("Expected 4 vertices after compaction, got %d", c.NumVertices())
	}
	if c.NumFaces() != 4 {
		t.Errorf("Expected 4 faces after compaction, got %d", c.NumFaces())
	}
}

func TestTopology(t *testing.T) {
	tet := tetrahedron()
	nb := tet.Neighbors()
	for i, n := range nb {
		if len(n) != 3 {
			t.Errorf("Vertex %d has %d neighbours, expected 3", i, len(n))
		}
	}
	ef := tet.EdgeFaces()
	if len(ef) != 6 {
		t.Errorf("Expected 6 edges, got %d", len(ef))
	}
	for e, faces := range ef {
		if len(faces) != 2 {
			t.Errorf("Edge %v used by %d faces", e, len(faces))
		}
	}
	// every tetrahedron dihedral angle is at most ~109.5 degrees from flat
	if f := tet.FeatureEdges(30 * math.Pi / 180); len(f) != 6 {
		t.Errorf("Expected all 6 edges to be features at 30 degrees, got %d", len(f))
	}
	if f := tet.FeatureEdges(179 * math.Pi / 180); len(f) != 0 {
		t.Errorf("Expected no features at 179 degrees, got %d", len(f))
	}
	if l := tet.EdgeLengths(); len(l) != 6 {
		t.Errorf("Expected 6 edge lengths, got %d", len(l))
	}
}
