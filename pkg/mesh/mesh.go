// Package mesh defines the indexed triangle mesh passed between pipeline
// stages. Stages treat a Mesh as immutable: they return a new Mesh or the
// input unchanged.
package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is an indexed triangle mesh with optional per-vertex normals.
type Mesh struct {
	Vertices []r3.Vec
	Faces    [][3]int

	// Normals is either empty or has one entry per vertex
	Normals []r3.Vec
}

// Empty reports whether m is nil or has no vertices.
func (m *Mesh) Empty() bool {
	return m == nil || len(m.Vertices) == 0
}

func (m *Mesh) NumVertices() int {
	if m == nil {
		return 0
	}
	return len(m.Vertices)
}

func (m *Mesh) NumFaces() int {
	if m == nil {
		return 0
	}
	return len(m.Faces)
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	if m == nil {
		return nil
	}
	c := &Mesh{
		Vertices: append([]r3.Vec(nil), m.Vertices...),
		Faces:    append([][3]int(nil), m.Faces...),
	}
	if len(m.Normals) > 0 {
		c.Normals = append([]r3.Vec(nil), m.Normals...)
	}
	return c
}

// Bounds returns the axis-aligned bounds of the vertices.
func (m *Mesh) Bounds() (min, max r3.Vec) {
	if m.Empty() {
		return
	}
	min = r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max = r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, v := range m.Vertices {
		min.X = math.Min(min.X, v.X)
		min.Y = math.Min(min.Y, v.Y)
		min.Z = math.Min(min.Z, v.Z)
		max.X = math.Max(max.X, v.X)
		max.Y = math.Max(max.Y, v.Y)
		max.Z = math.Max(max.Z, v.Z)
	}
	return min, max
}

// Translate returns a copy of m moved by d.
func (m *Mesh) Translate(d r3.Vec) *Mesh {
	c := m.Clone()
	for i := range c.Vertices {
		c.Vertices[i] = r3.Add(c.Vertices[i], d)
	}
	return c
}

// Scale returns a copy of m with every vertex multiplied component-wise by s.
// Normals are corrected for non-uniform scaling.
func (m *Mesh) Scale(s r3.Vec) *Mesh {
	c := m.Clone()
	for i, v := range c.Vertices {
		c.Vertices[i] = r3.Vec{X: v.X * s.X, Y: v.Y * s.Y, Z: v.Z * s.Z}
	}
	for i, n := range c.Normals {
		c.Normals[i] = normalize(r3.Vec{X: n.X / s.X, Y: n.Y / s.Y, Z: n.Z / s.Z})
	}
	return c
}

// FaceNormal returns the unit normal of face f, or the zero vector for a
// degenerate triangle.
func (m *Mesh) FaceNormal(f int) r3.Vec {
	return normalize(m.faceCross(f))
}

// FaceArea returns the area of face f.
func (m *Mesh) FaceArea(f int) float64 {
	return r3.Norm(m.faceCross(f)) / 2
}

func (m *Mesh) faceCross(f int) r3.Vec {
	t := m.Faces[f]
	a, b, c := m.Vertices[t[0]], m.Vertices[t[1]], m.Vertices[t[2]]
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}

// ComputeNormals returns a copy of m whose vertex normals are the
// area-weighted average of the incident face normals.
func (m *Mesh) ComputeNormals() *Mesh {
	c := m.Clone()
	if c == nil {
		return nil
	}
	c.Normals = make([]r3.Vec, len(c.Vertices))
	for f, t := range c.Faces {
		n := c.faceCross(f)
		for _, v := range t {
			c.Normals[v] = r3.Add(c.Normals[v], n)
		}
	}
	for i := range c.Normals {
		c.Normals[i] = normalize(c.Normals[i])
	}
	return c
}

// Compact returns a copy of m without degenerate or duplicate faces and
// without vertices no face references. Vertex order is preserved.
func (m *Mesh) Compact() *Mesh {
	if m == nil {
		return nil
	}
	seen := make(map[[3]int]struct{}, len(m.Faces))
	faces := make([][3]int, 0, len(m.Faces))
	for _, f := range m.Faces {
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			continue
		}
		k := canonical(f)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		faces = append(faces, f)
	}

	remap := make([]int, len(m.Vertices))
	for i := range remap {
		remap[i] = -1
	}
	for _, f := range faces {
		for _, v := range f {
			remap[v] = 0
		}
	}
	out := &Mesh{}
	hasNormals := len(m.Normals) == len(m.Vertices) && len(m.Normals) > 0
	for i, r := range remap {
		if r < 0 {
			continue
		}
		remap[i] = len(out.Vertices)
		out.Vertices = append(out.Vertices, m.Vertices[i])
		if hasNormals {
			out.Normals = append(out.Normals, m.Normals[i])
		}
	}
	out.Faces = make([][3]int, len(faces))
	for i, f := range faces {
		out.Faces[i] = [3]int{remap[f[0]], remap[f[1]], remap[f[2]]}
	}
	return out
}

// canonical rotates a face so its smallest index comes first, keeping winding.
func canonical(f [3]int) [3]int {
	switch {
	case f[1] < f[0] && f[1] < f[2]:
		return [3]int{f[1], f[2], f[0]}
	case f[2] < f[0] && f[2] < f[1]:
		return [3]int{f[2], f[0], f[1]}
	}
	return f
}

func normalize(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}
