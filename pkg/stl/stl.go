// Package stl exports meshes as binary STL files.
package stl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"labelmesh/pkg/mesh"
)

// ErrNoTriangles is returned when there is nothing to write.
var ErrNoTriangles = errors.New("no triangles to write")

// Triangles flattens m into a triangle soup.
func Triangles(m *mesh.Mesh) []*sdf.Triangle3 {
	if m.Empty() {
		return nil
	}
	out := make([]*sdf.Triangle3, 0, len(m.Faces))
	for _, f := range m.Faces {
		var t sdf.Triangle3
		for j, i := range f {
			p := m.Vertices[i]
			t[j] = v3.Vec{X: p.X, Y: p.Y, Z: p.Z}
		}
		out = append(out, &t)
	}
	return out
}

// SaveToSTL writes all meshes into one binary STL file.
func SaveToSTL(filename string, meshes ...*mesh.Mesh) error {
	var triangles []*sdf.Triangle3
	for _, m := range meshes {
		triangles = append(triangles, Triangles(m)...)
	}
	if len(triangles) == 0 {
		return ErrNoTriangles
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := render.SaveSTL(filename, triangles); err != nil {
		return fmt.Errorf("failed to save STL file: %w", err)
	}
	return nil
}
