package meshcache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"labelmesh/internal/models"
	"labelmesh/pkg/mesh"
)

func testMesh() *mesh.Mesh {
	m := &mesh.Mesh{
		Vertices: []r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 1.5, Y: 0, Z: 0}, {X: 0, Y: 2.25, Z: 0}, {X: 0, Y: 0, Z: 3}},
		Faces:    [][3]int{{0, 2, 1}, {0, 1, 3}, {0, 3, 2}, {1, 2, 3}},
	}
	return m.ComputeNormals()
}

func sameMesh(t *testing.T, got, want *mesh.Mesh) {
	t.Helper()
	if got.NumVertices() != want.NumVertices() || got.NumFaces() != want.NumFaces() {
		t.Fatalf("Mesh size %d/%d, want %d/%d", got.NumVertices(), got.NumFaces(), want.NumVertices(), want.NumFaces())
	}
	for i, v := range want.Vertices {
		if r3.Norm(r3.Sub(v, got.Vertices[i])) > 1e-6 {
			t.Errorf("Vertex %d is %v, want %v", i, got.Vertices[i], v)
		}
	}
	for i, f := range want.Faces {
		if got.Faces[i] != f {
			t.Errorf("Face %d is %v, want %v", i, got.Faces[i], f)
		}
	}
	if len(got.Normals) != len(want.Normals) {
		t.Errorf("Got %d normals, want %d", len(got.Normals), len(want.Normals))
	}
}

func TestEncodeDecode(t *testing.T) {
	m := testMesh()
	data, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	sameMesh(t, got, m)
}

func TestEncodeEmpty(t *testing.T) {
	data, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !got.Empty() {
		t.Error("Expected an empty mesh")
	}
}

func TestDecodeCorrupt(t *testing.T) {
	data, err := Encode(testMesh())
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string][]byte{
		"short":     data[:5],
		"magic":     append([]byte("XXXX"), data[4:]...),
		"truncated": data[:len(data)-3],
	}
	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-1] ^= 0xff
	cases["checksum"] = flipped

	for name, c := range cases {
		if _, err := Decode(c); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: expected ErrCorrupt, got %v", name, err)
		}
	}
}

func TestShouldRecompute(t *testing.T) {
	if !ShouldRecompute(nil, 7) {
		t.Error("A nil set must recompute everything")
	}
	if ShouldRecompute(models.NewLabelSet(), 7) {
		t.Error("An empty set must recompute nothing")
	}
	set := models.NewLabelSet(7)
	if !ShouldRecompute(set, 7) || ShouldRecompute(set, 8) {
		t.Error("Membership decides recomputation")
	}
}

func TestSaveLoad(t *testing.T) {
	for _, mem := range []int{0, 1 << 20} {
		dir := t.TempDir()
		c := New(dir, mem)
		key := models.ObjectKey{Time: 2, Label: 17, Channel: 1}
		if _, ok := c.Load(key); ok {
			t.Fatal("Expected a miss on an empty cache")
		}
		c.Save(key, testMesh())
		if err := c.Flush(); err != nil {
			t.Fatalf("Flush failed: %v", err)
		}
		want := filepath.Join(dir, "2-1", "2-17.mesh")
		if c.Path(key) != want {
			t.Errorf("Path is %s, want %s", c.Path(key), want)
		}
		if _, err := os.Stat(want); err != nil {
			t.Fatalf("Cache file missing: %v", err)
		}

		// a fresh cache reads the file
		got, ok := New(dir, mem).Load(key)
		if !ok {
			t.Fatal("Expected a hit after Flush")
		}
		sameMesh(t, got, testMesh())
	}
}

func TestCorruptFileIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 0)
	key := models.ObjectKey{Time: 0, Label: 3, Channel: 0}
	if err := os.MkdirAll(filepath.Dir(c.Path(key)), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(c.Path(key), []byte("not a mesh"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Load(key); ok {
		t.Error("A corrupt entry must be a miss")
	}
	hits, misses := c.Counts()
	if hits != 0 || misses != 1 {
		t.Errorf("Counts are %d/%d, want 0/1", hits, misses)
	}
}

func TestFlushReportsErrors(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	// root is a regular file, so the directory cannot be created
	c := New(blocker, 0)
	c.Save(models.ObjectKey{Label: 1}, testMesh())
	if err := c.Flush(); err == nil {
		t.Error("Expected a write error")
	}
	if err := c.Flush(); err != nil {
		t.Errorf("Errors should be reported once, got %v", err)
	}
}

func TestMergedRoundTrip(t *testing.T) {
	c := New(t.TempDir(), 0)
	buf := []byte("g 0,1,0\nv 0 0 0\n")
	if err := c.SaveMerged(0, 0, buf); err != nil {
		t.Fatalf("SaveMerged failed: %v", err)
	}
	got, err := c.LoadMerged(0, 0)
	if err != nil {
		t.Fatalf("LoadMerged failed: %v", err)
	}
	if string(got) != string(buf) {
		t.Errorf("Got %q, want %q", got, buf)
	}
}

// BenchmarkEncode benchmarks serializing a small mesh
func BenchmarkEncode(b *testing.B) {
	m := testMesh()
	for i := 0; i < b.N; i++ {
		if _, err := Encode(m); err != nil {
			b.Fatal(err)
		}
	}
}
