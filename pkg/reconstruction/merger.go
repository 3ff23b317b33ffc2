package reconstruction

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"labelmesh/internal/models"
	"labelmesh/pkg/mesh"
)

// Transform maps window-frame vertices to the output frame:
// p' = p ∘ (Factor, Factor, ZFactor) − Center ∘ Spacing.
type Transform struct {
	// Factor scales x and y, ZFactor scales z; the down-sampling factors
	Factor  float64
	ZFactor float64

	// Center is subtracted after scaling, in full-resolution voxels
	Center  [3]float64
	Spacing models.Spacing
}

// IdentityTransform leaves vertices where they are.
func IdentityTransform() Transform {
	return Transform{Factor: 1, ZFactor: 1, Spacing: models.Spacing{X: 1, Y: 1, Z: 1}}
}

// TransformFor returns the transform for a window down-sampled by ds.
func TransformFor(ds models.Downsample, center [3]float64, spacing models.Spacing) Transform {
	xy, z := ds.XY, ds.Z
	if xy < 1 {
		xy = 1
	}
	if z < 1 {
		z = 1
	}
	return Transform{Factor: float64(xy), ZFactor: float64(z), Center: center, Spacing: spacing}
}

// Point transforms one vertex. Coordinates are rounded to float32 first so
// a mesh read back from the cache transforms to the same text.
func (t Transform) Point(p r3.Vec) r3.Vec {
	return r3.Vec{
		X: float64(float32(p.X))*t.Factor - t.Center[0]*t.Spacing.X,
		Y: float64(float32(p.Y))*t.Factor - t.Center[1]*t.Spacing.Y,
		Z: float64(float32(p.Z))*t.ZFactor - t.Center[2]*t.Spacing.Z,
	}
}

// Apply returns a transformed copy of m without normals.
func (t Transform) Apply(m *mesh.Mesh) *mesh.Mesh {
	if m.Empty() {
		return &mesh.Mesh{}
	}
	out := &mesh.Mesh{
		Vertices: make([]r3.Vec, len(m.Vertices)),
		Faces:    append([][3]int(nil), m.Faces...),
	}
	for i, v := range m.Vertices {
		out.Vertices[i] = t.Point(v)
	}
	return out
}

// Merger appends object meshes to one OBJ-like buffer with globally shifted,
// 1-based face indices.
type Merger struct {
	transform Transform
	buf       bytes.Buffer
	shift     int
	groups    int
}

// NewMerger creates an empty merger.
func NewMerger(t Transform) *Merger {
	return &Merger{transform: t, shift: 1}
}

// Add appends one object. Empty meshes add nothing.
func (mg *Merger) Add(key models.ObjectKey, m *mesh.Mesh) {
	if m.Empty() {
		return
	}
	mg.groups++
	b := mg.buf.AvailableBuffer()
	b = append(b, "g "...)
	b = append(b, key.String()...)
	b = append(b, '\n')
	mg.buf.Write(b)

	for _, v := range m.Vertices {
		p := mg.transform.Point(v)
		b = mg.buf.AvailableBuffer()
		b = append(b, 'v', ' ')
		b = strconv.AppendFloat(b, float64(float32(p.X)), 'g', -1, 32)
		b = append(b, ' ')
		b = strconv.AppendFloat(b, float64(float32(p.Y)), 'g', -1, 32)
		b = append(b, ' ')
		b = strconv.AppendFloat(b, float64(float32(p.Z)), 'g', -1, 32)
		b = append(b, '\n')
		mg.buf.Write(b)
	}
	for _, f := range m.Faces {
		b = mg.buf.AvailableBuffer()
		b = append(b, 'f')
		for _, i := range f {
			b = append(b, ' ')
			b = strconv.AppendInt(b, int64(mg.shift+i), 10)
		}
		b = append(b, '\n')
		mg.buf.Write(b)
	}
	mg.shift += len(m.Vertices)
}

// Bytes returns the buffer built so far.
func (mg *Merger) Bytes() []byte { return mg.buf.Bytes() }

// Vertices returns how many vertices have been emitted.
func (mg *Merger) Vertices() int { return mg.shift - 1 }

// Groups returns how many objects have been emitted.
func (mg *Merger) Groups() int { return mg.groups }

// Merge writes every object of res, in enumeration order, into one buffer.
func Merge(res *Result, t Transform) []byte {
	mg := NewMerger(t)
	for _, label := range res.Order {
		if o := res.Objects[label]; o.HasMesh() {
			mg.Add(o.Key, o.Mesh)
		}
	}
	return mg.Bytes()
}

// MergedObject is one group read back from a merged buffer. Faces use
// 0-based indices into Vertices.
type MergedObject struct {
	Key      models.ObjectKey
	Vertices []r3.Vec
	Faces    [][3]int
}

// Mesh returns the object as a mesh.
func (o MergedObject) Mesh() *mesh.Mesh {
	return &mesh.Mesh{Vertices: o.Vertices, Faces: o.Faces}
}

// ParseMerged reads a buffer produced by Merger. Every face must reference
// vertices of its own group that were emitted before it.
func ParseMerged(data []byte) ([]MergedObject, error) {
	var objects []MergedObject
	var cur *MergedObject
	total, start := 0, 0

	sc := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "g":
			if len(fields) != 2 {
				return nil, fmt.Errorf("line %d: malformed group marker", line)
			}
			key, err := parseKey(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			objects = append(objects, MergedObject{Key: key})
			cur = &objects[len(objects)-1]
			start = total
		case "v":
			if cur == nil || len(fields) != 4 {
				return nil, fmt.Errorf("line %d: vertex outside a group or malformed", line)
			}
			var p [3]float64
			for i := range p {
				v, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				p[i] = v
			}
			cur.Vertices = append(cur.Vertices, r3.Vec{X: p[0], Y: p[1], Z: p[2]})
			total++
		case "f":
			if cur == nil || len(fields) != 4 {
				return nil, fmt.Errorf("line %d: face outside a group or malformed", line)
			}
			var f [3]int
			for i := range f {
				idx, err := strconv.Atoi(fields[i+1])
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				if idx < 1 || idx > total {
					return nil, fmt.Errorf("line %d: index %d outside 1..%d", line, idx, total)
				}
				if idx <= start {
					return nil, fmt.Errorf("line %d: index %d belongs to an earlier group", line, idx)
				}
				f[i] = idx - 1 - start
			}
			cur.Faces = append(cur.Faces, f)
		default:
			return nil, fmt.Errorf("line %d: unknown directive %q", line, fields[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return objects, nil
}

func parseKey(s string) (models.ObjectKey, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return models.ObjectKey{}, fmt.Errorf("group %q is not time,label,channel", s)
	}
	t, err := strconv.Atoi(parts[0])
	if err != nil {
		return models.ObjectKey{}, err
	}
	l, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return models.ObjectKey{}, err
	}
	c, err := strconv.Atoi(parts[2])
	if err != nil {
		return models.ObjectKey{}, err
	}
	return models.ObjectKey{Time: t, Label: l, Channel: c}, nil
}
