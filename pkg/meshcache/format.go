package meshcache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/golang/snappy"
	"gonum.org/v1/gonum/spatial/r3"

	"labelmesh/pkg/mesh"
)

// ErrCorrupt is returned when a cache entry fails to decode.
var ErrCorrupt = errors.New("corrupt mesh cache entry")

const (
	magic         = "LMSH"
	formatVersion = uint16(1)
	headerSize    = len(magic) + 2 + 4
)

// Encode serializes m as: magic, version, CRC32 of the compressed payload,
// then the snappy-compressed payload. The payload holds the vertex and face
// counts, a normals flag, float32 vertices, uint32 faces and float32 normals.
func Encode(m *mesh.Mesh) ([]byte, error) {
	if m == nil {
		m = &mesh.Mesh{}
	}
	var payload bytes.Buffer
	nv, nf := m.NumVertices(), m.NumFaces()
	hasNormals := uint8(0)
	if nv > 0 && len(m.Normals) == nv {
		hasNormals = 1
	}
	header := struct {
		Vertices, Faces uint32
		Normals         uint8
	}{uint32(nv), uint32(nf), hasNormals}
	if err := binary.Write(&payload, binary.LittleEndian, header); err != nil {
		return nil, err
	}

	floats := make([]float32, 0, 3*nv)
	for _, v := range m.Vertices[:nv] {
		floats = append(floats, float32(v.X), float32(v.Y), float32(v.Z))
	}
	if err := binary.Write(&payload, binary.LittleEndian, floats); err != nil {
		return nil, err
	}
	indices := make([]uint32, 0, 3*nf)
	for _, f := range m.Faces[:nf] {
		for _, i := range f {
			if i < 0 || i >= nv {
				return nil, fmt.Errorf("face references vertex %d of %d", i, nv)
			}
			indices = append(indices, uint32(i))
		}
	}
	if err := binary.Write(&payload, binary.LittleEndian, indices); err != nil {
		return nil, err
	}
	if hasNormals == 1 {
		floats = floats[:0]
		for _, n := range m.Normals {
			floats = append(floats, float32(n.X), float32(n.Y), float32(n.Z))
		}
		if err := binary.Write(&payload, binary.LittleEndian, floats); err != nil {
			return nil, err
		}
	}

	compressed := snappy.Encode(nil, payload.Bytes())
	out := make([]byte, headerSize, headerSize+len(compressed))
	copy(out, magic)
	binary.LittleEndian.PutUint16(out[4:6], formatVersion)
	binary.LittleEndian.PutUint32(out[6:10], crc32.ChecksumIEEE(compressed))
	return append(out, compressed...), nil
}

// Decode parses data written by Encode. Any mismatch returns ErrCorrupt.
func Decode(data []byte) (*mesh.Mesh, error) {
	if len(data) < headerSize || string(data[:4]) != magic {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != formatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrCorrupt, v)
	}
	compressed := data[headerSize:]
	if stored, got := binary.LittleEndian.Uint32(data[6:10]), crc32.ChecksumIEEE(compressed); stored != got {
		return nil, fmt.Errorf("%w: bad checksum, stored %x got %x", ErrCorrupt, stored, got)
	}
	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	r := bytes.NewReader(payload)
	var header struct {
		Vertices, Faces uint32
		Normals         uint8
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	nv, nf := int(header.Vertices), int(header.Faces)
	need := 12*nv + 12*nf
	if header.Normals == 1 {
		need += 12 * nv
	}
	if r.Len() != need {
		return nil, fmt.Errorf("%w: payload is %d bytes, want %d", ErrCorrupt, r.Len(), need)
	}

	m := &mesh.Mesh{}
	floats := make([]float32, 3*nv)
	if err := binary.Read(r, binary.LittleEndian, floats); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	m.Vertices = toVecs(floats)
	indices := make([]uint32, 3*nf)
	if err := binary.Read(r, binary.LittleEndian, indices); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if nf > 0 {
		m.Faces = make([][3]int, nf)
	}
	for f := range m.Faces {
		for j := 0; j < 3; j++ {
			i := indices[3*f+j]
			if int(i) >= nv {
				return nil, fmt.Errorf("%w: face %d references vertex %d of %d", ErrCorrupt, f, i, nv)
			}
			m.Faces[f][j] = int(i)
		}
	}
	if header.Normals == 1 {
		if err := binary.Read(r, binary.LittleEndian, floats); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		m.Normals = toVecs(floats)
	}
	return m, nil
}

func toVecs(f []float32) []r3.Vec {
	if len(f) == 0 {
		return nil
	}
	out := make([]r3.Vec, len(f)/3)
	for i := range out {
		out[i] = r3.Vec{X: float64(f[3*i]), Y: float64(f[3*i+1]), Z: float64(f[3*i+2])}
	}
	return out
}
