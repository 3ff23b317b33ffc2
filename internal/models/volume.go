package models

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidSpacing is returned when a voxel spacing has a non-positive axis.
var ErrInvalidSpacing = errors.New("voxel spacing must be positive on every axis")

// LabelVolume is a label field of shape [X,Y,Z,C] stored x-fastest.
// A 3D volume simply has C == 1.
type LabelVolume struct {
	// Data holds one label per voxel, index ((c*Z+z)*Y+y)*X+x
	Data []uint64

	// Dims is the shape of the volume as X, Y, Z, C
	Dims [4]int

	// Background is the reserved label that is never meshed
	Background uint64
}

// NewLabelVolume wraps data as a label volume after checking its shape.
// Pass c == 0 or 1 for a plain 3D volume.
func NewLabelVolume(data []uint64, x, y, z, c int, background uint64) (*LabelVolume, error) {
	if c == 0 {
		c = 1
	}
	if x <= 0 || y <= 0 || z <= 0 || c < 0 {
		return nil, fmt.Errorf("invalid volume shape %dx%dx%dx%d", x, y, z, c)
	}
	if len(data) != x*y*z*c {
		return nil, fmt.Errorf("volume data has %d voxels, shape %dx%dx%dx%d needs %d",
			len(data), x, y, z, c, x*y*z*c)
	}
	return &LabelVolume{
		Data:       data,
		Dims:       [4]int{x, y, z, c},
		Background: background,
	}, nil
}

// Channels returns the number of label channels in the volume.
func (v *LabelVolume) Channels() int {
	if v.Dims[3] < 1 {
		return 1
	}
	return v.Dims[3]
}

// At returns the label at full-resolution voxel (x, y, z) of channel c.
func (v *LabelVolume) At(x, y, z, c int) uint64 {
	return v.Data[((c*v.Dims[2]+z)*v.Dims[1]+y)*v.Dims[0]+x]
}

// Window returns the read-only, sub-sampled view of one channel.
func (v *LabelVolume) Window(channel int, ds Downsample) (*VoxelWindow, error) {
	if channel < 0 || channel >= v.Channels() {
		return nil, fmt.Errorf("channel %d out of range [0,%d)", channel, v.Channels())
	}
	ds = ds.normalized()
	return &VoxelWindow{
		vol:     v,
		channel: channel,
		ds:      ds,
		dims: [3]int{
			ceilDiv(v.Dims[0], ds.XY),
			ceilDiv(v.Dims[1], ds.XY),
			ceilDiv(v.Dims[2], ds.Z),
		},
	}, nil
}

// Spacing is the physical size of one voxel along each axis.
type Spacing struct {
	X, Y, Z float64
}

// Validate returns ErrInvalidSpacing unless every axis is positive.
func (s Spacing) Validate() error {
	if !(s.X > 0 && s.Y > 0 && s.Z > 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSpacing, s)
	}
	return nil
}

// Array returns the spacing as an x, y, z triple.
func (s Spacing) Array() [3]float64 {
	return [3]float64{s.X, s.Y, s.Z}
}

// Downsample holds the stride applied to the x/y axes and, separately, to z.
type Downsample struct {
	XY int `yaml:"xy" toml:"xy"`
	Z  int `yaml:"z" toml:"z"`
}

func (d Downsample) normalized() Downsample {
	if d.XY < 1 {
		d.XY = 1
	}
	if d.Z < 1 {
		d.Z = 1
	}
	return d
}

// ObjectKey identifies one object mesh.
type ObjectKey struct {
	Time    int
	Label   uint64
	Channel int
}

// String formats the key the way group markers carry it: "time,label,channel".
func (k ObjectKey) String() string {
	return fmt.Sprintf("%d,%d,%d", k.Time, k.Label, k.Channel)
}

// LabelSet is a set of labels. A nil LabelSet means "every label".
type LabelSet map[uint64]struct{}

// NewLabelSet returns a non-nil set holding labels. With no arguments it is
// the empty set, which is different from a nil set.
func NewLabelSet(labels ...uint64) LabelSet {
	s := make(LabelSet, len(labels))
	for _, l := range labels {
		s[l] = struct{}{}
	}
	return s
}

// Contains reports membership.
func (s LabelSet) Contains(label uint64) bool {
	_, ok := s[label]
	return ok
}

// Sorted returns the members in ascending order.
func (s LabelSet) Sorted() []uint64 {
	out := make([]uint64, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
