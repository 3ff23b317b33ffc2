// Package simplify post-processes extracted surfaces: windowed-sinc
// smoothing, quadric clustering and target-reduction decimation.
package simplify

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"labelmesh/pkg/config"
	"labelmesh/pkg/logging"
	"labelmesh/pkg/mesh"
)

// ReductionStep is how much the target reduction backs off per attempt when
// a minimum vertex count is configured.
const ReductionStep = 0.1

// Stage records the mesh size after one pipeline stage.
type Stage struct {
	Name     string
	Vertices int
	Faces    int
	Skipped  bool
	Reverted bool
}

// Report summarises one Simplify call.
type Report struct {
	Stages []Stage

	// Ratio is the reduction actually applied, 0 if none
	Ratio float64

	// MeanEdge and StdEdge describe the final edge lengths
	MeanEdge float64
	StdEdge  float64
}

// Simplifier runs the configured post-processing pipeline.
type Simplifier struct {
	Quality config.Quality
}

// New creates a simplifier for the given quality options.
func New(q config.Quality) *Simplifier {
	return &Simplifier{Quality: q}
}

// stage applies fn unless m is empty, and keeps m if fn empties it.
func stage(r *Report, name string, m *mesh.Mesh, fn func(*mesh.Mesh) *mesh.Mesh) *mesh.Mesh {
	if m.Empty() {
		r.Stages = append(r.Stages, Stage{Name: name, Skipped: true})
		return m
	}
	out := fn(m)
	s := Stage{Name: name}
	if out.Empty() {
		logging.Debugf("%s emptied a mesh of %d vertices, keeping the input", name, m.NumVertices())
		out = m
		s.Reverted = true
	}
	s.Vertices, s.Faces = out.NumVertices(), out.NumFaces()
	r.Stages = append(r.Stages, s)
	return out
}

// Simplify runs the enabled stages on m. shape is the voxel extent of the
// object and sizes the clustering grid. m is never modified.
func (s *Simplifier) Simplify(m *mesh.Mesh, shape [3]int) (*mesh.Mesh, Report) {
	var r Report
	q := s.Quality

	if q.Smooth {
		m = stage(&r, "smooth", m, func(in *mesh.Mesh) *mesh.Mesh {
			return WindowedSinc(in, q.PassBand, q.SmoothIterations, SmoothFeatureAngle)
		})
	}
	if q.Cluster {
		div := ClusterDivisions(shape, q.Fineness)
		m = stage(&r, "cluster", m, func(in *mesh.Mesh) *mesh.Mesh {
			return QuadricCluster(in, div, ClusterFeatureAngle)
		})
	}
	if q.Reduce {
		m = stage(&r, "reduce", m, func(in *mesh.Mesh) *mesh.Mesh {
			out, ratio := s.reduce(in)
			r.Ratio = ratio
			return out
		})
	}

	if lengths := m.EdgeLengths(); len(lengths) > 0 {
		r.MeanEdge, r.StdEdge = stat.MeanStdDev(lengths, nil)
	}
	return m, r
}

// reduce applies target reduction. With MinPoints set it starts at
// TargetReduction and backs off by ReductionStep until the result keeps at
// least MinPoints vertices; if no positive ratio does, m is returned as is.
func (s *Simplifier) reduce(m *mesh.Mesh) (*mesh.Mesh, float64) {
	q := s.Quality
	if q.TargetReduction <= 0 {
		return m, 0
	}
	if q.MinPoints <= 0 {
		return Decimate(m, q.TargetReduction), q.TargetReduction
	}
	if m.NumVertices() < q.MinPoints {
		return m, 0
	}
	for ratio := q.TargetReduction; ratio > 0; ratio = math.Round((ratio-ReductionStep)*1e9) / 1e9 {
		out := Decimate(m, ratio)
		if out.NumVertices() >= q.MinPoints {
			return out, ratio
		}
		logging.Debugf("reduction %.2f leaves %d vertices, below %d", ratio, out.NumVertices(), q.MinPoints)
	}
	return m, 0
}
