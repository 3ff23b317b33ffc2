package simplify

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"labelmesh/pkg/mesh"
)

// SmoothFeatureAngle is the dihedral angle above which an edge is treated as
// a feature during smoothing.
const SmoothFeatureAngle = 120 * math.Pi / 180

// sincCoefficients returns the Hamming-windowed Chebyshev coefficients of a
// low-pass filter in the Laplacian eigenvalue k. The cut-off is shifted past
// the pass band by a Newton search so the response at k = passBand is 1 and
// the pass band goes through unattenuated.
func sincCoefficients(passBand float64, iterations int) []float64 {
	thetaPB := math.Acos(1 - 0.5*passBand)
	window := make([]float64, iterations+1)
	for i := range window {
		window[i] = 0.54 + 0.46*math.Cos(float64(i)*math.Pi/float64(iterations+1))
	}
	coefficients := func(theta float64) []float64 {
		c := make([]float64, iterations+1)
		c[0] = window[0] * theta / math.Pi
		for i := 1; i <= iterations; i++ {
			c[i] = window[i] * 2 * math.Sin(float64(i)*theta) / (float64(i) * math.Pi)
		}
		return c
	}

	var sigma float64
	if iterations > 1 {
		for n := 0; n < sincSearchSteps; n++ {
			theta := thetaPB + sigma
			f := sincResponse(coefficients(theta), passBand)
			if math.Abs(f-1) < sincTolerance {
				break
			}
			// derivative of the pass-band response with respect to sigma
			df := window[0] / math.Pi
			for i := 1; i <= iterations; i++ {
				df += math.Cos(float64(i)*thetaPB) * window[i] * 2 * math.Cos(float64(i)*theta) / math.Pi
			}
			if df <= 0 {
				break
			}
			sigma = math.Max(0, math.Min(sigma-(f-1)/df, math.Pi-thetaPB))
		}
	}
	return coefficients(thetaPB + sigma)
}

const (
	sincSearchSteps = 100
	sincTolerance   = 1e-6
)

// sincResponse evaluates the filter given by coef at eigenvalue k in [0, 2].
func sincResponse(coef []float64, k float64) float64 {
	theta := math.Acos(math.Max(-1, math.Min(1, 1-0.5*k)))
	var f float64
	for i, c := range coef {
		f += c * math.Cos(float64(i)*theta)
	}
	return f
}

// smoothingNeighbors decides which neighbours each vertex averages over.
// Vertices on exactly two feature edges slide along them; vertices on one or
// more than two feature edges stay fixed; all others, non-manifold ones
// included, use every neighbour.
func smoothingNeighbors(m *mesh.Mesh, featureAngle float64) [][]int {
	nb := m.Neighbors()
	features := m.FeatureEdges(featureAngle)
	if len(features) == 0 {
		return nb
	}
	along := make([][]int, len(m.Vertices))
	for _, e := range mesh.SortedEdges(features) {
		along[e.A] = append(along[e.A], e.B)
		along[e.B] = append(along[e.B], e.A)
	}
	for v, f := range along {
		switch len(f) {
		case 0:
		case 2:
			nb[v] = f
		default:
			nb[v] = nil
		}
	}
	return nb
}

// WindowedSinc low-pass filters vertex positions with a windowed-sinc
// polynomial of degree iterations in the mesh Laplacian. Connectivity is
// unchanged. An empty mesh is returned as is.
func WindowedSinc(m *mesh.Mesh, passBand float64, iterations int, featureAngle float64) *mesh.Mesh {
	if m.Empty() || iterations < 1 {
		return m
	}
	nb := smoothingNeighbors(m, featureAngle)
	coef := sincCoefficients(passBand, iterations)

	n := len(m.Vertices)
	half := func(dst, src []r3.Vec) {
		// dst = src + 0.5*(avg(neighbours) - src)
		for i, p := range src {
			if len(nb[i]) == 0 {
				dst[i] = p
				continue
			}
			var avg r3.Vec
			for _, j := range nb[i] {
				avg = r3.Add(avg, src[j])
			}
			avg = r3.Scale(1/float64(len(nb[i])), avg)
			dst[i] = r3.Add(p, r3.Scale(0.5, r3.Sub(avg, p)))
		}
	}

	// filter around the bounds centre so the DC gain, which is only close
	// to 1, cannot move the mesh
	lo, hi := m.Bounds()
	center := r3.Scale(0.5, r3.Add(lo, hi))
	prev := make([]r3.Vec, n)
	for i, v := range m.Vertices {
		prev[i] = r3.Sub(v, center)
	}
	cur := make([]r3.Vec, n)
	half(cur, prev)
	out := make([]r3.Vec, n)
	for i := range out {
		out[i] = r3.Add(r3.Scale(coef[0], prev[i]), r3.Scale(coef[1], cur[i]))
	}

	next := make([]r3.Vec, n)
	for j := 2; j <= iterations; j++ {
		// x_j = 2*(x_{j-1} + 0.5Δx_{j-1}) - x_{j-2}
		half(next, cur)
		for i := range next {
			next[i] = r3.Sub(r3.Scale(2, next[i]), prev[i])
			out[i] = r3.Add(out[i], r3.Scale(coef[j], next[i]))
		}
		prev, cur, next = cur, next, prev
	}

	for i := range out {
		out[i] = r3.Add(out[i], center)
	}
	s := &mesh.Mesh{
		Vertices: out,
		Faces:    append([][3]int(nil), m.Faces...),
	}
	if len(m.Normals) > 0 {
		s = s.ComputeNormals()
	}
	return s
}
