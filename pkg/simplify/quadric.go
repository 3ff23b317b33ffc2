package simplify

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// quadric is the error quadric pᵀAp + 2bᵀp + c of Garland and Heckbert,
// with the symmetric A stored as xx, xy, xz, yy, yz, zz.
type quadric struct {
	a [6]float64
	b [3]float64
	c float64
}

// planeQuadric is the squared distance to the plane n·p + d = 0, times w.
func planeQuadric(n r3.Vec, d, w float64) quadric {
	return quadric{
		a: [6]float64{w * n.X * n.X, w * n.X * n.Y, w * n.X * n.Z, w * n.Y * n.Y, w * n.Y * n.Z, w * n.Z * n.Z},
		b: [3]float64{w * d * n.X, w * d * n.Y, w * d * n.Z},
		c: w * d * d,
	}
}

func (q *quadric) add(o quadric) {
	for i := range q.a {
		q.a[i] += o.a[i]
	}
	for i := range q.b {
		q.b[i] += o.b[i]
	}
	q.c += o.c
}

func (q quadric) plus(o quadric) quadric {
	q.add(o)
	return q
}

// eval returns the quadric error at p.
func (q quadric) eval(p r3.Vec) float64 {
	a := q.a
	return a[0]*p.X*p.X + 2*a[1]*p.X*p.Y + 2*a[2]*p.X*p.Z +
		a[3]*p.Y*p.Y + 2*a[4]*p.Y*p.Z + a[5]*p.Z*p.Z +
		2*(q.b[0]*p.X+q.b[1]*p.Y+q.b[2]*p.Z) + q.c
}

func (q quadric) sym() *mat.SymDense {
	a := q.a
	return mat.NewSymDense(3, []float64{
		a[0], a[1], a[2],
		a[1], a[3], a[4],
		a[2], a[4], a[5],
	})
}

// singularCutoff is the relative size below which singular values of A are
// treated as zero.
const singularCutoff = 1e-3

// minimize returns the point minimizing the quadric closest to around. The
// pseudo-inverse keeps directions the quadric does not constrain at around,
// so flat or linear regions do not fly off.
func (q quadric) minimize(around r3.Vec) r3.Vec {
	var svd mat.SVD
	if !svd.Factorize(q.sym(), mat.SVDFull) {
		return around
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] <= 0 {
		return around
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// residual r = -b - A*around
	a := q.sym()
	x0 := mat.NewVecDense(3, []float64{around.X, around.Y, around.Z})
	var ax mat.VecDense
	ax.MulVec(a, x0)
	r := mat.NewVecDense(3, []float64{-q.b[0] - ax.AtVec(0), -q.b[1] - ax.AtVec(1), -q.b[2] - ax.AtVec(2)})

	// delta = V Σ⁺ Uᵀ r
	var utr mat.VecDense
	utr.MulVec(u.T(), r)
	for i, s := range values {
		if s < singularCutoff*values[0] {
			utr.SetVec(i, 0)
		} else {
			utr.SetVec(i, utr.AtVec(i)/s)
		}
	}
	var delta mat.VecDense
	delta.MulVec(&v, &utr)
	return r3.Vec{X: around.X + delta.AtVec(0), Y: around.Y + delta.AtVec(1), Z: around.Z + delta.AtVec(2)}
}
