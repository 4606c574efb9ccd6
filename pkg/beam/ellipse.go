package beam

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNoConvergence is returned when the smallest-enclosing-beam search
// fails to converge at the configured tolerance.
var ErrNoConvergence = errors.New("beam: common beam search did not converge")

// maxKhachiyanIter bounds the barycentric-coordinate ascent; the loop
// normally exits on the tolerance criterion long before this.
const maxKhachiyanIter = 50000

// ellipse is a centered ellipse described by its semi-axes and the angle
// of the semi-major axis from the x-axis, in radians.
type ellipse struct {
	semiMajor float64
	semiMinor float64
	angle     float64
}

// minVolEllipse computes the minimum-volume enclosing ellipse of a point
// cloud with Khachiyan's algorithm. tol is the convergence criterion on
// the barycentric weight update norm.
func minVolEllipse(xs, ys []float64, tol float64) (ellipse, error) {
	n := len(xs)
	if n < 3 {
		return ellipse{}, ErrNoConvergence
	}

	// Q holds the lifted points [x; y; 1] column by column.
	q := mat.NewDense(3, n, nil)
	for j := 0; j < n; j++ {
		q.Set(0, j, xs[j])
		q.Set(1, j, ys[j])
		q.Set(2, j, 1)
	}

	u := make([]float64, n)
	for j := range u {
		u[j] = 1 / float64(n)
	}

	var (
		qu   mat.Dense
		x    mat.Dense
		xinv mat.Dense
		w    mat.Dense
	)
	converged := false
	for iter := 0; iter < maxKhachiyanIter; iter++ {
		// X = Q diag(u) Q^T
		qu.Mul(q, mat.NewDiagDense(n, u))
		x.Mul(&qu, q.T())
		if err := xinv.Inverse(&x); err != nil {
			return ellipse{}, ErrNoConvergence
		}

		// M_j = q_j^T X^-1 q_j, computed column-wise via W = X^-1 Q.
		w.Mul(&xinv, q)
		jmax, mmax := 0, math.Inf(-1)
		for j := 0; j < n; j++ {
			m := q.At(0, j)*w.At(0, j) + q.At(1, j)*w.At(1, j) + q.At(2, j)*w.At(2, j)
			if m > mmax {
				jmax, mmax = j, m
			}
		}

		step := (mmax - 3) / (3 * (mmax - 1))
		var diff float64
		for j := range u {
			next := u[j] * (1 - step)
			if j == jmax {
				next += step
			}
			d := next - u[j]
			diff += d * d
			u[j] = next
		}
		if math.Sqrt(diff) < tol {
			converged = true
			break
		}
	}
	if !converged {
		return ellipse{}, ErrNoConvergence
	}

	// Center c = P u and scatter S = P diag(u) P^T - c c^T.
	var cx, cy float64
	for j := 0; j < n; j++ {
		cx += u[j] * xs[j]
		cy += u[j] * ys[j]
	}
	var sxx, sxy, syy float64
	for j := 0; j < n; j++ {
		sxx += u[j] * xs[j] * xs[j]
		sxy += u[j] * xs[j] * ys[j]
		syy += u[j] * ys[j] * ys[j]
	}
	sxx -= cx * cx
	sxy -= cx * cy
	syy -= cy * cy

	// A = S^-1 / d defines the ellipse (p-c)^T A (p-c) <= 1.
	s := mat.NewDense(2, 2, []float64{sxx, sxy, sxy, syy})
	var sinv mat.Dense
	if err := sinv.Inverse(s); err != nil {
		return ellipse{}, ErrNoConvergence
	}
	a := mat.NewSymDense(2, []float64{
		sinv.At(0, 0) / 2, sinv.At(0, 1) / 2,
		sinv.At(1, 0) / 2, sinv.At(1, 1) / 2,
	})

	var eig mat.EigenSym
	if !eig.Factorize(a, true) {
		return ellipse{}, ErrNoConvergence
	}
	vals := eig.Values(nil) // ascending
	if vals[0] <= 0 {
		return ellipse{}, ErrNoConvergence
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// The smallest eigenvalue of A belongs to the longest axis.
	return ellipse{
		semiMajor: 1 / math.Sqrt(vals[0]),
		semiMinor: 1 / math.Sqrt(vals[1]),
		angle:     math.Atan2(vecs.At(1, 0), vecs.At(0, 0)),
	}, nil
}

// boundaryPoints samples nsamps evenly spaced points on the boundary of
// each beam's half-power ellipse. The sampling is deterministic, so the
// search result is reproducible for identical inputs.
func boundaryPoints(beams []Beam, nsamps int) (xs, ys []float64) {
	xs = make([]float64, 0, len(beams)*nsamps)
	ys = make([]float64, 0, len(beams)*nsamps)
	for _, b := range beams {
		a := b.Major / 2
		c := b.Minor / 2
		phi := b.paRad()
		cosPhi, sinPhi := math.Cos(phi), math.Sin(phi)
		for k := 0; k < nsamps; k++ {
			theta := 2 * math.Pi * float64(k) / float64(nsamps)
			ex := a * math.Cos(theta)
			ey := c * math.Sin(theta)
			xs = append(xs, ex*cosPhi-ey*sinPhi)
			ys = append(ys, ex*sinPhi+ey*cosPhi)
		}
	}
	return xs, ys
}
