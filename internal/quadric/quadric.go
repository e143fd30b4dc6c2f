// Package quadric implements the algebra of quadratic forms
// <x|Q|x> + <R|x> + S = const used to describe instrumental
// resolution volumes in (h,k,l,E) space.
package quadric

import (
	"errors"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotPositiveDefinite indicates a degenerate or indefinite quadric
	// after reduction; the resolution configuration is invalid.
	ErrNotPositiveDefinite = errors.New("quadric: matrix is not positive definite")
	// ErrSingular indicates the linear system for the centre shift cannot be solved.
	ErrSingular = errors.New("quadric: matrix is singular")
)

// Conversion factors between a Gaussian sigma and its half/full widths.
var (
	SigmaToHWHM = math.Sqrt(2. * math.Ln2)
	SigmaToFWHM = 2. * math.Sqrt(2.*math.Ln2)
)

// epsZero is the absolute threshold below which a diagonal element is
// treated as a flat direction that cannot be integrated out.
const epsZero = 1e-12

// Quadric is a quadratic form of dimension n: quadratic part Q (symmetric),
// linear part R and constant S. Values are never mutated after construction;
// Project and Slice derive reduced copies.
type Quadric struct {
	Q *mat.SymDense
	R *mat.VecDense
	S float64
}

// New builds a quadric from a full row-major n*n matrix (must be symmetric),
// a linear part of length n (may be nil for a centred quadric) and a constant.
func New(n int, q []float64, r []float64, s float64) Quadric {
	sym := mat.NewSymDense(n, q)
	var lin *mat.VecDense
	if r != nil {
		lin = mat.NewVecDense(n, append([]float64(nil), r...))
	} else {
		lin = mat.NewVecDense(n, nil)
	}
	return Quadric{Q: sym, R: lin, S: s}
}

// Dim returns the dimension of the quadratic form.
func (qu Quadric) Dim() int { return qu.Q.SymmetricDim() }

// Clone returns a deep copy.
func (qu Quadric) Clone() Quadric {
	n := qu.Dim()
	q := mat.NewSymDense(n, nil)
	q.CopySym(qu.Q)
	r := mat.NewVecDense(n, nil)
	r.CopyVec(qu.R)
	return Quadric{Q: q, R: r, S: qu.S}
}

// Slice removes dimension idx by conditioning: row and column idx are
// deleted outright, cross terms do not redistribute into the remainder.
func (qu Quadric) Slice(idx int) Quadric {
	n := qu.Dim()
	out := Quadric{Q: mat.NewSymDense(n-1, nil), R: mat.NewVecDense(n-1, nil), S: qu.S}
	for i, si := 0, 0; i < n; i++ {
		if i == idx {
			continue
		}
		out.R.SetVec(si, qu.R.AtVec(i))
		for j, sj := 0, 0; j < n; j++ {
			if j == idx {
				continue
			}
			if sj >= si {
				out.Q.SetSym(si, sj, qu.Q.At(i, j))
			}
			sj++
		}
		si++
	}
	return out
}

// Project removes dimension idx by marginalisation, following rc_int from
// rescal: subtract the outer product of row idx scaled by 1/Q[idx][idx],
// then delete row and column idx. The linear part is reduced with the same
// projector. If the diagonal element is numerically zero the direction is
// flat and cannot be integrated; the quadric is sliced instead and the
// second return value reports the fallback.
func (qu Quadric) Project(idx int) (Quadric, bool) {
	n := qu.Dim()
	qii := qu.Q.At(idx, idx)
	if math.Abs(qii) < epsZero {
		logrus.Warnf("quadric: cannot project dimension %d, slicing instead", idx)
		return qu.Slice(idx), true
	}

	// symmetric matrix: column idx equals row idx, so b is just the row
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		b[i] = qu.Q.At(i, idx)
	}

	red := qu.Clone()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			red.Q.SetSym(i, j, qu.Q.At(i, j)-b[i]*b[j]/qii)
		}
	}
	scale := qu.R.AtVec(idx) / qii
	for i := 0; i < n; i++ {
		red.R.SetVec(i, qu.R.AtVec(i)-scale*b[i])
	}
	return red.Slice(idx), false
}

// Principal holds the principal-axis decomposition of a quadric.
type Principal struct {
	// Rot has the principal axes as columns; it is orthonormal.
	Rot *mat.Dense
	// Evals are the eigenvalues in ascending order, all positive.
	Evals []float64
	// Radii are the Gaussian sigmas per principal axis, 1/sqrt(eval).
	Radii []float64

	offset *mat.VecDense // centre shift in the principal frame
}

// Principal decomposes the quadratic part into principal axes. It fails with
// ErrNotPositiveDefinite if any eigenvalue is not strictly positive, which
// indicates an invalid resolution configuration and is never clamped.
func (qu Quadric) Principal() (*Principal, error) {
	n := qu.Dim()

	var es mat.EigenSym
	if ok := es.Factorize(qu.Q, true); !ok {
		return nil, ErrNotPositiveDefinite
	}
	evals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// keep the principal system right-handed
	if mat.Det(&vecs) < 0 {
		for i := 0; i < n; i++ {
			vecs.Set(i, n-1, -vecs.At(i, n-1))
		}
	}

	radii := make([]float64, n)
	for i, ev := range evals {
		if ev <= epsZero {
			return nil, ErrNotPositiveDefinite
		}
		radii[i] = 1. / math.Sqrt(ev)
	}

	// centre shift from the linear part: t = -0.5 * Q^-1 * R,
	// expressed in the principal frame as rot^T * t
	shift := mat.NewVecDense(n, nil)
	if err := shift.SolveVec(qu.Q, qu.R); err != nil {
		return nil, ErrSingular
	}
	shift.ScaleVec(-0.5, shift)
	prOffs := mat.NewVecDense(n, nil)
	prOffs.MulVec(vecs.T(), shift)

	return &Principal{Rot: &vecs, Evals: evals, Radii: radii, offset: prOffs}, nil
}

// Offset returns the centre shift induced by the linear part, expressed in
// the principal-axis frame.
func (p *Principal) Offset() *mat.VecDense {
	out := mat.NewVecDense(p.offset.Len(), nil)
	out.CopyVec(p.offset)
	return out
}

// CenterShift returns the centre shift in the original frame,
// rot * Offset, i.e. -0.5 * Q^-1 * R.
func (p *Principal) CenterShift() *mat.VecDense {
	n := p.offset.Len()
	out := mat.NewVecDense(n, nil)
	out.MulVec(p.Rot, p.offset)
	return out
}

// Volume returns the volume of the sigma-ellipsoid: the product of the
// radii times the unit-ball volume factor of the dimension.
func (p *Principal) Volume() float64 {
	n := len(p.Radii)
	vol := math.Pow(math.Pi, float64(n)/2.) / math.Gamma(float64(n)/2.+1.)
	for _, r := range p.Radii {
		vol *= r
	}
	return vol
}
