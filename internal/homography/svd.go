package homography

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// SVD holds the factors of h = U * diag(Values) * V^T with singular values
// sorted in decreasing order.
type SVD struct {
	U      Homography
	Values [3]float64
	V      Homography
}

// Decompose computes the full singular value decomposition of h.
func Decompose(h Homography) (SVD, error) {
	if !h.IsFinite() {
		return SVD{}, ErrSVDFailed
	}
	var svd mat.SVD
	if ok := svd.Factorize(h.Dense(), mat.SVDFull); !ok {
		return SVD{}, ErrSVDFailed
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	out := SVD{}
	copy(out.Values[:], values)
	var err error
	if out.U, err = FromDense(&u); err != nil {
		return SVD{}, err
	}
	if out.V, err = FromDense(&v); err != nil {
		return SVD{}, err
	}
	return out, nil
}

// NullVector returns the right singular vector for the smallest singular
// value, i.e. the unit vector x minimising |h x|.
func (s SVD) NullVector() r3.Vector {
	return r3.Vector{X: s.V[2], Y: s.V[5], Z: s.V[8]}
}

// LeftNullVector returns the unit vector y minimising |y^T h|.
func (s SVD) LeftNullVector() r3.Vector {
	return r3.Vector{X: s.U[2], Y: s.U[5], Z: s.U[8]}
}

// Rank2 rebuilds the matrix with the smallest singular value zeroed.
func (s SVD) Rank2() Homography {
	d := Homography{s.Values[0], 0, 0, 0, s.Values[1], 0, 0, 0, 0}
	return s.U.Mul(d).Mul(s.V.Transpose())
}

// NullVector returns the unit right null vector of h.
func NullVector(h Homography) (r3.Vector, error) {
	s, err := Decompose(h)
	if err != nil {
		return r3.Vector{}, err
	}
	return s.NullVector(), nil
}

// EnforceRank2 projects h onto the closest rank-2 matrix in Frobenius norm.
func EnforceRank2(h Homography) (Homography, error) {
	s, err := Decompose(h)
	if err != nil {
		return Homography{}, err
	}
	return s.Rank2(), nil
}
