// Package homography provides 3x3 projective transforms and the small amount
// of linear algebra needed to build and apply them.
//
// A Homography is stored row-major. Composition follows matrix
// multiplication: a.Mul(b) applies b first, then a.
package homography

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
)

const (
	// SingularTolerance bounds |det| relative to the cube of the largest entry.
	SingularTolerance = 1e-12
	// InfinityTolerance bounds |w| relative to the largest homogeneous component.
	InfinityTolerance = 1e-12
)

var (
	// ErrSingularMatrix is returned when a matrix has no numerically stable inverse.
	ErrSingularMatrix = errors.New("singular matrix")
	// ErrPointAtInfinity is returned when a mapped point has w ~ 0.
	ErrPointAtInfinity = errors.New("point at infinity")
	// ErrSVDFailed is returned when the singular value decomposition does not converge.
	ErrSVDFailed = errors.New("singular value decomposition failed")
)

// Homography is a row-major 3x3 projective transform.
type Homography f64.Mat3

// Identity returns the identity transform.
func Identity() Homography {
	return Homography{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// FromSlice copies nine row-major values.
func FromSlice(v []float64) (Homography, error) {
	if len(v) != 9 {
		return Homography{}, fmt.Errorf("homography needs 9 values, got %d", len(v))
	}
	var h Homography
	copy(h[:], v)
	return h, nil
}

// FromDense converts a 3x3 gonum matrix.
func FromDense(m mat.Matrix) (Homography, error) {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return Homography{}, fmt.Errorf("expected 3x3 matrix, got %dx%d", r, c)
	}
	var h Homography
	for i := range 3 {
		for j := range 3 {
			h[3*i+j] = m.At(i, j)
		}
	}
	return h, nil
}

// Dense returns a gonum copy of h.
func (h Homography) Dense() *mat.Dense {
	return mat.NewDense(3, 3, h.Slice())
}

// Slice returns the nine values in row-major order.
func (h Homography) Slice() []float64 {
	out := make([]float64, 9)
	copy(out, h[:])
	return out
}

// At returns the entry at row r, column c.
func (h Homography) At(r, c int) float64 { return h[3*r+c] }

// Mul returns h*o, the transform that applies o and then h.
func (h Homography) Mul(o Homography) Homography {
	var out Homography
	for i := range 3 {
		for j := range 3 {
			out[3*i+j] = h[3*i]*o[j] + h[3*i+1]*o[3+j] + h[3*i+2]*o[6+j]
		}
	}
	return out
}

// Compose multiplies transforms left to right: Compose(a, b, c) == a*b*c.
func Compose(hs ...Homography) Homography {
	out := Identity()
	for _, h := range hs {
		out = out.Mul(h)
	}
	return out
}

// Transpose returns h^T.
func (h Homography) Transpose() Homography {
	return Homography{h[0], h[3], h[6], h[1], h[4], h[7], h[2], h[5], h[8]}
}

// Scale multiplies every entry by s.
func (h Homography) Scale(s float64) Homography {
	for i := range h {
		h[i] *= s
	}
	return h
}

// Det returns the determinant.
func (h Homography) Det() float64 {
	return h[0]*(h[4]*h[8]-h[5]*h[7]) -
		h[1]*(h[3]*h[8]-h[5]*h[6]) +
		h[2]*(h[3]*h[7]-h[4]*h[6])
}

// MaxAbs returns the largest absolute entry.
func (h Homography) MaxAbs() float64 {
	m := 0.0
	for _, v := range h {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// IsFinite reports whether every entry is a finite number.
func (h Homography) IsFinite() bool {
	for _, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Inverse returns h^-1 using the adjugate. It fails with ErrSingularMatrix
// when the determinant is negligible relative to the matrix scale.
func (h Homography) Inverse() (Homography, error) {
	scale := h.MaxAbs()
	det := h.Det()
	if scale == 0 || !h.IsFinite() || math.Abs(det) <= SingularTolerance*scale*scale*scale {
		return Homography{}, ErrSingularMatrix
	}
	adj := Homography{
		h[4]*h[8] - h[5]*h[7], h[2]*h[7] - h[1]*h[8], h[1]*h[5] - h[2]*h[4],
		h[5]*h[6] - h[3]*h[8], h[0]*h[8] - h[2]*h[6], h[2]*h[3] - h[0]*h[5],
		h[3]*h[7] - h[4]*h[6], h[1]*h[6] - h[0]*h[7], h[0]*h[4] - h[1]*h[3],
	}
	return adj.Scale(1 / det), nil
}

// Normalize rescales h so that h[8] == 1, or to unit Frobenius norm when
// h[8] is negligible. The projective map is unchanged.
func (h Homography) Normalize() Homography {
	scale := h.MaxAbs()
	if scale == 0 {
		return h
	}
	if math.Abs(h[8]) > InfinityTolerance*scale {
		return h.Scale(1 / h[8])
	}
	norm := 0.0
	for _, v := range h {
		norm += v * v
	}
	return h.Scale(1 / math.Sqrt(norm))
}

// ApplyHomogeneous returns h*v.
func (h Homography) ApplyHomogeneous(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: h[0]*v.X + h[1]*v.Y + h[2]*v.Z,
		Y: h[3]*v.X + h[4]*v.Y + h[5]*v.Z,
		Z: h[6]*v.X + h[7]*v.Y + h[8]*v.Z,
	}
}

// Apply maps the pixel (x, y) and de-homogenizes the result. It returns
// ErrPointAtInfinity when the mapped point has no finite image.
func (h Homography) Apply(x, y float64) (float64, float64, error) {
	v := h.ApplyHomogeneous(r3.Vector{X: x, Y: y, Z: 1})
	p, err := Dehomogenize(v)
	return p.X, p.Y, err
}

// ApplyPoint is Apply for r2 points.
func (h Homography) ApplyPoint(p r2.Point) (r2.Point, error) {
	x, y, err := h.Apply(p.X, p.Y)
	return r2.Point{X: x, Y: y}, err
}

// Dehomogenize divides by the third component.
func Dehomogenize(v r3.Vector) (r2.Point, error) {
	m := math.Max(math.Abs(v.X), math.Abs(v.Y))
	if math.Abs(v.Z) <= InfinityTolerance*m || v.Z == 0 {
		return r2.Point{}, ErrPointAtInfinity
	}
	return r2.Point{X: v.X / v.Z, Y: v.Y / v.Z}, nil
}

// ApproxEqual compares two homographies after normalization.
func ApproxEqual(a, b Homography, tol float64) bool {
	a, b = a.Normalize(), b.Normalize()
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// String formats h as three rows.
func (h Homography) String() string {
	return fmt.Sprintf("[%g %g %g; %g %g %g; %g %g %g]", h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7], h[8])
}
