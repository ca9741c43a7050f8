package homography

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityApply(t *testing.T) {
	x, y, err := Identity().Apply(10, 20)
	require.NoError(t, err)
	assert.InDelta(t, 10, x, 1e-12)
	assert.InDelta(t, 20, y, 1e-12)
}

func TestApplyPointAtInfinity(t *testing.T) {
	h := Identity()
	h[8] = 0
	_, _, err := h.Apply(0, 0)
	require.ErrorIs(t, err, ErrPointAtInfinity)

	// w vanishes on the line x = 1
	h = Homography{1, 0, 0, 0, 1, 0, -1, 0, 1}
	_, _, err = h.Apply(1, 5)
	require.ErrorIs(t, err, ErrPointAtInfinity)
	_, _, err = h.Apply(0.5, 5)
	require.NoError(t, err)
}

func TestMulOrder(t *testing.T) {
	// Scale first, then translate.
	h := Translation(5, 0).Mul(Scaling(2, 2))
	x, y, err := h.Apply(1, 1)
	require.NoError(t, err)
	assert.InDelta(t, 7, x, 1e-12)
	assert.InDelta(t, 2, y, 1e-12)

	c := Compose(Translation(5, 0), Scaling(2, 2))
	assert.Equal(t, h, c)
}

func TestInverse(t *testing.T) {
	h := Homography{2, 0.5, 10, -0.3, 1.5, 4, 0.001, 0.002, 1}
	inv, err := h.Inverse()
	require.NoError(t, err)
	assert.True(t, ApproxEqual(Identity(), h.Mul(inv), 1e-9))
	assert.True(t, ApproxEqual(Identity(), inv.Mul(h), 1e-9))
}

func TestInverseSingular(t *testing.T) {
	tests := []struct {
		name string
		h    Homography
	}{
		{"zero", Homography{}},
		{"rank one", Outer(r3.Vector{X: 1, Y: 2, Z: 3}, r3.Vector{X: 1, Y: 1, Z: 1})},
		{"rank two", CrossMatrix(r3.Vector{X: 1, Y: 0, Z: 0})},
		{"nan", Homography{math.NaN(), 0, 0, 0, 1, 0, 0, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.h.Inverse()
			require.ErrorIs(t, err, ErrSingularMatrix)
		})
	}
}

func TestNormalize(t *testing.T) {
	h := Translation(3, 4).Scale(-2.5)
	n := h.Normalize()
	assert.InDelta(t, 1, n[8], 1e-12)
	assert.InDelta(t, 3, n[2], 1e-12)

	// h[8] == 0 falls back to unit norm
	z := Homography{0, 0, 3, 0, 0, 4, 0, 0, 0}.Normalize()
	assert.InDelta(t, 0.6, z[2], 1e-12)
	assert.InDelta(t, 0.8, z[5], 1e-12)
}

func TestDetAndTranspose(t *testing.T) {
	h := Homography{1, 2, 3, 0, 1, 4, 5, 6, 0}
	assert.InDelta(t, 1, h.Det(), 1e-12)
	assert.InDelta(t, h.Det(), h.Transpose().Det(), 1e-12)
	assert.Equal(t, h, h.Transpose().Transpose())
}

func TestCrossMatrix(t *testing.T) {
	a := r3.Vector{X: 1, Y: -2, Z: 0.5}
	b := r3.Vector{X: 3, Y: 4, Z: -1}
	got := CrossMatrix(a).ApplyHomogeneous(b)
	want := a.Cross(b)
	assert.InDelta(t, want.X, got.X, 1e-12)
	assert.InDelta(t, want.Y, got.Y, 1e-12)
	assert.InDelta(t, want.Z, got.Z, 1e-12)
}

func TestFlipYInvolution(t *testing.T) {
	f := FlipY(480)
	x, y, err := f.Apply(3, 0)
	require.NoError(t, err)
	assert.InDelta(t, 3, x, 1e-12)
	assert.InDelta(t, 479, y, 1e-12)
	assert.Equal(t, Identity(), f.Mul(f))
}

func TestRotation(t *testing.T) {
	x, y, err := Rotation(math.Pi/2).Apply(1, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0, x, 1e-12)
	assert.InDelta(t, 1, y, 1e-12)
}

func TestFromSlice(t *testing.T) {
	h, err := FromSlice([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	require.NoError(t, err)
	assert.InDelta(t, 6, h.At(1, 2), 0)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, h.Slice())

	_, err = FromSlice([]float64{1, 2})
	require.Error(t, err)
}

func TestDenseRoundTrip(t *testing.T) {
	h := Homography{1, 2, 3, 4, 5, 6, 7, 8, 10}
	back, err := FromDense(h.Dense())
	require.NoError(t, err)
	assert.Equal(t, h, back)
}
