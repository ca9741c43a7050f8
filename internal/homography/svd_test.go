package homography

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecomposeReconstructs(t *testing.T) {
	h := Homography{4, 1, -2, 0.5, 3, 1, -1, 2, 5}
	s, err := Decompose(h)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, s.Values[0], s.Values[1])
	assert.GreaterOrEqual(t, s.Values[1], s.Values[2])

	d := Homography{s.Values[0], 0, 0, 0, s.Values[1], 0, 0, 0, s.Values[2]}
	back := s.U.Mul(d).Mul(s.V.Transpose())
	for i := range h {
		assert.InDelta(t, h[i], back[i], 1e-9)
	}
}

func TestNullVectorOfRankTwo(t *testing.T) {
	e := r3.Vector{X: 3, Y: -1, Z: 2}
	f := CrossMatrix(e) // f * e == 0

	n, err := NullVector(f)
	require.NoError(t, err)
	assert.InDelta(t, 1, n.Norm(), 1e-12)
	assert.InDelta(t, 1, math.Abs(n.Dot(e.Normalize())), 1e-9)

	s, err := Decompose(f)
	require.NoError(t, err)
	left := s.LeftNullVector()
	res := f.Transpose().ApplyHomogeneous(left)
	assert.InDelta(t, 0, res.Norm(), 1e-9)
}

func TestDecomposeRejectsNaN(t *testing.T) {
	_, err := Decompose(Homography{math.NaN()})
	require.ErrorIs(t, err, ErrSVDFailed)
	_, err = NullVector(Homography{math.Inf(1)})
	require.ErrorIs(t, err, ErrSVDFailed)
}

func TestEnforceRank2(t *testing.T) {
	f := CrossMatrix(r3.Vector{X: 1, Y: 2, Z: 3}).Add(Homography{1e-4, 0, 0, 0, -2e-4, 0, 0, 0, 3e-4})
	r, err := EnforceRank2(f)
	require.NoError(t, err)
	assert.InDelta(t, 0, r.Det(), 1e-12)

	s, err := Decompose(r)
	require.NoError(t, err)
	assert.InDelta(t, 0, s.Values[2], 1e-12)
}
