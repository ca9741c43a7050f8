package epipolar

import (
	"errors"
	"math"
	"testing"

	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/MeKo-Tech/stereorect/internal/testutil"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rigPairs(t *testing.T, rig testutil.StereoRig, n int, seed uint64) []AssociatedPair {
	t.Helper()
	left, right := rig.Correspondences(n, seed)
	require.Len(t, left, n, "rig should produce %d visible points", n)
	pairs := make([]AssociatedPair, n)
	for i := range left {
		pairs[i] = AssociatedPair{Left: left[i], Right: right[i]}
	}
	return pairs
}

func assertRowsAligned(t *testing.T, rect1, rect2 homography.Homography, pairs []AssociatedPair, tol float64) {
	t.Helper()
	for i, p := range pairs {
		l, err := rect1.ApplyPoint(p.Left)
		require.NoError(t, err)
		r, err := rect2.ApplyPoint(p.Right)
		require.NoError(t, err)
		assert.InDelta(t, l.Y, r.Y, tol, "pair %d rows differ", i)
	}
}

func TestProcessVergedRigAlignsRows(t *testing.T) {
	rig := testutil.VergedRig(640, 480)
	pairs := rigPairs(t, rig, 40, 1)

	solver, err := NewFundamental(DefaultConfig())
	require.NoError(t, err)
	res, err := solver.Process(rig.Fundamental(), pairs, rig.Width, rig.Height)
	require.NoError(t, err)

	assertRowsAligned(t, res.Rect1, res.Rect2, pairs, 1e-3)
	assert.Less(t, res.Diagnostics.RowResidual, 1e-3)
	assert.False(t, res.Diagnostics.LeftEpipoleInside)
	assert.False(t, res.Diagnostics.RightEpipoleInside)
	assert.False(t, res.Diagnostics.EpipoleAtInfinity)

	// Epipoles satisfy F e1 = 0 and e2^T F = 0.
	f := rig.Fundamental()
	f = f.Scale(1 / f.MaxAbs())
	e := res.Diagnostics.Epipoles
	assert.InDelta(t, 0, f.ApplyHomogeneous(e.Left).Norm(), 1e-9)
	assert.InDelta(t, 0, f.Transpose().ApplyHomogeneous(e.Right).Norm(), 1e-9)
}

func TestProcessAlignsAfterFitView(t *testing.T) {
	rig := testutil.VergedRig(640, 480)
	pairs := rigPairs(t, rig, 20, 7)

	rect1, rect2, err := ComputeRectification(rig.Fundamental(), pairs, rig.Width, rig.Height)
	require.NoError(t, err)

	for _, mode := range []ViewMode{ViewFull, ViewInside} {
		t.Run(mode.String(), func(t *testing.T) {
			a1, a2, err := FitView(mode, rig.Width, rig.Height, rect1, rect2, false)
			require.NoError(t, err)
			assertRowsAligned(t, a1, a2, pairs, 1e-3)
		})
	}
}

func TestProcessScaleInvariantInF(t *testing.T) {
	rig := testutil.VergedRig(640, 480)
	pairs := rigPairs(t, rig, 12, 3)
	f := rig.Fundamental()

	a1, a2, err := ComputeRectification(f, pairs, rig.Width, rig.Height)
	require.NoError(t, err)
	b1, b2, err := ComputeRectification(f.Scale(-1e4), pairs, rig.Width, rig.Height)
	require.NoError(t, err)

	assert.True(t, homography.ApproxEqual(a1, b1, 1e-6), "rect1 %v vs %v", a1, b1)
	assert.True(t, homography.ApproxEqual(a2, b2, 1e-6), "rect2 %v vs %v", a2, b2)
}

func TestProcessPureTranslation(t *testing.T) {
	rig := testutil.CanonicalRig(640, 480)
	pairs := rigPairs(t, rig, 30, 2)

	solver, err := NewFundamental(DefaultConfig())
	require.NoError(t, err)
	res, err := solver.Process(rig.Fundamental(), pairs, rig.Width, rig.Height)
	require.NoError(t, err)
	assert.True(t, res.Diagnostics.EpipoleAtInfinity)

	rect1, rect2, err := FitView(ViewFull, rig.Width, rig.Height, res.Rect1, res.Rect2, false)
	require.NoError(t, err)

	for _, h := range []homography.Homography{rect1, rect2} {
		// Linear part close to identity, no projective component.
		assert.InDelta(t, 1, h[0], 0.05)
		assert.InDelta(t, 0, h[1], 0.05)
		assert.InDelta(t, 0, h[3], 0.05)
		assert.InDelta(t, 1, h[4], 0.05)
		assert.InDelta(t, 0, h[6], 1e-9)
		assert.InDelta(t, 0, h[7], 1e-9)
	}
	// Rows are not moved at all.
	assert.InDelta(t, 0, rect1[5], 1e-6)
	assert.InDelta(t, 0, rect2[5], 1e-6)
	assertRowsAligned(t, rect1, rect2, pairs, 1e-6)
}

func TestProcessTooFewPairs(t *testing.T) {
	rig := testutil.VergedRig(640, 480)
	pairs := rigPairs(t, rig, 3, 4)

	_, _, err := ComputeRectification(rig.Fundamental(), pairs, rig.Width, rig.Height)
	require.ErrorIs(t, err, ErrDegenerateGeometry)

	_, _, err = ComputeRectification(rig.Fundamental(), nil, rig.Width, rig.Height)
	require.ErrorIs(t, err, ErrDegenerateGeometry)
}

func TestProcessCollinearPairs(t *testing.T) {
	rig := testutil.VergedRig(640, 480)
	pairs := make([]AssociatedPair, 10)
	for i := range pairs {
		x := 50 + 40*float64(i)
		pairs[i] = NewPair(x, 100+0.5*x, x-20, 110+0.5*x)
	}
	_, _, err := ComputeRectification(rig.Fundamental(), pairs, rig.Width, rig.Height)
	require.ErrorIs(t, err, ErrDegenerateGeometry)

	// Identical points have no spread either.
	for i := range pairs {
		pairs[i] = NewPair(10, 10, 20, 20)
	}
	_, _, err = ComputeRectification(rig.Fundamental(), pairs, rig.Width, rig.Height)
	require.ErrorIs(t, err, ErrDegenerateGeometry)
}

func TestProcessInvalidCorrespondence(t *testing.T) {
	rig := testutil.VergedRig(640, 480)
	tests := []struct {
		name string
		bad  AssociatedPair
	}{
		{"nan", NewPair(math.NaN(), 1, 2, 3)},
		{"inf", NewPair(1, 2, math.Inf(-1), 3)},
		{"huge", NewPair(1, 2, 3, 1e9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs := rigPairs(t, rig, 10, 5)
			pairs[6] = tt.bad
			_, _, err := ComputeRectification(rig.Fundamental(), pairs, rig.Width, rig.Height)
			require.ErrorIs(t, err, ErrInvalidCorrespondence)

			var ce *CorrespondenceError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, 6, ce.Index)
		})
	}
}

func TestProcessDegenerateFundamental(t *testing.T) {
	rig := testutil.VergedRig(640, 480)
	pairs := rigPairs(t, rig, 10, 6)

	tests := []struct {
		name string
		f    homography.Homography
	}{
		{"zero", homography.Homography{}},
		{"full rank", homography.Homography{1, 0.2, 0, 0.1, 1, 0.3, 0, 0.4, 1}},
		{"rank one", homography.Outer(rig.T, rig.T)},
		{"nan", homography.Homography{math.NaN(), 0, 0, 0, 0, -1, 0, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ComputeRectification(tt.f, pairs, rig.Width, rig.Height)
			require.ErrorIs(t, err, ErrDegenerateGeometry)
		})
	}
}

func TestProcessEpipoleInside(t *testing.T) {
	// Forward motion puts the epipoles near the image center.
	rig := testutil.CanonicalRig(640, 480)
	rig.T.X, rig.T.Y, rig.T.Z = -0.02, 0.01, -0.5
	pairs := rigPairs(t, rig, 20, 8)

	cfg := DefaultConfig()
	solver, err := NewFundamental(cfg)
	require.NoError(t, err)
	res, err := solver.Process(rig.Fundamental(), pairs, rig.Width, rig.Height)
	require.NoError(t, err)
	assert.True(t, res.Diagnostics.LeftEpipoleInside)
	assert.True(t, res.Diagnostics.RightEpipoleInside)

	cfg.RejectEpipoleInside = true
	strict, err := NewFundamental(cfg)
	require.NoError(t, err)
	_, err = strict.Process(rig.Fundamental(), pairs, rig.Width, rig.Height)
	require.ErrorIs(t, err, ErrDegenerateGeometry)
}

func TestProcessAcceptsNearlyRankTwoF(t *testing.T) {
	rig := testutil.VergedRig(640, 480)
	pairs := rigPairs(t, rig, 40, 1)
	f := rig.Fundamental()

	// Add a rank-one term that lifts s3 to about 1e-4 * s2, ten times
	// below the rank tolerance.
	svd, err := homography.Decompose(f)
	require.NoError(t, err)
	a := r3.Vector{X: 0.6, Y: -0.3, Z: 0.74}.Normalize()
	b := r3.Vector{X: -0.2, Y: 0.5, Z: 0.84}.Normalize()
	gain := math.Abs(svd.LeftNullVector().Dot(a) * b.Dot(svd.NullVector()))
	require.Greater(t, gain, 1e-3)
	perturbed := f.Add(homography.Outer(a, b).Scale(1e-4 * svd.Values[1] / gain))

	cfg := DefaultConfig()
	solver, err := NewFundamental(cfg)
	require.NoError(t, err)
	res, err := solver.Process(perturbed, pairs, rig.Width, rig.Height)
	require.NoError(t, err)

	s := res.Diagnostics.SingularValues
	ratio := s[2] / s[1]
	assert.Greater(t, ratio, 5e-5)
	assert.Less(t, ratio, cfg.RankTolerance)
	// The rank-2 projection moves the epipoles a little; rows stay within
	// a couple of pixels.
	assertRowsAligned(t, res.Rect1, res.Rect2, pairs, 2)
	assert.Less(t, res.Diagnostics.RowResidual, 1.5)
}

func TestProcessNoisyCorrespondences(t *testing.T) {
	rig := testutil.VergedRig(640, 480)
	left, right := rig.Correspondences(40, 4)
	require.Len(t, left, 40)
	noisyLeft := testutil.Noisy(left, 0.5, 11)
	noisyRight := testutil.Noisy(right, 0.5, 12)
	clean := make([]AssociatedPair, len(left))
	noisy := make([]AssociatedPair, len(left))
	for i := range left {
		clean[i] = AssociatedPair{Left: left[i], Right: right[i]}
		noisy[i] = AssociatedPair{Left: noisyLeft[i], Right: noisyRight[i]}
	}

	solver, err := NewFundamental(DefaultConfig())
	require.NoError(t, err)
	res, err := solver.Process(rig.Fundamental(), noisy, rig.Width, rig.Height)
	require.NoError(t, err)

	// Rows come from F alone; the pairs only shape the horizontal fit.
	assert.Greater(t, res.Diagnostics.RowResidual, 0.0)
	assert.Less(t, res.Diagnostics.RowResidual, 0.75)
	assertRowsAligned(t, res.Rect1, res.Rect2, clean, 1e-6)
}

func TestProcessEpipoleAtCenter(t *testing.T) {
	// Pure forward motion: epipole exactly at the principal point, which is the image center.
	rig := testutil.CanonicalRig(640, 480)
	rig.T.X, rig.T.Z = 0, -0.5
	pairs := rigPairs(t, rig, 20, 9)

	_, _, err := ComputeRectification(rig.Fundamental(), pairs, rig.Width, rig.Height)
	require.ErrorIs(t, err, ErrDegenerateGeometry)
}

func TestProcessInvalidSize(t *testing.T) {
	rig := testutil.VergedRig(640, 480)
	pairs := rigPairs(t, rig, 10, 10)
	_, _, err := ComputeRectification(rig.Fundamental(), pairs, 0, 480)
	require.ErrorIs(t, err, ErrDegenerateGeometry)
}

func TestNewFundamentalRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinCorrespondences = 3
	_, err := NewFundamental(cfg)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.RankTolerance = 0
	_, err = NewFundamental(cfg)
	require.Error(t, err)
}

func TestComputeEpipolesCanonicalSign(t *testing.T) {
	rig := testutil.CanonicalRig(640, 480)
	e, err := ComputeEpipoles(rig.Fundamental().Scale(-1))
	require.NoError(t, err)
	assert.InDelta(t, 1, e.Left.X, 1e-9)
	assert.InDelta(t, 1, e.Right.X, 1e-9)
}

func TestSpreadRatio(t *testing.T) {
	square := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	assert.InDelta(t, 1, spreadRatio(square), 1e-12)

	line := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 2}, {X: 2, Y: 4}, {X: 3, Y: 6}}
	assert.Less(t, spreadRatio(line), 1e-12)
}
