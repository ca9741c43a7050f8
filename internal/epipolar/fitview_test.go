package epipolar

import (
	"image"
	"math"
	"testing"

	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/MeKo-Tech/stereorect/internal/testutil"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseViewMode(t *testing.T) {
	m, err := ParseViewMode("Inside")
	require.NoError(t, err)
	assert.Equal(t, ViewInside, m)

	m, err = ParseViewMode("")
	require.NoError(t, err)
	assert.Equal(t, ViewFull, m)

	_, err = ParseViewMode("crop")
	require.Error(t, err)
	assert.Equal(t, "full", ViewFull.String())
}

func TestFitViewFullCoversOutput(t *testing.T) {
	rect1 := homography.Compose(homography.Translation(-300, 40), homography.Scaling(0.5, 0.5))
	rect2 := homography.Translation(7, 0).Mul(rect1)

	a1, a2, err := FitView(ViewFull, 640, 480, rect1, rect2, false)
	require.NoError(t, err)

	// The left image now spans the output width exactly.
	x0, y0, err := a1.Apply(0, 0)
	require.NoError(t, err)
	x1, y1, err := a1.Apply(639, 479)
	require.NoError(t, err)
	assert.InDelta(t, 0, x0, 1e-9)
	assert.InDelta(t, 0, y0, 1e-9)
	assert.InDelta(t, 639, x1, 1e-9)
	assert.InDelta(t, 479, y1, 1e-9)

	// The companion keeps its offset in the common frame.
	u, v, err := a2.Apply(0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 14, u, 1e-9)
	assert.InDelta(t, 0, v, 1e-9)
}

func TestFitViewIdentityIsUnchanged(t *testing.T) {
	for _, mode := range []ViewMode{ViewFull, ViewInside} {
		a1, a2, err := FitView(mode, 320, 240, homography.Identity(), homography.Identity(), false)
		require.NoError(t, err)
		assert.True(t, homography.ApproxEqual(homography.Identity(), a1, 1e-9), "%v: %v", mode, a1)
		assert.True(t, homography.ApproxEqual(homography.Identity(), a2, 1e-9), "%v: %v", mode, a2)
	}
}

func TestFitViewInsideHasOnlyValidPixels(t *testing.T) {
	rect := homography.Homography{1, 0.1, 0, -0.05, 1, 0, 2e-4, 1e-4, 1}
	a1, _, err := FitView(ViewInside, 200, 150, rect, rect, false)
	require.NoError(t, err)

	inv, err := a1.Inverse()
	require.NoError(t, err)
	// Every output corner must sample inside the source image, up to the
	// border sampling density.
	for _, p := range [][2]float64{{0, 0}, {199, 0}, {199, 149}, {0, 149}, {100, 75}} {
		u, v, err := inv.Apply(p[0], p[1])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, u, -0.5, "corner %v", p)
		assert.GreaterOrEqual(t, v, -0.5, "corner %v", p)
		assert.LessOrEqual(t, u, 199+0.5, "corner %v", p)
		assert.LessOrEqual(t, v, 149+0.5, "corner %v", p)
	}
}

func TestFitViewLeftHanded(t *testing.T) {
	rect := homography.Compose(homography.Translation(10, -20), homography.Scaling(2, 2))
	a1, a2, err := FitView(ViewFull, 100, 80, rect, rect, true)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	// In pixel space the fitted transform spans the output.
	pix := PixelFrame(a1, 80, 80, true)
	x0, y0, err := pix.Apply(0, 0)
	require.NoError(t, err)
	x1, y1, err := pix.Apply(99, 79)
	require.NoError(t, err)
	assert.InDelta(t, 0, math.Min(x0, x1), 1e-9)
	assert.InDelta(t, 99, math.Max(x0, x1), 1e-9)
	assert.InDelta(t, 0, math.Min(y0, y1), 1e-9)
	assert.InDelta(t, 79, math.Max(y0, y1), 1e-9)
}

func TestFitViewStraddlingInfinity(t *testing.T) {
	// w = 1 - x/50 changes sign inside a 100 pixel wide image.
	rect := homography.Homography{1, 0, 0, 0, 1, 0, -1.0 / 50, 0, 1}
	_, _, err := FitView(ViewFull, 100, 100, rect, rect, false)
	require.ErrorIs(t, err, ErrDegenerateGeometry)
}

func TestFitViewCollapsed(t *testing.T) {
	rect := homography.Scaling(1, 0)
	_, _, err := FitView(ViewFull, 100, 100, rect, rect, false)
	require.ErrorIs(t, err, ErrDegenerateGeometry)

	_, _, err = FitView(ViewFull, 1, 100, homography.Identity(), homography.Identity(), false)
	require.ErrorIs(t, err, ErrDegenerateGeometry)
}

func TestFitViewToDifferentSize(t *testing.T) {
	a1, _, err := FitViewTo(ViewFull, image.Pt(641, 481), image.Pt(321, 241), homography.Identity(), homography.Identity(), false)
	require.NoError(t, err)
	x, y, err := a1.Apply(640, 480)
	require.NoError(t, err)
	assert.InDelta(t, 320, x, 1e-9)
	assert.InDelta(t, 240, y, 1e-9)
}

// genRectPair generates a rectified-looking transform pair sharing rows.
func genRectPair() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(-0.2, 0.2),   // shear
		gen.Float64Range(0.3, 3),      // scale
		gen.Float64Range(-500, 500),   // tx
		gen.Float64Range(-500, 500),   // ty
		gen.Float64Range(-3e-4, 3e-4), // projective x
		gen.Float64Range(-50, 50),     // companion x offset
	).Map(func(v []interface{}) [2]homography.Homography {
		s := v[1].(float64)
		r1 := homography.Homography{s, v[0].(float64), v[2].(float64), 0, s, v[3].(float64), v[4].(float64), 0, 1}
		r2 := homography.Translation(v[5].(float64), 0).Mul(r1)
		return [2]homography.Homography{r1, r2}
	})
}

// TestFitViewIdempotent verifies that fitting an already fitted pair changes nothing.
func TestFitViewIdempotent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	for _, mode := range []ViewMode{ViewFull, ViewInside} {
		for _, leftHanded := range []bool{false, true} {
			properties.Property(mode.String()+" fit is idempotent", prop.ForAll(
				func(pair [2]homography.Homography) bool {
					a1, a2, err := FitView(mode, 640, 480, pair[0], pair[1], leftHanded)
					if err != nil {
						return false
					}
					b1, b2, err := FitView(mode, 640, 480, a1, a2, leftHanded)
					if err != nil {
						return false
					}
					return homography.ApproxEqual(a1, b1, 1e-6) && homography.ApproxEqual(a2, b2, 1e-6)
				},
				genRectPair(),
			))
		}
	}

	properties.TestingRun(t)
}

func TestFitViewIdempotentOnSolverOutput(t *testing.T) {
	rig := testutil.VergedRig(640, 480)
	pairs := rigPairs(t, rig, 16, 11)
	rect1, rect2, err := ComputeRectification(rig.Fundamental(), pairs, rig.Width, rig.Height)
	require.NoError(t, err)

	a1, a2, err := FitView(ViewInside, rig.Width, rig.Height, rect1, rect2, false)
	require.NoError(t, err)
	b1, b2, err := FitView(ViewInside, rig.Width, rig.Height, a1, a2, false)
	require.NoError(t, err)
	assert.True(t, homography.ApproxEqual(a1, b1, 1e-6))
	assert.True(t, homography.ApproxEqual(a2, b2, 1e-6))
}
