package rectify

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/MeKo-Tech/stereorect/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSideBySide(t *testing.T) {
	left := testutil.Uniform(30, 20, image.White.C)
	right := testutil.Checkerboard(25, 32, 5, "")
	canvas := sideBySide(left, right)

	assert.Equal(t, image.Rect(0, 0, 30+debugGap+25, 32), canvas.Bounds())
	step := 32 / debugGuideLines
	assert.Equal(t, debugGuideColor, canvas.NRGBAAt(1, step/2))
	// Gap between the views stays black away from guide lines.
	assert.Equal(t, uint8(0), canvas.NRGBAAt(30+debugGap/2, step/2+1).G)
}

func TestDebugDirReceivesPairs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "debug")
	cfg := DefaultConfig()
	cfg.DebugDir = dir
	r, err := New(cfg)
	require.NoError(t, err)
	r.WithSolver(fixedSolver{rect1: homography.Identity(), rect2: homography.Identity()})

	src := gradientGray(24, 16)
	_, err = r.Rectify(context.Background(), homography.Identity(), nil, src, src)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var before, after int
	for _, e := range entries {
		switch {
		case strings.HasPrefix(e.Name(), "rect_before_"):
			before++
		case strings.HasPrefix(e.Name(), "rect_after_"):
			after++
		}
		assert.Equal(t, ".png", filepath.Ext(e.Name()))
	}
	assert.Equal(t, 1, before)
	assert.Equal(t, 1, after)

	img := testutil.LoadImage(t, filepath.Join(dir, entries[0].Name()))
	assert.Equal(t, 24+debugGap+24, img.Bounds().Dx())
}
