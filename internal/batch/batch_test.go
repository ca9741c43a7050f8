package batch

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MeKo-Tech/stereorect/internal/epipolar"
	"github.com/MeKo-Tech/stereorect/internal/rectify"
	"github.com/MeKo-Tech/stereorect/internal/testutil"
	"github.com/MeKo-Tech/stereorect/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProgress struct {
	mu       sync.Mutex
	total    int
	max      int
	starts   int
	complete int
}

func (p *recordingProgress) OnStart(total int) { p.total = total; p.starts++ }

func (p *recordingProgress) OnProgress(current, _ int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.max = max(p.max, current)
}

func (p *recordingProgress) OnComplete() { p.complete++ }

// sceneFrames writes n copies of a small verged scene and returns a stream
// rectifying it.
func sceneFrames(t *testing.T, n int) (*rectify.Stream, []FramePaths) {
	t.Helper()
	scene := testutil.NewStereoScene(testutil.VergedRig(96, 72), 40, 1)
	pairs := make([]epipolar.AssociatedPair, len(scene.Left))
	for i := range scene.Left {
		pairs[i] = epipolar.AssociatedPair{Left: scene.Left[i], Right: scene.Right[i]}
	}
	r, err := rectify.New(rectify.DefaultConfig())
	require.NoError(t, err)
	tf, err := r.Compute(scene.Rig.Fundamental(), pairs, 96, 72)
	require.NoError(t, err)
	stream, err := r.NewStream(tf)
	require.NoError(t, err)

	dir := t.TempDir()
	frames := make([]FramePaths, n)
	for i := range frames {
		frames[i] = FramePaths{
			Left:  filepath.Join(dir, "cam0", string(rune('a'+i))+".png"),
			Right: filepath.Join(dir, "cam1", string(rune('a'+i))+"_r.png"),
		}
		testutil.SaveImage(t, scene.LeftImage, frames[i].Left)
		testutil.SaveImage(t, scene.RightImage, frames[i].Right)
	}
	return stream, frames
}

func TestProcessChunks(t *testing.T) {
	stream, frames := sceneFrames(t, 5)
	outDir := t.TempDir()
	progress := &recordingProgress{}

	res, err := Process(context.Background(), stream, frames, Config{
		OutputDir:   outDir,
		Suffix:      "rect",
		ImageFormat: "png",
		BatchSize:   2,
		Parallel:    rectify.ParallelConfig{MaxWorkers: 2, ProgressCallback: progress},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Batches)
	require.Len(t, res.Frames, 5)
	for i, f := range res.Frames {
		assert.Equal(t, i, f.Frame)
		img := testutil.LoadImage(t, f.Right)
		assert.Equal(t, image.Pt(96, 72), img.Bounds().Size())
	}
	assert.Equal(t, filepath.Join(outDir, "c_rect.png"), res.Frames[2].Left)
	assert.Equal(t, filepath.Join(outDir, "c_r_rect.png"), res.Frames[2].Right)

	assert.Equal(t, 1, progress.starts)
	assert.Equal(t, 1, progress.complete)
	assert.Equal(t, 5, progress.total)
	assert.Equal(t, 5, progress.max)
}

func TestProcessReportsGlobalFrameIndex(t *testing.T) {
	stream, frames := sceneFrames(t, 4)
	small := filepath.Join(t.TempDir(), "small.png")
	testutil.SaveImage(t, image.NewGray(image.Rect(0, 0, 8, 8)), small)
	frames[3].Right = small

	_, err := Process(context.Background(), stream, frames, Config{
		OutputDir: t.TempDir(), Suffix: "rect", ImageFormat: "png", BatchSize: 2,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 3")
	var ipe *utils.ImageProcessingError
	assert.ErrorAs(t, err, &ipe)
}

func TestProcessFrameSizeMismatchWithStream(t *testing.T) {
	stream, frames := sceneFrames(t, 3)
	big := filepath.Join(t.TempDir(), "big")
	testutil.SaveImage(t, image.NewGray(image.Rect(0, 0, 50, 40)), big+"_l.png")
	testutil.SaveImage(t, image.NewGray(image.Rect(0, 0, 50, 40)), big+"_r.png")
	frames[2] = FramePaths{Left: big + "_l.png", Right: big + "_r.png"}

	var failed []int
	_, err := Process(context.Background(), stream, frames, Config{
		OutputDir: t.TempDir(), Suffix: "rect", ImageFormat: "png", BatchSize: 2,
		Parallel: rectify.ParallelConfig{ErrorHandler: func(i int, _ error) { failed = append(failed, i) }},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 2")
	assert.Equal(t, []int{2}, failed)
}

func TestProcessCollidingNames(t *testing.T) {
	stream, frames := sceneFrames(t, 1)
	frames[0].Right = filepath.Join(filepath.Dir(frames[0].Right), "a.png")
	testutil.SaveImage(t, testutil.LoadImage(t, frames[0].Left), frames[0].Right)
	outDir := t.TempDir()

	res, err := Process(context.Background(), stream, frames, Config{OutputDir: outDir, Suffix: "x", ImageFormat: "bmp"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "left_a_x.bmp"), res.Frames[0].Left)
	assert.Equal(t, filepath.Join(outDir, "right_a_x.bmp"), res.Frames[0].Right)
}

func TestProcessSameNameInSeveralDirectories(t *testing.T) {
	stream, frames := sceneFrames(t, 2)
	dir := t.TempDir()
	for i, take := range []string{"take1", "take2"} {
		moved := FramePaths{
			Left:  filepath.Join(dir, take, "cam0", "img.png"),
			Right: filepath.Join(dir, take, "cam1", "img_r.png"),
		}
		testutil.SaveImage(t, testutil.LoadImage(t, frames[i].Left), moved.Left)
		testutil.SaveImage(t, testutil.LoadImage(t, frames[i].Right), moved.Right)
		frames[i] = moved
	}
	outDir := t.TempDir()

	res, err := Process(context.Background(), stream, frames, Config{OutputDir: outDir, Suffix: "rect", ImageFormat: "png", BatchSize: 1})
	require.NoError(t, err)
	require.Len(t, res.Frames, 2)
	assert.Equal(t, filepath.Join(outDir, "img_rect_0000.png"), res.Frames[0].Left)
	assert.Equal(t, filepath.Join(outDir, "img_r_rect_0001.png"), res.Frames[1].Right)

	written := map[string]bool{}
	for _, f := range res.Frames {
		for _, path := range []string{f.Left, f.Right} {
			assert.False(t, written[path], "%s written twice", path)
			written[path] = true
			assert.FileExists(t, path)
		}
	}
	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestPlanOutputs(t *testing.T) {
	cfg := Config{OutputDir: "out", Suffix: "rect", ImageFormat: "png"}

	t.Run("unique names are kept", func(t *testing.T) {
		outs, err := planOutputs([]FramePaths{{Left: "l/001.png", Right: "r/001_r.png"}, {Left: "l/002.png", Right: "r/002_r.png"}}, cfg)
		require.NoError(t, err)
		assert.Equal(t, FrameOutput{Frame: 1, Left: filepath.Join("out", "002_rect.png"), Right: filepath.Join("out", "002_r_rect.png")}, outs[1])
	})

	t.Run("names differing in case collide", func(t *testing.T) {
		outs, err := planOutputs([]FramePaths{{Left: "a/IMG.png", Right: "a/x.png"}, {Left: "b/img.png", Right: "b/y.png"}}, cfg)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("out", "IMG_rect_0000.png"), outs[0].Left)
		assert.Equal(t, filepath.Join("out", "img_rect_0001.png"), outs[1].Left)
	})

	t.Run("indexed name taken by another frame", func(t *testing.T) {
		// With suffix "0001", frame 1 becomes img_0001_0001.png, the plain
		// name of frame 2.
		frames := []FramePaths{
			{Left: "a/img.png", Right: "a/r0.png"},
			{Left: "b/img.png", Right: "b/r1.png"},
			{Left: "c/img_0001.png", Right: "c/r2.png"},
		}
		_, err := planOutputs(frames, Config{OutputDir: "out", Suffix: "0001", ImageFormat: "png"})
		require.ErrorContains(t, err, "frames 1 and 2 both write img_0001_0001.png")
	})
}

func TestProcessRejectsBadInput(t *testing.T) {
	stream, frames := sceneFrames(t, 1)

	_, err := Process(context.Background(), stream, nil, Config{OutputDir: t.TempDir()})
	require.ErrorIs(t, err, ErrNoFrames)

	_, err = Process(context.Background(), stream, frames, Config{})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Process(ctx, stream, frames, Config{OutputDir: t.TempDir(), Suffix: "rect", ImageFormat: "png"})
	require.ErrorIs(t, err, context.Canceled)
}
