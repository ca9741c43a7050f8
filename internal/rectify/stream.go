package rectify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/stereorect/internal/distort"
	"github.com/MeKo-Tech/stereorect/internal/epipolar"
	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/MeKo-Tech/stereorect/internal/mempool"
	"github.com/MeKo-Tech/stereorect/internal/raster"
)

// Result is one rectified image pair.
type Result struct {
	Left       image.Image
	Right      image.Image
	Transforms *Transforms
	Duration   time.Duration
}

// Stream applies one pair of transforms to any number of frames. The
// resampling maps are built once; a Stream is safe for concurrent use.
type Stream struct {
	tf       *Transforms
	left     *distort.Map
	right    *distort.Map
	opts     distort.Options
	debugDir string
}

// NewStream builds the resampling maps for tf.
func (r *Rectifier) NewStream(tf *Transforms) (*Stream, error) {
	if tf == nil {
		return nil, errors.New("nil transforms")
	}
	if err := r.cfg.CheckOutputSize(tf.OutputSize()); err != nil {
		return nil, err
	}
	left, err := buildMap(tf, tf.Rect1)
	if err != nil {
		return nil, fmt.Errorf("left view: %w", err)
	}
	right, err := buildMap(tf, tf.Rect2)
	if err != nil {
		return nil, fmt.Errorf("right view: %w", err)
	}
	return &Stream{
		tf:       tf,
		left:     left,
		right:    right,
		opts:     r.cfg.ResampleOptions(),
		debugDir: r.cfg.DebugDir,
	}, nil
}

// buildMap tabulates rect in pixel coordinates of the source and output rasters.
func buildMap(tf *Transforms, rect homography.Homography) (*distort.Map, error) {
	pix := epipolar.PixelFrame(rect, tf.SourceHeight, tf.OutputHeight, tf.LeftHanded)
	return distort.BuildMap(pix, tf.OutputWidth, tf.OutputHeight)
}

// Transforms returns the transforms the stream applies.
func (s *Stream) Transforms() *Transforms { return s.tf }

// Rectify resamples a left/right frame pair. The inputs are not modified.
func (s *Stream) Rectify(ctx context.Context, left, right image.Image) (*Result, error) {
	if left == nil || right == nil {
		return nil, ErrNilImage
	}
	want := s.tf.SourceSize()
	for _, v := range []struct {
		name string
		img  image.Image
	}{{"left", left}, {"right", right}} {
		if got := v.img.Bounds().Size(); got != want {
			return nil, fmt.Errorf("%w: %s image is %v, stream expects %v", ErrSizeMismatch, v.name, got, want)
		}
	}

	start := time.Now()
	outL, err := s.warp(ctx, s.left, left)
	if err != nil {
		return nil, fmt.Errorf("left view: %w", err)
	}
	outR, err := s.warp(ctx, s.right, right)
	if err != nil {
		return nil, fmt.Errorf("right view: %w", err)
	}
	res := &Result{Left: outL, Right: outR, Transforms: s.tf, Duration: time.Since(start)}

	slog.Debug("Frame rectified", "size", s.tf.OutputSize(), "duration", res.Duration)

	if s.debugDir != "" {
		if err := dumpPairPNG(s.debugDir, "before", left, right); err != nil {
			slog.Warn("Failed to write debug image", "dir", s.debugDir, "error", err)
		}
		if err := dumpPairPNG(s.debugDir, "after", outL, outR); err != nil {
			slog.Warn("Failed to write debug image", "dir", s.debugDir, "error", err)
		}
	}
	return res, nil
}

// warp resamples every band of img through m. Band storage on both sides
// comes from the shared pool and is returned before warp exits.
func (s *Stream) warp(ctx context.Context, m *distort.Map, img image.Image) (image.Image, error) {
	src := raster.FromImageWith(img, mempool.GetFloat32)
	defer release(src)

	dst := &raster.Planar[float32]{Bands: make([]*raster.Band[float32], src.NumBands())}
	for i := range dst.Bands {
		dst.Bands[i] = &raster.Band[float32]{
			Width:  m.Width(),
			Height: m.Height(),
			Pix:    mempool.GetFloat32(m.Width() * m.Height()),
		}
	}
	defer release(dst)

	if err := distort.ApplyInto(ctx, m, src.Bands, dst.Bands, s.opts); err != nil {
		return nil, err
	}
	return raster.ToImage(dst)
}

func release(p *raster.Planar[float32]) {
	for _, b := range p.Bands {
		mempool.PutFloat32(b.Pix)
		b.Pix = nil
	}
}
