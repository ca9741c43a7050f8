// Package rectify runs stereo rectification end to end: solve the rectifying
// transforms, fit them to the output raster and resample image pairs.
package rectify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/stereorect/internal/epipolar"
	"github.com/MeKo-Tech/stereorect/internal/homography"
)

var (
	// ErrNilImage is returned when an input image is missing.
	ErrNilImage = errors.New("nil image")
	// ErrSizeMismatch is returned when a frame does not match the stream's source size.
	ErrSizeMismatch = errors.New("image size mismatch")
	// ErrOutputTooLarge is returned when a rectified raster would exceed
	// Config.MaxOutputPixels.
	ErrOutputTooLarge = errors.New("output raster too large")
)

// Transforms is a fitted rectifying pair and the sizes it was built for.
type Transforms struct {
	Raw1, Raw2   homography.Homography // solver output
	Rect1, Rect2 homography.Homography // after fitting to the output raster
	Diagnostics  epipolar.Diagnostics
	View         epipolar.ViewMode
	LeftHanded   bool
	SourceWidth  int
	SourceHeight int
	OutputWidth  int
	OutputHeight int
}

// SourceSize returns the source image size.
func (t *Transforms) SourceSize() image.Point { return image.Pt(t.SourceWidth, t.SourceHeight) }

// OutputSize returns the rectified raster size.
func (t *Transforms) OutputSize() image.Point { return image.Pt(t.OutputWidth, t.OutputHeight) }

// Rectifier turns epipolar geometry into rectified image pairs.
type Rectifier struct {
	cfg    Config
	solver epipolar.Rectifier
}

// New creates a rectifier using Hartley's solver with cfg.Solver thresholds.
func New(cfg Config) (*Rectifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rectify config: %w", err)
	}
	solver, err := epipolar.NewFundamental(cfg.Solver)
	if err != nil {
		return nil, err
	}
	return &Rectifier{cfg: cfg, solver: solver}, nil
}

// WithSolver replaces the transform solver.
func (r *Rectifier) WithSolver(s epipolar.Rectifier) *Rectifier {
	if s != nil {
		r.solver = s
	}
	return r
}

// Config returns the configuration in use.
func (r *Rectifier) Config() Config { return r.cfg }

// Compute solves for the rectifying pair of a width x height stereo setup
// and fits it to the configured output raster.
func (r *Rectifier) Compute(f homography.Homography, pairs []epipolar.AssociatedPair, width, height int) (*Transforms, error) {
	src := image.Pt(width, height)
	out := r.cfg.OutputSize(width, height)
	if err := r.cfg.CheckOutputSize(out); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := r.solver.Process(f, pairs, width, height)
	if err != nil {
		return nil, fmt.Errorf("compute rectification: %w", err)
	}

	rect1, rect2, err := epipolar.FitViewTo(r.cfg.View, src, out, res.Rect1, res.Rect2, r.cfg.LeftHanded)
	if err != nil {
		return nil, fmt.Errorf("fit view: %w", err)
	}

	slog.Debug("Transforms computed",
		"pairs", len(pairs),
		"view", r.cfg.View.String(),
		"output", out,
		"row_residual", res.Diagnostics.RowResidual,
		"duration", time.Since(start))

	return &Transforms{
		Raw1:         res.Rect1,
		Raw2:         res.Rect2,
		Rect1:        rect1,
		Rect2:        rect2,
		Diagnostics:  res.Diagnostics,
		View:         r.cfg.View,
		LeftHanded:   r.cfg.LeftHanded,
		SourceWidth:  width,
		SourceHeight: height,
		OutputWidth:  out.X,
		OutputHeight: out.Y,
	}, nil
}

// Rectify computes the transforms for a single image pair and resamples it.
// Both images must have the same size.
func (r *Rectifier) Rectify(ctx context.Context, f homography.Homography, pairs []epipolar.AssociatedPair, left, right image.Image) (*Result, error) {
	if left == nil || right == nil {
		return nil, ErrNilImage
	}
	lb, rb := left.Bounds(), right.Bounds()
	if lb.Size() != rb.Size() {
		return nil, fmt.Errorf("%w: left %v, right %v", ErrSizeMismatch, lb.Size(), rb.Size())
	}
	tf, err := r.Compute(f, pairs, lb.Dx(), lb.Dy())
	if err != nil {
		return nil, err
	}
	s, err := r.NewStream(tf)
	if err != nil {
		return nil, err
	}
	return s.Rectify(ctx, left, right)
}
