package rectify

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/MeKo-Tech/stereorect/internal/distort"
	"github.com/MeKo-Tech/stereorect/internal/epipolar"
)

// Config holds configuration for a rectification run.
type Config struct {
	Solver        epipolar.Config       // solver thresholds
	View          epipolar.ViewMode     // full or inside
	LeftHanded    bool                  // transforms live in a y-up frame
	OutputWidth   int                   // rectified raster width (0 = source width)
	OutputHeight  int                   // rectified raster height (0 = source height)
	Interpolation distort.Interpolation // sampling kernel
	Border        distort.Border        // out-of-image policy
	FillValue     float64               // sample value for pixels without a source
	Workers       int                   // resampling row workers (0 = runtime.NumCPU())
	// MaxOutputPixels caps the rectified raster area (0 = unlimited).
	// Each view's map costs 8 bytes per output pixel.
	MaxOutputPixels int
	// Debug dumping
	DebugDir string // if non-empty, writes before/after side-by-side PNGs here
}

// DefaultMaxOutputPixels bounds the default output raster to 16 Mpx per view.
const DefaultMaxOutputPixels = 1 << 24

// DefaultConfig returns sensible defaults for rectification.
func DefaultConfig() Config {
	return Config{
		Solver:        epipolar.DefaultConfig(),
		View:          epipolar.ViewFull,
		LeftHanded:    false,
		Interpolation: distort.Bilinear,
		Border:        distort.BorderValue,
		FillValue:     0,
		Workers:       0,
		DebugDir:      "",

		MaxOutputPixels: DefaultMaxOutputPixels,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	if c.View != epipolar.ViewFull && c.View != epipolar.ViewInside {
		return fmt.Errorf("unknown view mode %v", c.View)
	}
	if c.OutputWidth < 0 || c.OutputHeight < 0 {
		return fmt.Errorf("output size %dx%d must not be negative", c.OutputWidth, c.OutputHeight)
	}
	if c.Interpolation != distort.Bilinear && c.Interpolation != distort.Nearest {
		return fmt.Errorf("unknown interpolation %v", c.Interpolation)
	}
	if c.Border != distort.BorderValue && c.Border != distort.BorderExtend {
		return fmt.Errorf("unknown border policy %v", c.Border)
	}
	if math.IsInf(c.FillValue, 0) {
		return errors.New("fill value must be finite or NaN")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.MaxOutputPixels < 0 {
		return fmt.Errorf("max output pixels must be >= 0, got %d", c.MaxOutputPixels)
	}
	if c.OutputWidth > 0 && c.OutputHeight > 0 {
		if err := c.CheckOutputSize(image.Pt(c.OutputWidth, c.OutputHeight)); err != nil {
			return err
		}
	}
	return nil
}

// CheckOutputSize reports ErrOutputTooLarge when out exceeds MaxOutputPixels.
func (c Config) CheckOutputSize(out image.Point) error {
	if c.MaxOutputPixels == 0 {
		return nil
	}
	if area := int64(out.X) * int64(out.Y); area > int64(c.MaxOutputPixels) {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrOutputTooLarge, out.X, out.Y, c.MaxOutputPixels)
	}
	return nil
}

// OutputSize resolves the rectified raster size for a source of w x h.
func (c Config) OutputSize(w, h int) image.Point {
	out := image.Pt(c.OutputWidth, c.OutputHeight)
	if out.X == 0 {
		out.X = w
	}
	if out.Y == 0 {
		out.Y = h
	}
	return out
}

// ResampleOptions returns the resampler settings.
func (c Config) ResampleOptions() distort.Options {
	return distort.Options{
		Interpolation: c.Interpolation,
		Border:        c.Border,
		Fill:          c.FillValue,
		Workers:       c.Workers,
	}
}
