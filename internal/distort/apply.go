package distort

import (
	"context"
	"fmt"
	"math"

	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/MeKo-Tech/stereorect/internal/raster"
	"golang.org/x/sync/errgroup"
)

// Apply resamples src through m into a new band of the map's size.
func Apply[T raster.Pixel](m *Map, src *raster.Band[T], opts Options) (*raster.Band[T], error) {
	return ApplyContext(context.Background(), m, src, opts)
}

// ApplyContext is Apply with cancellation between row chunks.
func ApplyContext[T raster.Pixel](ctx context.Context, m *Map, src *raster.Band[T], opts Options) (*raster.Band[T], error) {
	dst := raster.NewBand[T](m.width, m.height)
	if err := ApplyInto(ctx, m, []*raster.Band[T]{src}, []*raster.Band[T]{dst}, opts); err != nil {
		return nil, err
	}
	return dst, nil
}

// ApplyPlanar resamples every band of src through the same map.
func ApplyPlanar[T raster.Pixel](ctx context.Context, m *Map, src *raster.Planar[T], opts Options) (*raster.Planar[T], error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	dst := raster.NewPlanar[T](m.width, m.height, src.NumBands())
	if err := ApplyInto(ctx, m, src.Bands, dst.Bands, opts); err != nil {
		return nil, err
	}
	return dst, nil
}

// Warp builds the map for transform and applies it to src.
func Warp[T raster.Pixel](ctx context.Context, transform homography.Homography, src *raster.Planar[T], width, height int, opts Options) (*raster.Planar[T], error) {
	m, err := BuildMap(transform, width, height)
	if err != nil {
		return nil, err
	}
	return ApplyPlanar(ctx, m, src, opts)
}

// ApplyInto resamples srcs[i] into dsts[i] for every i. Sources must share
// a shape and destinations must match the map. Rows are split across
// workers; each output sample is written by exactly one worker.
func ApplyInto[T raster.Pixel](ctx context.Context, m *Map, srcs, dsts []*raster.Band[T], opts Options) error {
	if len(srcs) != len(dsts) {
		return fmt.Errorf("%w: %d sources, %d destinations", raster.ErrShapeMismatch, len(srcs), len(dsts))
	}
	for i := range srcs {
		if srcs[i].Width <= 0 || srcs[i].Height <= 0 || !srcs[i].SameShape(srcs[0]) {
			return fmt.Errorf("%w: source band %d is %dx%d", raster.ErrShapeMismatch, i, srcs[i].Width, srcs[i].Height)
		}
		if dsts[i].Width != m.width || dsts[i].Height != m.height {
			return fmt.Errorf("%w: destination band %d is %dx%d, map is %dx%d",
				raster.ErrShapeMismatch, i, dsts[i].Width, dsts[i].Height, m.width, m.height)
		}
	}
	if len(srcs) == 0 {
		return nil
	}

	fill := raster.Convert[T](opts.Fill)
	return forRows(ctx, m.height, opts.workers(), func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := range m.width {
				u, v, ok := m.At(x, y)
				for i, src := range srcs {
					s, valid := sample(src, u, v, ok, opts)
					if valid {
						dsts[i].Set(x, y, raster.Convert[T](s))
					} else {
						dsts[i].Set(x, y, fill)
					}
				}
			}
		}
	})
}

// forRows runs fn over disjoint row ranges with at most workers goroutines.
func forRows(ctx context.Context, height, workers int, fn func(y0, y1 int)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if workers <= 1 {
		fn(0, height)
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	chunk := max(1, height/(4*workers))
	for y0 := 0; y0 < height; y0 += chunk {
		y1 := min(y0+chunk, height)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(y0, y1)
			return nil
		})
	}
	return g.Wait()
}

// sample reads src at (u, v). The valid source region is [0, w-1] x [0, h-1];
// outside it BorderValue reports an invalid sample and BorderExtend clamps.
func sample[T raster.Pixel](src *raster.Band[T], u, v float64, ok bool, opts Options) (float64, bool) {
	if !ok {
		return 0, false
	}
	maxX, maxY := float64(src.Width-1), float64(src.Height-1)
	if u < 0 || v < 0 || u > maxX || v > maxY {
		if opts.Border != BorderExtend {
			return 0, false
		}
		u = math.Min(math.Max(u, 0), maxX)
		v = math.Min(math.Max(v, 0), maxY)
	}

	if opts.Interpolation == Nearest {
		x := min(int(u+0.5), src.Width-1)
		y := min(int(v+0.5), src.Height-1)
		return float64(src.At(x, y)), true
	}

	x0, y0 := int(u), int(v)
	x1, y1 := min(x0+1, src.Width-1), min(y0+1, src.Height-1)
	fx, fy := u-float64(x0), v-float64(y0)
	c00 := float64(src.At(x0, y0))
	c10 := float64(src.At(x1, y0))
	c01 := float64(src.At(x0, y1))
	c11 := float64(src.At(x1, y1))
	return lerp(lerp(c00, c10, fx), lerp(c01, c11, fx), fy), true
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
