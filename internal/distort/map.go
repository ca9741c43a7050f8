// Package distort resamples rasters through geometric transforms.
//
// A Map stores, for every output pixel, the source coordinate it samples.
// It is built once per (transform, output size) and can be applied to any
// number of bands and frames.
package distort

import (
	"errors"
	"fmt"
	"math"

	"github.com/MeKo-Tech/stereorect/internal/homography"
)

var (
	// ErrSingularTransform is returned when a transform cannot be inverted.
	ErrSingularTransform = errors.New("singular transform")
	// ErrInvalidSize is returned for empty output rasters.
	ErrInvalidSize = errors.New("invalid output size")
)

// PointTransform maps an output pixel to a source coordinate.
type PointTransform interface {
	Apply(x, y float64) (float64, float64, error)
}

// Map is a per-output-pixel source coordinate lookup. Pixels whose source
// lies at infinity are invalid.
type Map struct {
	width  int
	height int
	coords []float32 // interleaved u, v; NaN when invalid
}

// BuildMap inverts transform, which maps source pixels to output pixels,
// and tabulates the source coordinate of every output pixel.
func BuildMap(transform homography.Homography, width, height int) (*Map, error) {
	inv, err := transform.Inverse()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSingularTransform, err)
	}
	return BuildMapWith(inv, width, height)
}

// BuildMapWith tabulates an output-to-source transform.
func BuildMapWith(inverse PointTransform, width, height int) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	m := &Map{width: width, height: height, coords: make([]float32, 2*width*height)}
	nan := float32(math.NaN())
	for y := range height {
		row := m.coords[2*y*width : 2*(y+1)*width]
		for x := range width {
			u, v, err := inverse.Apply(float64(x), float64(y))
			if err != nil || !finite(u) || !finite(v) || math.Abs(u) > math.MaxFloat32 || math.Abs(v) > math.MaxFloat32 {
				row[2*x], row[2*x+1] = nan, nan
				continue
			}
			row[2*x], row[2*x+1] = float32(u), float32(v)
		}
	}
	return m, nil
}

// Width returns the output width.
func (m *Map) Width() int { return m.width }

// Height returns the output height.
func (m *Map) Height() int { return m.height }

// At returns the source coordinate for output pixel (x, y).
func (m *Map) At(x, y int) (u, v float64, ok bool) {
	i := 2 * (y*m.width + x)
	fu, fv := m.coords[i], m.coords[i+1]
	if fu != fu || fv != fv {
		return 0, 0, false
	}
	return float64(fu), float64(fv), true
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
