// Package raster holds single- and multi-band pixel grids that are generic
// over the sample type.
package raster

import (
	"errors"
	"fmt"
	"math"
)

// ErrShapeMismatch is returned when rasters that must agree in size do not.
var ErrShapeMismatch = errors.New("raster shape mismatch")

// Pixel lists the supported sample types.
type Pixel interface {
	~uint8 | ~uint16 | ~float32 | ~float64
}

// Band is a single-channel row-major grid.
type Band[T Pixel] struct {
	Width  int
	Height int
	Pix    []T
}

// NewBand allocates a zeroed band.
func NewBand[T Pixel](width, height int) *Band[T] {
	if width < 0 || height < 0 {
		width, height = 0, 0
	}
	return &Band[T]{Width: width, Height: height, Pix: make([]T, width*height)}
}

// WrapBand uses pix as the backing store; len(pix) must be width*height.
func WrapBand[T Pixel](width, height int, pix []T) (*Band[T], error) {
	if width < 0 || height < 0 || len(pix) != width*height {
		return nil, fmt.Errorf("%w: %d samples for %dx%d", ErrShapeMismatch, len(pix), width, height)
	}
	return &Band[T]{Width: width, Height: height, Pix: pix}, nil
}

// InBounds reports whether (x, y) addresses a sample.
func (b *Band[T]) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Width && y < b.Height
}

// At returns the sample at (x, y). It panics when out of bounds.
func (b *Band[T]) At(x, y int) T { return b.Pix[y*b.Width+x] }

// Set stores v at (x, y).
func (b *Band[T]) Set(x, y int, v T) { b.Pix[y*b.Width+x] = v }

// Row returns the samples of row y.
func (b *Band[T]) Row(y int) []T { return b.Pix[y*b.Width : (y+1)*b.Width] }

// Fill sets every sample to v.
func (b *Band[T]) Fill(v T) {
	for i := range b.Pix {
		b.Pix[i] = v
	}
}

// Clone returns a deep copy.
func (b *Band[T]) Clone() *Band[T] {
	out := &Band[T]{Width: b.Width, Height: b.Height, Pix: make([]T, len(b.Pix))}
	copy(out.Pix, b.Pix)
	return out
}

// SameShape reports whether two bands have equal dimensions.
func (b *Band[T]) SameShape(o *Band[T]) bool {
	return b.Width == o.Width && b.Height == o.Height
}

// Planar is a multi-band raster; every band has the same shape.
type Planar[T Pixel] struct {
	Bands []*Band[T]
}

// NewPlanar allocates n zeroed bands.
func NewPlanar[T Pixel](width, height, n int) *Planar[T] {
	p := &Planar[T]{Bands: make([]*Band[T], n)}
	for i := range p.Bands {
		p.Bands[i] = NewBand[T](width, height)
	}
	return p
}

// NumBands returns the number of bands.
func (p *Planar[T]) NumBands() int { return len(p.Bands) }

// Band returns band i.
func (p *Planar[T]) Band(i int) *Band[T] { return p.Bands[i] }

// Width returns the shared band width, or 0 without bands.
func (p *Planar[T]) Width() int {
	if len(p.Bands) == 0 {
		return 0
	}
	return p.Bands[0].Width
}

// Height returns the shared band height, or 0 without bands.
func (p *Planar[T]) Height() int {
	if len(p.Bands) == 0 {
		return 0
	}
	return p.Bands[0].Height
}

// Validate checks that every band is present and equally shaped.
func (p *Planar[T]) Validate() error {
	if len(p.Bands) == 0 {
		return fmt.Errorf("%w: no bands", ErrShapeMismatch)
	}
	for i, b := range p.Bands {
		if b == nil {
			return fmt.Errorf("%w: band %d is nil", ErrShapeMismatch, i)
		}
		if len(b.Pix) != b.Width*b.Height {
			return fmt.Errorf("%w: band %d has %d samples for %dx%d", ErrShapeMismatch, i, len(b.Pix), b.Width, b.Height)
		}
		if !b.SameShape(p.Bands[0]) {
			return fmt.Errorf("%w: band %d is %dx%d, band 0 is %dx%d",
				ErrShapeMismatch, i, b.Width, b.Height, p.Bands[0].Width, p.Bands[0].Height)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p *Planar[T]) Clone() *Planar[T] {
	out := &Planar[T]{Bands: make([]*Band[T], len(p.Bands))}
	for i, b := range p.Bands {
		out.Bands[i] = b.Clone()
	}
	return out
}

// Convert turns an interpolated value into a sample of type T, rounding
// and saturating for integer types.
func Convert[T Pixel](v float64) T {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return T(saturate(v, math.MaxUint8))
	case uint16:
		return T(saturate(v, math.MaxUint16))
	default:
		return T(v)
	}
}

func saturate(v, hi float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= hi {
		return hi
	}
	return math.Floor(v + 0.5)
}
