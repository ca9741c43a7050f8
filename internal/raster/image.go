package raster

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Allocator supplies sample buffers of length n.
type Allocator func(n int) []float32

func allocFloat32(n int) []float32 { return make([]float32, n) }

// FromImage splits img into float32 bands in the 0-255 range: one band for
// grayscale images, three for opaque colour and four when alpha is present.
func FromImage(img image.Image) *Planar[float32] {
	return FromImageWith(img, allocFloat32)
}

// FromImageWith is FromImage with caller-provided band storage, e.g. a pool.
// Buffers are fully overwritten.
func FromImageWith(img image.Image, alloc Allocator) *Planar[float32] {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if g, ok := img.(*image.Gray); ok {
		band := &Band[float32]{Width: w, Height: h, Pix: alloc(w * h)}
		for y := range h {
			row := g.Pix[y*g.Stride : y*g.Stride+w]
			out := band.Row(y)
			for x, v := range row {
				out[x] = float32(v)
			}
		}
		return &Planar[float32]{Bands: []*Band[float32]{band}}
	}

	nrgba := imaging.Clone(img)
	n := 3
	if !nrgba.Opaque() {
		n = 4
	}
	p := &Planar[float32]{Bands: make([]*Band[float32], n)}
	for i := range p.Bands {
		p.Bands[i] = &Band[float32]{Width: w, Height: h, Pix: alloc(w * h)}
	}
	for y := range h {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+4*w]
		for c := range n {
			out := p.Bands[c].Row(y)
			for x := range w {
				out[x] = float32(src[4*x+c])
			}
		}
	}
	return p
}

// ToImage packs float32 bands back into an 8-bit image. One band yields
// *image.Gray, two are gray plus alpha, three are RGB and four RGBA.
func ToImage(p *Planar[float32]) (image.Image, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	w, h := p.Width(), p.Height()
	rect := image.Rect(0, 0, w, h)

	switch p.NumBands() {
	case 1:
		g := image.NewGray(rect)
		src := p.Bands[0]
		for y := range h {
			row := src.Row(y)
			for x, v := range row {
				g.Pix[y*g.Stride+x] = Convert[uint8](float64(v))
			}
		}
		return g, nil
	case 2, 3, 4:
		out := image.NewNRGBA(rect)
		for y := range h {
			for x := range w {
				out.SetNRGBA(x, y, p.nrgbaAt(x, y))
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot pack %d bands into an image", p.NumBands())
	}
}

func (p *Planar[T]) nrgbaAt(x, y int) color.NRGBA {
	v := func(i int) uint8 { return Convert[uint8](float64(p.Bands[i].At(x, y))) }
	switch p.NumBands() {
	case 2:
		g := v(0)
		return color.NRGBA{R: g, G: g, B: g, A: v(1)}
	case 3:
		return color.NRGBA{R: v(0), G: v(1), B: v(2), A: 255}
	default:
		return color.NRGBA{R: v(0), G: v(1), B: v(2), A: v(3)}
	}
}
