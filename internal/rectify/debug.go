package rectify

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
)

const (
	debugGap        = 10
	debugGuideLines = 16
)

var debugGuideColor = color.NRGBA{R: 0, G: 255, B: 0, A: 255}

// dumpPairPNG writes left and right side by side with horizontal guide
// lines, so row alignment can be checked by eye.
func dumpPairPNG(dir, stage string, left, right image.Image) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("rect_%s_%d.png", stage, time.Now().UnixNano()))
	return imaging.Save(sideBySide(left, right), path)
}

// sideBySide pastes left and right onto a black canvas and draws
// evenly spaced horizontal lines across both.
func sideBySide(left, right image.Image) *image.NRGBA {
	lb, rb := left.Bounds(), right.Bounds()
	w := lb.Dx() + debugGap + rb.Dx()
	h := max(lb.Dy(), rb.Dy())

	canvas := imaging.New(w, h, color.NRGBA{A: 255})
	canvas = imaging.Paste(canvas, left, image.Pt(0, 0))
	canvas = imaging.Paste(canvas, right, image.Pt(lb.Dx()+debugGap, 0))

	step := max(1, h/debugGuideLines)
	for y := step / 2; y < h; y += step {
		for x := range w {
			canvas.SetNRGBA(x, y, debugGuideColor)
		}
	}
	return canvas
}
