package epipolar

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// ViewMode selects which box of the rectified left image is fitted to the output.
type ViewMode int

const (
	// ViewFull keeps the whole rectified image visible.
	ViewFull ViewMode = iota
	// ViewInside fills the output with valid pixels only.
	ViewInside
)

// Points sampled per image side for ViewInside: one per pixel of the longer
// side, within these limits.
const (
	minBorderSamples = 64
	maxBorderSamples = 4096
)

func (m ViewMode) String() string {
	switch m {
	case ViewFull:
		return "full"
	case ViewInside:
		return "inside"
	default:
		return fmt.Sprintf("ViewMode(%d)", int(m))
	}
}

// ParseViewMode accepts "full" or "inside".
func ParseViewMode(s string) (ViewMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "":
		return ViewFull, nil
	case "inside", "all-inside", "allinside":
		return ViewInside, nil
	default:
		return ViewFull, fmt.Errorf("unknown view mode %q (want full or inside)", s)
	}
}

// FitView rescales and shifts a rectifying pair so the rectified left image
// fits a raster of the same size as the source.
func FitView(mode ViewMode, width, height int, rect1, rect2 homography.Homography, leftHanded bool) (homography.Homography, homography.Homography, error) {
	size := image.Pt(width, height)
	return FitViewTo(mode, size, size, rect1, rect2, leftHanded)
}

// FitViewTo fits the rectified left image of size src into an output raster
// of size dst. The same correction is applied to both transforms so rows
// stay aligned. With leftHanded the transforms map into a y-up frame and are
// returned in that frame.
func FitViewTo(mode ViewMode, src, dst image.Point, rect1, rect2 homography.Homography, leftHanded bool) (homography.Homography, homography.Homography, error) {
	if src.X < 2 || src.Y < 2 || dst.X < 2 || dst.Y < 2 {
		return rect1, rect2, degenerate("image sizes %v -> %v too small to fit", src, dst)
	}

	pix := PixelFrame(rect1, src.Y, dst.Y, leftHanded)
	var box r2.Rect
	var err error
	switch mode {
	case ViewFull:
		box, err = fullBox(pix, src)
	case ViewInside:
		box, err = insideBox(pix, src)
	default:
		return rect1, rect2, fmt.Errorf("unknown view mode %v", mode)
	}
	if err != nil {
		return rect1, rect2, err
	}

	bw, bh := box.X.Length(), box.Y.Length()
	if !(bw > 0 && bh > 0) || math.IsInf(bw, 0) || math.IsInf(bh, 0) {
		return rect1, rect2, degenerate("rectified image has empty or unbounded extent %v", box)
	}
	sx := float64(dst.X-1) / bw
	sy := float64(dst.Y-1) / bh
	s := math.Min(sx, sy)
	if mode == ViewInside {
		s = math.Max(sx, sy)
	}

	a := homography.Scaling(s, s).Mul(homography.Translation(-box.X.Lo, -box.Y.Lo))
	if leftHanded {
		flip := homography.FlipY(dst.Y)
		a = homography.Compose(flip, a, flip)
	}
	return a.Mul(rect1).Normalize(), a.Mul(rect2).Normalize(), nil
}

// PixelFrame returns the transform from source pixels to output pixels.
// Left-handed transforms are conjugated with vertical flips.
func PixelFrame(h homography.Homography, srcHeight, dstHeight int, leftHanded bool) homography.Homography {
	if !leftHanded {
		return h
	}
	return homography.Compose(homography.FlipY(dstHeight), h, homography.FlipY(srcHeight))
}

// fullBox is the bounding box of the transformed image corners.
func fullBox(h homography.Homography, size image.Point) (r2.Rect, error) {
	w, ht := float64(size.X-1), float64(size.Y-1)
	pts, err := project(h, []r2.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: ht}, {X: 0, Y: ht}})
	if err != nil {
		return r2.Rect{}, err
	}
	return r2.RectFromPoints(pts...), nil
}

// insideBox finds a large axis-aligned box inside the transformed image
// border. Starting from the bounding box around the border centroid, each
// border point that falls inside the box pulls in the side that costs the
// least area.
func insideBox(h homography.Homography, size image.Point) (r2.Rect, error) {
	pts, err := project(h, borderPoints(size))
	if err != nil {
		return r2.Rect{}, err
	}

	var c r2.Point
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.Mul(1 / float64(len(pts)))

	bb := r2.RectFromPoints(pts...)
	x0, x1 := bb.X.Lo-c.X, bb.X.Hi-c.X
	y0, y1 := bb.Y.Lo-c.Y, bb.Y.Hi-c.Y
	ox0, ox1, oy0, oy1 := x0, x1, y0, y1

	for _, p := range pts {
		dx, dy := p.X-c.X, p.Y-c.Y
		if dx <= x0 || dx >= x1 || dy <= y0 || dy >= y1 {
			continue
		}
		d0 := math.Abs(dx-x0) + x0 - ox0
		d1 := math.Abs(dx-x1) + ox1 - x1
		d2 := math.Abs(dy-y0) + y0 - oy0
		d3 := math.Abs(dy-y1) + oy1 - y1
		switch {
		case d0 <= d1 && d0 <= d2 && d0 <= d3:
			x0 = dx
		case d1 <= d2 && d1 <= d3:
			x1 = dx
		case d2 <= d3:
			y0 = dy
		default:
			y1 = dy
		}
	}
	return r2.Rect{
		X: r1.Interval{Lo: x0 + c.X, Hi: x1 + c.X},
		Y: r1.Interval{Lo: y0 + c.Y, Hi: y1 + c.Y},
	}, nil
}

// borderPoints samples the pixel-center border of an image clockwise.
func borderPoints(size image.Point) []r2.Point {
	w, h := float64(size.X-1), float64(size.Y-1)
	n := min(max(size.X, size.Y, minBorderSamples), maxBorderSamples)
	pts := make([]r2.Point, 0, 4*n)
	for i := range n {
		t := float64(i) / float64(n)
		pts = append(pts,
			r2.Point{X: t * w, Y: 0},
			r2.Point{X: w, Y: t * h},
			r2.Point{X: w - t*w, Y: h},
			r2.Point{X: 0, Y: h - t*h},
		)
	}
	return pts
}

// project maps points through h, failing if they do not all lie on the
// same side of the line at infinity.
func project(h homography.Homography, pts []r2.Point) ([]r2.Point, error) {
	out := make([]r2.Point, len(pts))
	sign := 0.0
	for i, p := range pts {
		v := h.ApplyHomogeneous(r3.Vector{X: p.X, Y: p.Y, Z: 1})
		q, err := homography.Dehomogenize(v)
		if err != nil {
			return nil, degenerate("image point %v maps to infinity", p)
		}
		if sign == 0 {
			sign = math.Copysign(1, v.Z)
		} else if math.Copysign(1, v.Z) != sign {
			return nil, degenerate("rectified image straddles the line at infinity")
		}
		if math.IsNaN(q.X) || math.IsNaN(q.Y) || math.IsInf(q.X, 0) || math.IsInf(q.Y, 0) {
			return nil, degenerate("image point %v maps to a non-finite location", p)
		}
		out[i] = q
	}
	return out, nil
}
