package epipolar

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// AssociatedPair is a point observed in the left image and its match in the right image.
type AssociatedPair struct {
	Left  r2.Point
	Right r2.Point
}

// NewPair builds a pair from raw coordinates.
func NewPair(lx, ly, rx, ry float64) AssociatedPair {
	return AssociatedPair{Left: r2.Point{X: lx, Y: ly}, Right: r2.Point{X: rx, Y: ry}}
}

// checkPairs rejects unusable coordinates and degenerate configurations.
func checkPairs(cfg Config, pairs []AssociatedPair) error {
	for i, p := range pairs {
		if !saneCoord(p.Left.X, cfg.MaxCoordinate) || !saneCoord(p.Left.Y, cfg.MaxCoordinate) ||
			!saneCoord(p.Right.X, cfg.MaxCoordinate) || !saneCoord(p.Right.Y, cfg.MaxCoordinate) {
			return &CorrespondenceError{Index: i, Pair: p}
		}
	}
	if len(pairs) < cfg.MinCorrespondences {
		return degenerate("%d correspondences, need at least %d", len(pairs), cfg.MinCorrespondences)
	}

	left := make([]r2.Point, len(pairs))
	right := make([]r2.Point, len(pairs))
	for i, p := range pairs {
		left[i], right[i] = p.Left, p.Right
	}
	if ratio := spreadRatio(left); ratio < cfg.CollinearityTolerance {
		return degenerate("left points are collinear (spread ratio %.3g)", ratio)
	}
	if ratio := spreadRatio(right); ratio < cfg.CollinearityTolerance {
		return degenerate("right points are collinear (spread ratio %.3g)", ratio)
	}
	return nil
}

func saneCoord(v, limit float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) <= limit
}

// spreadRatio returns the ratio of the smallest to the largest eigenvalue of
// the points' scatter matrix: 0 for collinear points, 1 for isotropic ones.
func spreadRatio(pts []r2.Point) float64 {
	var mean r2.Point
	for _, p := range pts {
		mean = mean.Add(p)
	}
	mean = mean.Mul(1 / float64(len(pts)))

	var sxx, sxy, syy float64
	for _, p := range pts {
		d := p.Sub(mean)
		sxx += d.X * d.X
		sxy += d.X * d.Y
		syy += d.Y * d.Y
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(mat.NewSymDense(2, []float64{sxx, sxy, sxy, syy}), false); !ok {
		return 0
	}
	vals := eig.Values(nil) // ascending
	if vals[1] <= 0 {
		return 0
	}
	return math.Max(vals[0], 0) / vals[1]
}
