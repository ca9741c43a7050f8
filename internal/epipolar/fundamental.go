// Package epipolar derives rectifying homographies from a fundamental matrix
// and adjusts them to fit an output raster.
//
// Conventions: F satisfies right^T * F * left = 0 for corresponding pixels.
// Rect1 maps left-image pixels and Rect2 right-image pixels into a common
// frame in which matching points share a row.
package epipolar

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Rectifier produces a rectifying transform pair from epipolar geometry.
type Rectifier interface {
	Process(f homography.Homography, pairs []AssociatedPair, width, height int) (Result, error)
}

// Result is a rectifying transform pair with diagnostics.
type Result struct {
	Rect1       homography.Homography // left view
	Rect2       homography.Homography // right view
	Diagnostics Diagnostics
}

// Diagnostics describes the geometry the transforms were derived from.
type Diagnostics struct {
	Epipoles           Epipoles
	SingularValues     [3]float64
	LeftEpipoleInside  bool
	RightEpipoleInside bool
	EpipoleAtInfinity  bool    // the right epipole was already at infinity
	RowResidual        float64 // RMS row difference over the correspondences
}

// Fundamental implements Hartley's rectification: the right view is sent to
// a frame with its epipole at infinity on the x axis, and the left view is
// matched to it by a least-squares affine correction.
type Fundamental struct {
	cfg Config
}

// NewFundamental creates the solver with the given thresholds.
func NewFundamental(cfg Config) (*Fundamental, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid solver config: %w", err)
	}
	return &Fundamental{cfg: cfg}, nil
}

// Config returns the thresholds in use.
func (r *Fundamental) Config() Config { return r.cfg }

// ComputeRectification runs the solver with default thresholds.
func ComputeRectification(f homography.Homography, pairs []AssociatedPair, width, height int) (homography.Homography, homography.Homography, error) {
	r := &Fundamental{cfg: DefaultConfig()}
	res, err := r.Process(f, pairs, width, height)
	if err != nil {
		return homography.Homography{}, homography.Homography{}, err
	}
	return res.Rect1, res.Rect2, nil
}

// Process computes rect1 and rect2 for images of the given size.
func (r *Fundamental) Process(f homography.Homography, pairs []AssociatedPair, width, height int) (Result, error) {
	if width <= 0 || height <= 0 {
		return Result{}, degenerate("invalid image size %dx%d", width, height)
	}
	if err := checkPairs(r.cfg, pairs); err != nil {
		return Result{}, err
	}
	dec, err := decompose(r.cfg, f)
	if err != nil {
		return Result{}, err
	}
	e1, e2 := dec.Epipoles.Left, dec.Epipoles.Right

	diag := Diagnostics{
		Epipoles:          dec.Epipoles,
		SingularValues:    dec.SingularValues,
		EpipoleAtInfinity: atInfinity(e2, r.cfg.InfinityTolerance),
	}
	if err := r.checkEpipoles(&diag, width, height); err != nil {
		return Result{}, err
	}

	center := r2.Point{X: float64(width) / 2, Y: float64(height) / 2}
	rect2, err := r.epipoleToInfinity(e2, center, math.Hypot(float64(width), float64(height)))
	if err != nil {
		return Result{}, err
	}

	// M = [e2]x F + e2 (1,1,1)^T satisfies F ~ [e2]x M, so rect2*M is
	// compatible with rect2 on every epipolar line.
	m := homography.CrossMatrix(e2).Mul(dec.F).Add(homography.Outer(e2, r3.Vector{X: 1, Y: 1, Z: 1}))
	h0 := rect2.Mul(m)

	ha, err := r.matchAffine(pairs, h0, rect2)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Rect1:       ha.Mul(h0).Normalize(),
		Rect2:       rect2.Normalize(),
		Diagnostics: diag,
	}
	res.Diagnostics.RowResidual = RowResidual(res.Rect1, res.Rect2, pairs)
	slog.Debug("Rectification computed",
		"pairs", len(pairs),
		"e1", e1, "e2", e2,
		"at_infinity", diag.EpipoleAtInfinity,
		"row_residual", res.Diagnostics.RowResidual)
	return res, nil
}

func (r *Fundamental) checkEpipoles(d *Diagnostics, width, height int) error {
	if p, in := insideImage(d.Epipoles.Left, width, height, r.cfg.InfinityTolerance); in {
		d.LeftEpipoleInside = true
		slog.Warn("Left epipole lies inside the image; rectified output may grow without bound", "x", p.X, "y", p.Y)
	}
	if p, in := insideImage(d.Epipoles.Right, width, height, r.cfg.InfinityTolerance); in {
		d.RightEpipoleInside = true
		slog.Warn("Right epipole lies inside the image; rectified output may grow without bound", "x", p.X, "y", p.Y)
	}
	if r.cfg.RejectEpipoleInside && (d.LeftEpipoleInside || d.RightEpipoleInside) {
		return degenerate("epipole inside image")
	}
	return nil
}

// epipoleToInfinity builds G*R*T: translate the image center to the origin,
// rotate the epipole onto the x axis, then send it to infinity.
func (r *Fundamental) epipoleToInfinity(e r3.Vector, center r2.Point, diagonal float64) (homography.Homography, error) {
	t := homography.Translation(-center.X, -center.Y)

	if atInfinity(e, r.cfg.InfinityTolerance) {
		// Already at infinity: only align the direction with the x axis.
		dx, dy := e.X, e.Y
		if dx < 0 || (dx == 0 && dy < 0) {
			dx, dy = -dx, -dy
		}
		return homography.Rotation(-math.Atan2(dy, dx)).Mul(t), nil
	}

	px, py := e.X/e.Z-center.X, e.Y/e.Z-center.Y
	dist := math.Hypot(px, py)
	if dist <= r.cfg.CenterTolerance*diagonal {
		return homography.Homography{}, degenerate("epipole at image center (%.3g, %.3g)", e.X/e.Z, e.Y/e.Z)
	}

	// Rotate onto whichever half of the x axis keeps the image upright.
	theta := math.Atan2(py, px)
	if px < 0 {
		theta -= math.Pi
	}
	sin, cos := math.Sincos(theta)
	xr := cos*px + sin*py // +-dist

	g := homography.Identity()
	g[6] = -1 / xr
	return homography.Compose(g, homography.Rotation(-theta), t), nil
}

// matchAffine solves for Ha = [a b c; 0 1 0; 0 0 1] minimising
// sum (a*k.x + b*k.y + c - q.x)^2 with k = h0*left and q = rect2*right.
func (r *Fundamental) matchAffine(pairs []AssociatedPair, h0, rect2 homography.Homography) (homography.Homography, error) {
	n := len(pairs)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	for i, p := range pairs {
		k, err := h0.ApplyPoint(p.Left)
		if err != nil {
			return homography.Homography{}, degenerate("left point %d maps to infinity", i)
		}
		q, err := rect2.ApplyPoint(p.Right)
		if err != nil {
			return homography.Homography{}, degenerate("right point %d maps to infinity", i)
		}
		a.SetRow(i, []float64{k.X, k.Y, 1})
		b.SetVec(i, q.X)
	}

	if cond := mat.Cond(a, 2); math.IsNaN(cond) || cond > r.cfg.MaxCondition {
		return homography.Homography{}, degenerate("ill-conditioned correspondence system (condition %.3g)", cond)
	}
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return homography.Homography{}, degenerate("least squares: %v", err)
	}

	ha := homography.Identity()
	ha[0], ha[1], ha[2] = x.AtVec(0), x.AtVec(1), x.AtVec(2)
	return ha, nil
}

// RowResidual returns the RMS difference between the rows of rect1*left
// and rect2*right. Pairs mapping to infinity are skipped.
func RowResidual(rect1, rect2 homography.Homography, pairs []AssociatedPair) float64 {
	var sum float64
	var n int
	for _, p := range pairs {
		l, err1 := rect1.ApplyPoint(p.Left)
		q, err2 := rect2.ApplyPoint(p.Right)
		if err1 != nil || err2 != nil {
			continue
		}
		d := l.Y - q.Y
		sum += d * d
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(n))
}
