package epipolar

import (
	"math"

	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// minSecondSingular is the smallest s2/s1 for which F still has rank 2.
const minSecondSingular = 1e-10

// Epipoles holds both epipoles as unit homogeneous vectors.
// Left is null(F), Right is null(F^T).
type Epipoles struct {
	Left  r3.Vector
	Right r3.Vector
}

// Decomposition is the outcome of checking F.
type Decomposition struct {
	Epipoles       Epipoles
	SingularValues [3]float64
	F              homography.Homography // rank-2 version when enforced
}

// ComputeEpipoles extracts the epipoles of F.
func ComputeEpipoles(f homography.Homography) (Epipoles, error) {
	d, err := decompose(DefaultConfig(), f)
	if err != nil {
		return Epipoles{}, err
	}
	return d.Epipoles, nil
}

func decompose(cfg Config, f homography.Homography) (Decomposition, error) {
	if !f.IsFinite() {
		return Decomposition{}, degenerate("fundamental matrix has non-finite entries")
	}
	if f.MaxAbs() == 0 {
		return Decomposition{}, degenerate("fundamental matrix is zero")
	}
	svd, err := homography.Decompose(f)
	if err != nil {
		return Decomposition{}, degenerate("fundamental matrix: %v", err)
	}
	s := svd.Values
	if s[1]/s[0] < minSecondSingular {
		return Decomposition{}, degenerate("fundamental matrix has rank < 2 (s2/s1 = %.3g)", s[1]/s[0])
	}
	if s[2]/s[1] > cfg.RankTolerance {
		return Decomposition{}, degenerate("fundamental matrix has rank 3 (s3/s2 = %.3g)", s[2]/s[1])
	}
	if cfg.EnforceRank2 {
		f = svd.Rank2()
	}
	// F is defined up to scale. Fixing norm and sign makes the result
	// independent of the caller's choice.
	f = canonicalScale(f.Scale(1 / s[0]))
	return Decomposition{
		Epipoles: Epipoles{
			Left:  canonicalSign(svd.NullVector()),
			Right: canonicalSign(svd.LeftNullVector()),
		},
		SingularValues: s,
		F:              f,
	}, nil
}

// canonicalSign picks the representative with positive z, or positive x
// (then y) for a point at infinity.
func canonicalSign(e r3.Vector) r3.Vector {
	e = e.Normalize()
	switch {
	case math.Abs(e.Z) > 1e-12:
		if e.Z < 0 {
			return e.Mul(-1)
		}
	case e.X < 0, e.X == 0 && e.Y < 0:
		return e.Mul(-1)
	}
	return e
}

// atInfinity reports whether a unit epipole has no finite image.
func atInfinity(e r3.Vector, tol float64) bool {
	return math.Abs(e.Z) <= tol
}

// insideImage reports whether the epipole projects into [0,w]x[0,h].
func insideImage(e r3.Vector, width, height int, tol float64) (r2.Point, bool) {
	if atInfinity(e, tol) {
		return r2.Point{}, false
	}
	p := r2.Point{X: e.X / e.Z, Y: e.Y / e.Z}
	return p, p.X >= 0 && p.X <= float64(width) && p.Y >= 0 && p.Y <= float64(height)
}

// canonicalScale flips f so its largest entry is positive. Entries within
// a relative 1e-9 of the maximum count as ties and the first one wins.
func canonicalScale(f homography.Homography) homography.Homography {
	m := f.MaxAbs()
	for _, v := range f {
		if math.Abs(v) >= (1-1e-9)*m {
			if v < 0 {
				return f.Scale(-1)
			}
			break
		}
	}
	return f
}
