package testutil

import (
	"math"
	"math/rand/v2"

	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// StereoRig is a synthetic two-camera setup. A point X in left camera
// coordinates is seen by the right camera at R*X + T.
type StereoRig struct {
	K1, K2        homography.Homography
	R             homography.Homography
	T             r3.Vector
	Width, Height int
}

// Intrinsics builds a pinhole camera matrix.
func Intrinsics(f, cx, cy float64) homography.Homography {
	return homography.Homography{f, 0, cx, 0, f, cy, 0, 0, 1}
}

// RotX returns a rotation about the x axis.
func RotX(a float64) homography.Homography {
	s, c := math.Sincos(a)
	return homography.Homography{1, 0, 0, 0, c, -s, 0, s, c}
}

// RotY returns a rotation about the y axis.
func RotY(a float64) homography.Homography {
	s, c := math.Sincos(a)
	return homography.Homography{c, 0, s, 0, 1, 0, -s, 0, c}
}

// RotZ returns a rotation about the z axis.
func RotZ(a float64) homography.Homography {
	s, c := math.Sincos(a)
	return homography.Homography{c, -s, 0, s, c, 0, 0, 0, 1}
}

// CanonicalRig is two identical cameras displaced along x: epipolar lines
// are already horizontal.
func CanonicalRig(width, height int) StereoRig {
	k := Intrinsics(500, float64(width)/2, float64(height)/2)
	return StereoRig{
		K1: k, K2: k,
		R:     homography.Identity(),
		T:     r3.Vector{X: -0.2},
		Width: width, Height: height,
	}
}

// VergedRig is a general rig with converging cameras, a small vertical
// offset and differing focal lengths. Both epipoles lie outside the images.
func VergedRig(width, height int) StereoRig {
	cx, cy := float64(width)/2, float64(height)/2
	return StereoRig{
		K1:    Intrinsics(520, cx, cy),
		K2:    Intrinsics(480, cx+4, cy-3),
		R:     homography.Compose(RotY(-0.08), RotX(0.02), RotZ(0.01)),
		T:     r3.Vector{X: -0.3, Y: 0.02, Z: 0.04},
		Width: width, Height: height,
	}
}

// Fundamental returns F = K2^-T [T]x R K1^-1, so right^T F left = 0.
func (s StereoRig) Fundamental() homography.Homography {
	k1inv, err := s.K1.Inverse()
	if err != nil {
		panic(err)
	}
	k2inv, err := s.K2.Inverse()
	if err != nil {
		panic(err)
	}
	return homography.Compose(k2inv.Transpose(), homography.CrossMatrix(s.T), s.R, k1inv)
}

// Project returns the pixel positions of a left-camera point in both images.
func (s StereoRig) Project(x r3.Vector) (left, right r2.Point, ok bool) {
	xr := s.R.ApplyHomogeneous(x).Add(s.T)
	if x.Z <= 0 || xr.Z <= 0 {
		return r2.Point{}, r2.Point{}, false
	}
	l, err1 := homography.Dehomogenize(s.K1.ApplyHomogeneous(x))
	r, err2 := homography.Dehomogenize(s.K2.ApplyHomogeneous(xr))
	if err1 != nil || err2 != nil {
		return r2.Point{}, r2.Point{}, false
	}
	return l, r, s.inside(l) && s.inside(r)
}

func (s StereoRig) inside(p r2.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= float64(s.Width-1) && p.Y <= float64(s.Height-1)
}

// Correspondences samples n scene points visible in both images and
// returns their projections. The result is deterministic for a given seed.
func (s StereoRig) Correspondences(n int, seed uint64) (left, right []r2.Point) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for attempts := 0; len(left) < n && attempts < 1000*n; attempts++ {
		x := r3.Vector{
			X: rng.Float64()*4 - 2,
			Y: rng.Float64()*3 - 1.5,
			Z: 4 + rng.Float64()*6,
		}
		l, r, ok := s.Project(x)
		if !ok {
			continue
		}
		left = append(left, l)
		right = append(right, r)
	}
	return left, right
}

// Noisy returns a copy of pts with uniform jitter of the given amplitude.
func Noisy(pts []r2.Point, amplitude float64, seed uint64) []r2.Point {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = r2.Point{
			X: p.X + (rng.Float64()*2-1)*amplitude,
			Y: p.Y + (rng.Float64()*2-1)*amplitude,
		}
	}
	return out
}
