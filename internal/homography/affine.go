package homography

import (
	"math"

	"github.com/golang/geo/r3"
)

// Translation returns the transform (x, y) -> (x+tx, y+ty).
func Translation(tx, ty float64) Homography {
	return Homography{1, 0, tx, 0, 1, ty, 0, 0, 1}
}

// Scaling returns the transform (x, y) -> (sx*x, sy*y).
func Scaling(sx, sy float64) Homography {
	return Homography{sx, 0, 0, 0, sy, 0, 0, 0, 1}
}

// Rotation returns a counter-clockwise rotation by theta radians about the origin.
func Rotation(theta float64) Homography {
	s, c := math.Sincos(theta)
	return Homography{c, -s, 0, s, c, 0, 0, 0, 1}
}

// FlipY mirrors pixel rows of an image with the given height: y -> height-1-y.
// It is its own inverse.
func FlipY(height int) Homography {
	return Homography{1, 0, 0, 0, -1, float64(height - 1), 0, 0, 1}
}

// CrossMatrix returns [v]x, the matrix with [v]x * u == v x u.
func CrossMatrix(v r3.Vector) Homography {
	return Homography{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	}
}

// Outer returns a * b^T.
func Outer(a, b r3.Vector) Homography {
	return Homography{
		a.X * b.X, a.X * b.Y, a.X * b.Z,
		a.Y * b.X, a.Y * b.Y, a.Y * b.Z,
		a.Z * b.X, a.Z * b.Y, a.Z * b.Z,
	}
}

// Add returns the entrywise sum.
func (h Homography) Add(o Homography) Homography {
	for i := range h {
		h[i] += o[i]
	}
	return h
}
