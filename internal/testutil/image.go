package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RenderBlobs draws a Gaussian spot of the given sigma at every point on a
// black grayscale canvas. Overlapping spots saturate at 255.
func RenderBlobs(width, height int, pts []r2.Point, sigma float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	radius := int(math.Ceil(3 * sigma))
	for _, p := range pts {
		cx, cy := int(math.Round(p.X)), int(math.Round(p.Y))
		for y := max(0, cy-radius); y <= min(height-1, cy+radius); y++ {
			for x := max(0, cx-radius); x <= min(width-1, cx+radius); x++ {
				dx, dy := float64(x)-p.X, float64(y)-p.Y
				v := 255 * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
				i := img.PixOffset(x, y)
				img.Pix[i] = uint8(math.Min(255, float64(img.Pix[i])+v))
			}
		}
	}
	return img
}

// Checkerboard returns an opaque colour checkerboard with a text label in
// the top-left cell.
func Checkerboard(width, height, cell int, label string) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	dark := color.NRGBA{R: 40, G: 60, B: 90, A: 255}
	light := color.NRGBA{R: 230, G: 210, B: 170, A: 255}
	for y := range height {
		for x := range width {
			if (x/cell+y/cell)%2 == 0 {
				img.SetNRGBA(x, y, dark)
			} else {
				img.SetNRGBA(x, y, light)
			}
		}
	}
	if label != "" {
		d := &font.Drawer{
			Dst:  img,
			Src:  image.NewUniform(color.White),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(2, 13),
		}
		d.DrawString(label)
	}
	return img
}

// Uniform returns a single-colour RGBA image.
func Uniform(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// BrightestSpot returns the intensity-weighted centroid of the 5x5
// neighbourhood around the brightest pixel.
func BrightestSpot(img *image.Gray) r2.Point {
	b := img.Bounds()
	best, bx, by := -1, 0, 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if v := int(img.GrayAt(x, y).Y); v > best {
				best, bx, by = v, x, y
			}
		}
	}
	var sx, sy, sw float64
	for y := max(b.Min.Y, by-2); y <= min(b.Max.Y-1, by+2); y++ {
		for x := max(b.Min.X, bx-2); x <= min(b.Max.X-1, bx+2); x++ {
			w := float64(img.GrayAt(x, y).Y)
			sx += w * float64(x)
			sy += w * float64(y)
			sw += w
		}
	}
	if sw == 0 {
		return r2.Point{X: float64(bx), Y: float64(by)}
	}
	return r2.Point{X: sx / sw, Y: sy / sw}
}

// SaveImage saves an image as PNG, creating parent directories.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	dir := filepath.Dir(path)
	require.NoError(t, EnsureDir(dir), "Failed to create directory %s", dir)

	file, err := os.Create(path) //nolint:gosec // G304: Test file creation with controlled path
	require.NoError(t, err, "Failed to create file %s", path)
	defer func() {
		require.NoError(t, file.Close())
	}()

	require.NoError(t, png.Encode(file, img), "Failed to encode PNG image")
}

// LoadImage decodes an image file.
func LoadImage(t *testing.T, path string) image.Image {
	t.Helper()

	file, err := os.Open(path) //nolint:gosec // G304: Test file reading with controlled path
	require.NoError(t, err, "Failed to open image file %s", path)
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	require.NoError(t, err, "Failed to decode image")
	return img
}

// MeanAbsDiff returns the mean absolute difference of the RGBA channels,
// scaled to 0-255, or +Inf when the bounds differ.
func MeanAbsDiff(a, b image.Image) float64 {
	ba, bb := a.Bounds(), b.Bounds()
	if ba.Size() != bb.Size() {
		return math.Inf(1)
	}
	var total float64
	for y := range ba.Dy() {
		for x := range ba.Dx() {
			r1, g1, b1, a1 := a.At(ba.Min.X+x, ba.Min.Y+y).RGBA()
			r2, g2, b2, a2 := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			total += math.Abs(float64(r1)-float64(r2)) + math.Abs(float64(g1)-float64(g2)) +
				math.Abs(float64(b1)-float64(b2)) + math.Abs(float64(a1)-float64(a2))
		}
	}
	n := float64(4 * ba.Dx() * ba.Dy())
	if n == 0 {
		return 0
	}
	return total / n / 257
}
