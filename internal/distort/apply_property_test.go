package distort

import (
	"context"
	"math"
	"testing"

	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/MeKo-Tech/stereorect/internal/raster"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genWarp generates mild perspective warps of a 24x18 raster.
func genWarp() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(-0.3, 0.3),
		gen.Float64Range(0.7, 1.4),
		gen.Float64Range(-6, 6),
		gen.Float64Range(-6, 6),
		gen.Float64Range(-2e-3, 2e-3),
	).Map(func(v []interface{}) homography.Homography {
		h := homography.Compose(
			homography.Translation(v[2].(float64), v[3].(float64)),
			homography.Rotation(v[0].(float64)),
			homography.Scaling(v[1].(float64), v[1].(float64)),
		)
		h[7] = v[4].(float64)
		return h
	})
}

// genPlanar generates a three-band 24x18 raster.
func genPlanar() gopter.Gen {
	return gen.SliceOfN(3*24*18, gen.Float32Range(0, 255)).Map(func(pix []float32) *raster.Planar[float32] {
		p := raster.NewPlanar[float32](24, 18, 3)
		for i, b := range p.Bands {
			copy(b.Pix, pix[i*24*18:(i+1)*24*18])
		}
		return p
	})
}

// TestApplyBandIndependence verifies that resampling bands one at a time
// matches resampling the raster as a whole.
func TestApplyBandIndependence(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("per-band resampling equals whole-raster resampling", prop.ForAll(
		func(h homography.Homography, src *raster.Planar[float32], workers int) bool {
			m, err := BuildMap(h, 20, 16)
			if err != nil {
				return false
			}
			opts := Options{Workers: workers, Fill: 3}
			whole, err := ApplyPlanar(context.Background(), m, src, opts)
			if err != nil {
				return false
			}
			for i, b := range src.Bands {
				single, err := Apply(m, b, opts)
				if err != nil {
					return false
				}
				for j := range single.Pix {
					if single.Pix[j] != whole.Bands[i].Pix[j] {
						return false
					}
				}
			}
			return true
		},
		genWarp(),
		genPlanar(),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

// TestApplyInverseRoundTrip verifies that warping and unwarping a smooth
// ramp restores interior values.
func TestApplyInverseRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("warp then inverse warp restores a linear ramp", prop.ForAll(
		func(h homography.Homography) bool {
			src := raster.NewBand[float64](24, 18)
			for y := range 18 {
				for x := range 24 {
					src.Set(x, y, 2*float64(x)+3*float64(y))
				}
			}
			inv, err := h.Inverse()
			if err != nil {
				return false
			}
			m, err := BuildMap(h, 24, 18)
			if err != nil {
				return false
			}
			back, err := BuildMap(inv, 24, 18)
			if err != nil {
				return false
			}
			opts := Options{Fill: math.NaN(), Workers: 2}
			warped, err := Apply(m, src, opts)
			if err != nil {
				return false
			}
			restored, err := Apply(back, warped, opts)
			if err != nil {
				return false
			}
			for i, v := range restored.Pix {
				if math.IsNaN(v) {
					continue
				}
				// The warped ramp is nearly linear, so bilinear sampling stays close.
				if math.Abs(v-src.Pix[i]) > 0.05 {
					return false
				}
			}
			return true
		},
		genWarp(),
	))

	properties.TestingRun(t)
}
