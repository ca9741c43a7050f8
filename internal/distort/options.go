package distort

import (
	"fmt"
	"runtime"
	"strings"
)

// Interpolation selects the sampling kernel.
type Interpolation int

const (
	// Bilinear blends the four neighbouring samples.
	Bilinear Interpolation = iota
	// Nearest takes the closest sample.
	Nearest
)

func (i Interpolation) String() string {
	switch i {
	case Bilinear:
		return "bilinear"
	case Nearest:
		return "nearest"
	default:
		return fmt.Sprintf("Interpolation(%d)", int(i))
	}
}

// ParseInterpolation accepts "bilinear" or "nearest".
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bilinear", "":
		return Bilinear, nil
	case "nearest":
		return Nearest, nil
	default:
		return Bilinear, fmt.Errorf("unknown interpolation %q (want bilinear or nearest)", s)
	}
}

// Border decides what out-of-bounds source coordinates produce.
type Border int

const (
	// BorderValue writes Options.Fill.
	BorderValue Border = iota
	// BorderExtend clamps to the nearest edge sample.
	BorderExtend
)

func (b Border) String() string {
	switch b {
	case BorderValue:
		return "value"
	case BorderExtend:
		return "extend"
	default:
		return fmt.Sprintf("Border(%d)", int(b))
	}
}

// ParseBorder accepts "value" (alias "fill") or "extend".
func ParseBorder(s string) (Border, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "value", "fill", "":
		return BorderValue, nil
	case "extend", "clamp":
		return BorderExtend, nil
	default:
		return BorderValue, fmt.Errorf("unknown border policy %q (want value or extend)", s)
	}
}

// Options configures resampling.
type Options struct {
	Interpolation Interpolation
	Border        Border
	Fill          float64 // written for invalid pixels under BorderValue
	Workers       int     // row workers, 0 = number of CPUs
}

// DefaultOptions returns bilinear sampling with zero fill.
func DefaultOptions() Options {
	return Options{Interpolation: Bilinear, Border: BorderValue}
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}
