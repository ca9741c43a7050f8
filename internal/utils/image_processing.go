package utils

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions without a codec.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ImageProcessingError represents errors that can occur while reading,
// writing or checking images.
type ImageProcessingError struct {
	Operation string
	Path      string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("image processing error in %s (%s): %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// ValidatePair checks that both views exist and share a size.
func ValidatePair(left, right image.Image) error {
	if left == nil || right == nil {
		return &ImageProcessingError{Operation: "validate", Err: errors.New("input image is nil")}
	}
	ls, rs := left.Bounds().Size(), right.Bounds().Size()
	if ls != rs {
		return &ImageProcessingError{
			Operation: "validate",
			Err:       fmt.Errorf("left image is %dx%d but right image is %dx%d", ls.X, ls.Y, rs.X, rs.Y),
		}
	}
	if ls.X < 2 || ls.Y < 2 {
		return &ImageProcessingError{Operation: "validate", Err: fmt.Errorf("image too small: %dx%d", ls.X, ls.Y)}
	}
	return nil
}

// OutputName derives the file name of a rectified view, e.g.
// "frames/cam0_001.png" with suffix "rect" becomes "cam0_001_rect.png".
func OutputName(input, suffix, ext string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if ext == "" {
		ext = filepath.Ext(base)
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return stem + "_" + suffix + ext
}
