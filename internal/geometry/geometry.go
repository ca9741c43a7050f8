// Package geometry reads and writes stereo geometry documents: the image
// size, the fundamental matrix and the inlier correspondences, optionally
// followed by the rectifying transforms computed from them.
//
// Documents are YAML; JSON input is accepted as well.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/MeKo-Tech/stereorect/internal/epipolar"
	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/golang/geo/r2"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument is returned for malformed geometry documents.
var ErrInvalidDocument = errors.New("invalid geometry document")

// Pair is one correspondence as [x, y] pixel coordinates.
type Pair struct {
	Left  []float64 `yaml:"left,flow" json:"left"`
	Right []float64 `yaml:"right,flow" json:"right"`
}

// Document is the on-disk geometry description.
type Document struct {
	Width       int       `yaml:"width" json:"width"`
	Height      int       `yaml:"height" json:"height"`
	Fundamental []float64 `yaml:"fundamental,flow" json:"fundamental"`
	Pairs       []Pair    `yaml:"pairs" json:"pairs"`
	Rect1       []float64 `yaml:"rect1,omitempty,flow" json:"rect1,omitempty"`
	Rect2       []float64 `yaml:"rect2,omitempty,flow" json:"rect2,omitempty"`
}

// Load reads and validates a document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: reading user-provided geometry file is expected
	if err != nil {
		return nil, fmt.Errorf("failed to read geometry file %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes and validates a YAML or JSON document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Write encodes doc as YAML to path.
func Write(path string, doc *Document) error {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write geometry file %s: %w", path, err)
	}
	return nil
}

// Marshal encodes doc as YAML.
func Marshal(doc *Document) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrInvalidDocument)
	}
	return yaml.Marshal(doc)
}

// Validate checks sizes and entry counts. It does not judge whether the
// geometry is degenerate; that is the solver's job.
func (d *Document) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("%w: image size %dx%d must be positive", ErrInvalidDocument, d.Width, d.Height)
	}
	if err := checkMatrix("fundamental", d.Fundamental, true); err != nil {
		return err
	}
	for i, p := range d.Pairs {
		if len(p.Left) != 2 || len(p.Right) != 2 {
			return fmt.Errorf("%w: pair %d needs [x, y] for left and right", ErrInvalidDocument, i)
		}
	}
	if err := checkMatrix("rect1", d.Rect1, false); err != nil {
		return err
	}
	return checkMatrix("rect2", d.Rect2, false)
}

func checkMatrix(name string, v []float64, required bool) error {
	if len(v) == 0 && !required {
		return nil
	}
	if len(v) != 9 {
		return fmt.Errorf("%w: %s needs 9 entries, got %d", ErrInvalidDocument, name, len(v))
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s has non-finite entries", ErrInvalidDocument, name)
		}
	}
	return nil
}

// F returns the fundamental matrix.
func (d *Document) F() (homography.Homography, error) {
	return homography.FromSlice(d.Fundamental)
}

// AssociatedPairs converts the correspondences for the solver.
func (d *Document) AssociatedPairs() []epipolar.AssociatedPair {
	out := make([]epipolar.AssociatedPair, len(d.Pairs))
	for i, p := range d.Pairs {
		out[i] = epipolar.AssociatedPair{
			Left:  r2.Point{X: p.Left[0], Y: p.Left[1]},
			Right: r2.Point{X: p.Right[0], Y: p.Right[1]},
		}
	}
	return out
}

// SetTransforms records a rectifying pair.
func (d *Document) SetTransforms(rect1, rect2 homography.Homography) {
	d.Rect1 = rect1.Slice()
	d.Rect2 = rect2.Slice()
}

// Transforms returns the recorded rectifying pair; ok is false when the
// document has none.
func (d *Document) Transforms() (rect1, rect2 homography.Homography, ok bool, err error) {
	if len(d.Rect1) == 0 || len(d.Rect2) == 0 {
		return rect1, rect2, false, nil
	}
	if rect1, err = homography.FromSlice(d.Rect1); err != nil {
		return rect1, rect2, false, err
	}
	if rect2, err = homography.FromSlice(d.Rect2); err != nil {
		return rect1, rect2, false, err
	}
	return rect1, rect2, true, nil
}

// FromPairs builds a document from solver inputs.
func FromPairs(f homography.Homography, pairs []epipolar.AssociatedPair, width, height int) *Document {
	d := &Document{Width: width, Height: height, Fundamental: f.Slice()}
	for _, p := range pairs {
		d.Pairs = append(d.Pairs, Pair{
			Left:  []float64{p.Left.X, p.Left.Y},
			Right: []float64{p.Right.X, p.Right.Y},
		})
	}
	return d
}
