package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/MeKo-Tech/stereorect/internal/rectify"
	"gopkg.in/yaml.v3"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"
	outputFormatYAML = "yaml"
)

// transformsOutput is the printable form of a fitted rectifying pair.
type transformsOutput struct {
	Rect1        []float64 `json:"rect1" yaml:"rect1,flow"`
	Rect2        []float64 `json:"rect2" yaml:"rect2,flow"`
	View         string    `json:"view" yaml:"view"`
	LeftHanded   bool      `json:"left_handed" yaml:"left_handed"`
	Width        int       `json:"width" yaml:"width"`
	Height       int       `json:"height" yaml:"height"`
	OutputWidth  int       `json:"output_width" yaml:"output_width"`
	OutputHeight int       `json:"output_height" yaml:"output_height"`
	LeftEpipole  []float64 `json:"left_epipole" yaml:"left_epipole,flow"`
	RightEpipole []float64 `json:"right_epipole" yaml:"right_epipole,flow"`
	AtInfinity   bool      `json:"epipole_at_infinity" yaml:"epipole_at_infinity"`
	RowResidual  float64   `json:"row_residual" yaml:"row_residual"`
}

func newTransformsOutput(tf *rectify.Transforms) transformsOutput {
	e := tf.Diagnostics.Epipoles
	return transformsOutput{
		Rect1:        tf.Rect1.Slice(),
		Rect2:        tf.Rect2.Slice(),
		View:         tf.View.String(),
		LeftHanded:   tf.LeftHanded,
		Width:        tf.SourceWidth,
		Height:       tf.SourceHeight,
		OutputWidth:  tf.OutputWidth,
		OutputHeight: tf.OutputHeight,
		LeftEpipole:  []float64{e.Left.X, e.Left.Y, e.Left.Z},
		RightEpipole: []float64{e.Right.X, e.Right.Y, e.Right.Z},
		AtInfinity:   tf.Diagnostics.EpipoleAtInfinity,
		RowResidual:  tf.Diagnostics.RowResidual,
	}
}

// writeStructured writes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported structured format %q", format)
	}
}

// writeTransformsText prints a pair of transforms for humans.
func writeTransformsText(w io.Writer, tf *rectify.Transforms) error {
	d := tf.Diagnostics
	_, err := fmt.Fprintf(w,
		"Source: %dx%d\nOutput: %dx%d (view %s, left-handed %t)\nrect1: %v\nrect2: %v\nRow residual: %.3g px\nEpipole at infinity: %t\n",
		tf.SourceWidth, tf.SourceHeight, tf.OutputWidth, tf.OutputHeight, tf.View, tf.LeftHanded,
		tf.Rect1, tf.Rect2, d.RowResidual, d.EpipoleAtInfinity)
	return err
}
