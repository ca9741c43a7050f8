package cmd

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/stereorect/internal/geometry"
	"github.com/MeKo-Tech/stereorect/internal/rectify"
	"github.com/spf13/cobra"
)

func newTransformsCommand(state *cliState) *cobra.Command {
	c := &cobra.Command{
		Use:   "transforms",
		Short: "Compute the rectifying homographies for a geometry document",
		Long: `Compute rect1 (left view) and rect2 (right view) from the fundamental
matrix and correspondences in a geometry document, fitted to the output
raster.

Examples:
  stereorect transforms -g geometry.yaml
  stereorect transforms -g geometry.yaml --view inside --format json
  stereorect transforms -g geometry.yaml --write rectified.yaml`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			geomPath, _ := cmd.Flags().GetString("geometry")
			writePath, _ := cmd.Flags().GetString("write")
			if geomPath == "" {
				return errors.New("no geometry document provided (use --geometry)")
			}

			_, doc, tf, err := computeFromDocument(state, geomPath)
			if err != nil {
				return err
			}

			if writePath != "" {
				doc.SetTransforms(tf.Rect1, tf.Rect2)
				if err := geometry.Write(writePath, doc); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if state.cfg.Output.Format == outputFormatText || state.cfg.Output.Format == "" {
				if err := writeTransformsText(out, tf); err != nil {
					return err
				}
				if writePath != "" {
					_, err = fmt.Fprintf(out, "Transforms written to %s\n", writePath)
				}
				return err
			}
			return writeStructured(out, state.cfg.Output.Format, newTransformsOutput(tf))
		},
	}

	c.Flags().StringP("geometry", "g", "", "geometry document (YAML or JSON)")
	c.Flags().String("write", "", "write the document with rect1 and rect2 to this file")
	c.Flags().String("view", "full", "view fitting: full or inside")
	c.Flags().Bool("left-handed", false, "coordinates use a y-up frame")
	c.Flags().Int("width", 0, "output width (0 = source width)")
	c.Flags().Int("height", 0, "output height (0 = source height)")
	c.Flags().StringP("format", "f", outputFormatText, "output format: text, json, yaml")

	bindKey(c.Flags(), "view", "rectify.view")
	bindKey(c.Flags(), "left-handed", "rectify.left_handed")
	bindKey(c.Flags(), "width", "rectify.output_width")
	bindKey(c.Flags(), "height", "rectify.output_height")
	bindKey(c.Flags(), "format", "output.format")
	return c
}

// computeFromDocument loads a geometry document and computes its transforms
// with the loaded configuration.
func computeFromDocument(state *cliState, path string) (*rectify.Rectifier, *geometry.Document, *rectify.Transforms, error) {
	rc, err := state.cfg.ToRectifyConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	rect, err := rectify.New(rc)
	if err != nil {
		return nil, nil, nil, err
	}
	doc, err := geometry.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	f, err := doc.F()
	if err != nil {
		return nil, nil, nil, err
	}
	tf, err := rect.Compute(f, doc.AssociatedPairs(), doc.Width, doc.Height)
	if err != nil {
		return nil, nil, nil, err
	}
	return rect, doc, tf, nil
}
