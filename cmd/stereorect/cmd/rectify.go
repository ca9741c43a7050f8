package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MeKo-Tech/stereorect/internal/batch"
	"github.com/spf13/cobra"
)

// rectifyOutput is the structured summary of a rectify run.
type rectifyOutput struct {
	Transforms transformsOutput    `json:"transforms" yaml:"transforms"`
	Frames     []batch.FrameOutput `json:"frames" yaml:"frames"`
}

// logProgress reports frame progress through slog.
type logProgress struct{}

func (logProgress) OnStart(total int) { slog.Info("Rectifying frames", "total", total) }

func (logProgress) OnProgress(current, total int) {
	slog.Debug("Frame rectified", "current", current, "total", total)
}

func (logProgress) OnComplete() { slog.Info("All frames rectified") }

func newRectifyCommand(state *cliState) *cobra.Command {
	c := &cobra.Command{
		Use:   "rectify [LEFT RIGHT ...]",
		Short: "Rectify one or more stereo image pairs",
		Long: `Rectify stereo frame pairs that share one geometry document. The
resampling maps are built once and reused for every pair; pairs are processed
in parallel.

Frames are given as LEFT RIGHT argument pairs, or as two camera directories
whose images are matched by name.

Supported formats: JPEG, PNG, BMP

Examples:
  stereorect rectify -g geometry.yaml left.png right.png --out-dir out
  stereorect rectify -g geometry.yaml --left-dir cam0 --right-dir cam1 -o out
  stereorect rectify -g geometry.yaml --left-dir cam0 --right-dir cam1 -r --include '*.png' --batch-size 50 -o out`,
		SilenceUsage: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("left-dir") || cmd.Flags().Changed("right-dir") {
				if len(args) > 0 {
					return errors.New("image arguments cannot be combined with --left-dir/--right-dir")
				}
				return nil
			}
			_, err := batch.PairArgs(args)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			geomPath, _ := cmd.Flags().GetString("geometry")
			if geomPath == "" {
				return errors.New("no geometry document provided (use --geometry)")
			}
			cfg := state.cfg
			if cfg.Output.Dir == "" {
				return errors.New("no output directory provided (use --out-dir)")
			}

			frames, err := framePaths(cmd, args)
			if err != nil {
				return err
			}

			rect, _, tf, err := computeFromDocument(state, geomPath)
			if err != nil {
				return err
			}
			stream, err := rect.NewStream(tf)
			if err != nil {
				return err
			}

			bcfg := cfg.ToBatchConfig()
			bcfg.Parallel.ProgressCallback = logProgress{}
			bcfg.Parallel.ErrorHandler = func(i int, err error) {
				slog.Error("Frame failed", "frame", i, "left", frames[i].Left, "right", frames[i].Right, "error", err)
			}

			res, err := batch.Process(cmd.Context(), stream, frames, bcfg)
			if err != nil {
				return err
			}
			slog.Info("Rectification completed", "frames", len(res.Frames), "batches", res.Batches, "duration", res.Duration)

			summary := rectifyOutput{Transforms: newTransformsOutput(tf), Frames: res.Frames}
			if cfg.Output.Format == outputFormatText || cfg.Output.Format == "" {
				return writeRectifyText(cmd.OutOrStdout(), cfg.Output.Dir, summary)
			}
			return writeStructured(cmd.OutOrStdout(), cfg.Output.Format, summary)
		},
	}

	c.Flags().StringP("geometry", "g", "", "geometry document (YAML or JSON)")
	c.Flags().StringP("out-dir", "o", "", "directory for rectified images")
	c.Flags().String("left-dir", "", "directory of left camera images")
	c.Flags().String("right-dir", "", "directory of right camera images")
	c.Flags().BoolP("recursive", "r", false, "search camera directories recursively")
	c.Flags().StringSlice("include", nil, "only use images matching these glob patterns")
	c.Flags().StringSlice("exclude", nil, "skip images matching these glob patterns")
	c.Flags().Int("batch-size", 0, "frame pairs held in memory at once (0 = all)")
	c.Flags().String("suffix", "rect", "suffix appended to output file names")
	c.Flags().String("image-format", "png", "output image format: png, jpg, bmp")
	c.Flags().String("view", "full", "view fitting: full or inside")
	c.Flags().Bool("left-handed", false, "coordinates use a y-up frame")
	c.Flags().Int("width", 0, "output width (0 = source width)")
	c.Flags().Int("height", 0, "output height (0 = source height)")
	c.Flags().String("interp", "bilinear", "interpolation: bilinear or nearest")
	c.Flags().String("border", "value", "border handling: value or extend")
	c.Flags().Float64("fill", 0, "fill value for pixels outside the source")
	c.Flags().Int("workers", 0, "row workers per image (0 = one per CPU)")
	c.Flags().Int("frame-workers", 0, "frame pairs processed in parallel (0 = one per CPU)")
	c.Flags().String("debug-dir", "", "write side-by-side before/after PNGs here")
	c.Flags().StringP("format", "f", outputFormatText, "summary format: text, json, yaml")

	bindKey(c.Flags(), "out-dir", "output.dir")
	bindKey(c.Flags(), "suffix", "output.suffix")
	bindKey(c.Flags(), "image-format", "output.image_format")
	bindKey(c.Flags(), "view", "rectify.view")
	bindKey(c.Flags(), "left-handed", "rectify.left_handed")
	bindKey(c.Flags(), "width", "rectify.output_width")
	bindKey(c.Flags(), "height", "rectify.output_height")
	bindKey(c.Flags(), "interp", "resample.interpolation")
	bindKey(c.Flags(), "border", "resample.border")
	bindKey(c.Flags(), "fill", "resample.fill")
	bindKey(c.Flags(), "workers", "resample.workers")
	bindKey(c.Flags(), "frame-workers", "parallel.max_workers")
	bindKey(c.Flags(), "batch-size", "parallel.batch_size")
	bindKey(c.Flags(), "debug-dir", "rectify.debug_dir")
	bindKey(c.Flags(), "format", "output.format")
	return c
}

// framePaths resolves the frames named by arguments or camera directories.
func framePaths(cmd *cobra.Command, args []string) ([]batch.FramePaths, error) {
	leftDir, _ := cmd.Flags().GetString("left-dir")
	rightDir, _ := cmd.Flags().GetString("right-dir")
	if leftDir == "" && rightDir == "" {
		return batch.PairArgs(args)
	}
	if leftDir == "" || rightDir == "" {
		return nil, errors.New("--left-dir and --right-dir must be given together")
	}
	recursive, _ := cmd.Flags().GetBool("recursive")
	include, _ := cmd.Flags().GetStringSlice("include")
	exclude, _ := cmd.Flags().GetStringSlice("exclude")
	return batch.PairDirectories(leftDir, rightDir, batch.DiscoveryOptions{
		Recursive:       recursive,
		IncludePatterns: include,
		ExcludePatterns: exclude,
	})
}

func writeRectifyText(w io.Writer, dir string, s rectifyOutput) error {
	if _, err := fmt.Fprintf(w, "Rectified %d frame pair(s) into %s (row residual %.3g px)\n",
		len(s.Frames), dir, s.Transforms.RowResidual); err != nil {
		return err
	}
	for _, f := range s.Frames {
		if _, err := fmt.Fprintf(w, "  #%d %s %s\n", f.Frame, f.Left, f.Right); err != nil {
			return err
		}
	}
	return nil
}
