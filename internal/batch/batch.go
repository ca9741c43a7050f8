// Package batch rectifies many frame pairs from disk with one stream,
// holding a bounded number of frames in memory.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/stereorect/internal/rectify"
	"github.com/MeKo-Tech/stereorect/internal/utils"
)

// ErrNoFrames is returned when a batch holds no frame pairs.
var ErrNoFrames = errors.New("no frame pairs provided")

// Process loads, rectifies and saves frames in chunks of cfg.BatchSize.
// It stops at the first failing frame.
func Process(ctx context.Context, stream *rectify.Stream, frames []FramePaths, cfg Config) (*Result, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("no output directory configured")
	}
	outputs, err := planOutputs(frames, cfg)
	if err != nil {
		return nil, err
	}
	size := cfg.BatchSize
	if size <= 0 || size > len(frames) {
		size = len(frames)
	}

	progress := cfg.Parallel.ProgressCallback
	if progress != nil {
		progress.OnStart(len(frames))
		defer progress.OnComplete()
	}

	start := time.Now()
	res := &Result{Frames: make([]FrameOutput, 0, len(frames))}
	for offset := 0; offset < len(frames); offset += size {
		end := min(offset+size, len(frames))
		outs, err := processChunk(ctx, stream, frames, outputs, offset, end, cfg)
		if err != nil {
			return nil, err
		}
		res.Frames = append(res.Frames, outs...)
		res.Batches++
		slog.Debug("Batch rectified", "first", offset, "last", end-1, "total", len(frames))
	}
	res.Duration = time.Since(start)
	return res, nil
}

func processChunk(ctx context.Context, stream *rectify.Stream, frames []FramePaths, outputs []FrameOutput, offset, end int, cfg Config) ([]FrameOutput, error) {
	pairs := make([]rectify.FramePair, 0, end-offset)
	for i := offset; i < end; i++ {
		pair, err := loadPair(frames[i])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		pairs = append(pairs, pair)
	}

	var firstErr error
	pcfg := cfg.Parallel
	if pcfg.ProgressCallback != nil {
		pcfg.ProgressCallback = offsetProgress{cb: pcfg.ProgressCallback, offset: offset, total: len(frames)}
	}
	pcfg.ErrorHandler = func(i int, err error) {
		global := offset + i
		if firstErr == nil {
			firstErr = fmt.Errorf("frame %d: %w", global, err)
		}
		if cfg.Parallel.ErrorHandler != nil {
			cfg.Parallel.ErrorHandler(global, err)
		}
	}

	results, err := stream.RectifyFrames(ctx, pairs, pcfg)
	if firstErr != nil {
		return nil, firstErr
	}
	if err != nil {
		return nil, err
	}

	outs := make([]FrameOutput, 0, len(results))
	for i, r := range results {
		out := outputs[offset+i]
		out.DurationMs = r.Duration.Milliseconds()
		if err := saveFrame(out, r); err != nil {
			return nil, fmt.Errorf("frame %d: %w", out.Frame, err)
		}
		outs = append(outs, out)
	}
	return outs, nil
}

func loadPair(f FramePaths) (rectify.FramePair, error) {
	left, err := loadImage(f.Left)
	if err != nil {
		return rectify.FramePair{}, err
	}
	right, err := loadImage(f.Right)
	if err != nil {
		return rectify.FramePair{}, err
	}
	if err := utils.ValidatePair(left, right); err != nil {
		return rectify.FramePair{}, err
	}
	return rectify.FramePair{Left: left, Right: right}, nil
}

func loadImage(path string) (image.Image, error) {
	img, meta, err := utils.LoadImage(path)
	if err != nil {
		return nil, err
	}
	slog.Debug("Image loaded", "path", meta.Path, "format", meta.Format, "width", meta.Width, "height", meta.Height)
	return img, nil
}

// planOutputs names the rectified files of every frame before anything is
// written. Left and right outputs whose names would collide get left_ and
// right_ prefixes; names shared by several frames, e.g. the same file name
// in two directories, get the frame index appended.
func planOutputs(frames []FramePaths, cfg Config) ([]FrameOutput, error) {
	names := make([][2]string, len(frames))
	count := make(map[string]int, 2*len(frames))
	for i, f := range frames {
		left := utils.OutputName(f.Left, cfg.Suffix, cfg.ImageFormat)
		right := utils.OutputName(f.Right, cfg.Suffix, cfg.ImageFormat)
		if nameKey(left) == nameKey(right) {
			left = "left_" + left
			right = "right_" + right
		}
		names[i] = [2]string{left, right}
		count[nameKey(left)]++
		count[nameKey(right)]++
	}

	outputs := make([]FrameOutput, len(frames))
	owner := make(map[string]int, 2*len(frames))
	for i, pair := range names {
		for side, name := range pair {
			if count[nameKey(name)] > 1 {
				name = indexedName(name, i)
				pair[side] = name
			}
			if prev, ok := owner[nameKey(name)]; ok {
				return nil, fmt.Errorf("frames %d and %d both write %s", prev, i, name)
			}
			owner[nameKey(name)] = i
		}
		outputs[i] = FrameOutput{
			Frame: i,
			Left:  filepath.Join(cfg.OutputDir, pair[0]),
			Right: filepath.Join(cfg.OutputDir, pair[1]),
		}
	}
	return outputs, nil
}

// nameKey folds case so names differing only in case count as one file on
// case-insensitive file systems.
func nameKey(name string) string { return strings.ToLower(name) }

// indexedName inserts the frame index before the extension:
// "img_rect.png" becomes "img_rect_0003.png".
func indexedName(name string, frame int) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%04d%s", strings.TrimSuffix(name, ext), frame, ext)
}

// saveFrame writes both rectified views of a frame.
func saveFrame(out FrameOutput, res *rectify.Result) error {
	if err := utils.SaveImage(res.Left, out.Left); err != nil {
		return err
	}
	return utils.SaveImage(res.Right, out.Right)
}

// offsetProgress reports chunk progress against the whole batch.
type offsetProgress struct {
	cb     rectify.ProgressCallback
	offset int
	total  int
}

func (offsetProgress) OnStart(int) {}

func (p offsetProgress) OnProgress(current, _ int) { p.cb.OnProgress(p.offset+current, p.total) }

func (offsetProgress) OnComplete() {}
