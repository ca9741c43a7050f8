package rectify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
)

// FramePair is one left/right capture.
type FramePair struct {
	Left  image.Image
	Right image.Image
}

// ProgressCallback receives progress while a batch of frames is processed.
type ProgressCallback interface {
	OnStart(total int)
	OnProgress(current, total int)
	OnComplete()
}

// ParallelConfig holds configuration for processing many frames.
type ParallelConfig struct {
	MaxWorkers       int              // frame workers (0 = runtime.NumCPU())
	ProgressCallback ProgressCallback // optional
	ErrorHandler     func(int, error) // optional, called per failed frame
}

// DefaultParallelConfig returns one worker per CPU and no callbacks.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

type frameJob struct {
	index int
	pair  FramePair
}

type frameResult struct {
	index  int
	result *Result
	err    error
}

// RectifyFrames rectifies frames with a worker pool. Results are returned in
// input order; the error names the first failing frame.
func (s *Stream) RectifyFrames(ctx context.Context, frames []FramePair, cfg ParallelConfig) ([]*Result, error) {
	if len(frames) == 0 {
		return nil, errors.New("no frames provided")
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	workers := min(cfg.MaxWorkers, len(frames))

	if cfg.ProgressCallback != nil {
		cfg.ProgressCallback.OnStart(len(frames))
		defer cfg.ProgressCallback.OnComplete()
	}

	jobs := make(chan frameJob, len(frames))
	results := make(chan frameResult, len(frames))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go s.worker(ctx, jobs, results, &wg)
	}

	go func() {
		defer close(jobs)
		for i, f := range frames {
			select {
			case jobs <- frameJob{index: i, pair: f}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*Result, len(frames))
	errs := make([]error, len(frames))
	done := 0
	for r := range results {
		ordered[r.index] = r.result
		errs[r.index] = r.err
		done++
		if cfg.ProgressCallback != nil {
			cfg.ProgressCallback.OnProgress(done, len(frames))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var firstErr error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("frame %d: %w", i, err)
		}
		if cfg.ErrorHandler != nil {
			cfg.ErrorHandler(i, err)
		}
	}
	return ordered, firstErr
}

func (s *Stream) worker(ctx context.Context, jobs <-chan frameJob, results chan<- frameResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			res, err := s.Rectify(ctx, job.pair.Left, job.pair.Right)
			select {
			case results <- frameResult{index: job.index, result: res, err: err}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
