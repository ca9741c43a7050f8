package batch

import (
	"time"

	"github.com/MeKo-Tech/stereorect/internal/rectify"
)

// Config holds all configuration for batch rectification.
type Config struct {
	// Output settings
	OutputDir   string
	Suffix      string
	ImageFormat string

	// BatchSize is the number of frame pairs held in memory at once
	// (0 = all frames in one batch).
	BatchSize int

	// Frame-level parallelism, progress and error reporting
	Parallel rectify.ParallelConfig
}

// FramePaths names the left and right image of one frame.
type FramePaths struct {
	Left  string
	Right string
}

// FrameOutput reports the files written for one frame pair.
type FrameOutput struct {
	Frame      int    `json:"frame" yaml:"frame"`
	Left       string `json:"left" yaml:"left"`
	Right      string `json:"right" yaml:"right"`
	DurationMs int64  `json:"duration_ms" yaml:"duration_ms"`
}

// Result holds the result of batch rectification.
type Result struct {
	Frames   []FrameOutput
	Duration time.Duration
	Batches  int
}
