package benchmark

import (
	"context"
	"fmt"
	"image"

	"github.com/MeKo-Tech/stereorect/internal/epipolar"
	"github.com/MeKo-Tech/stereorect/internal/homography"
	"github.com/MeKo-Tech/stereorect/internal/rectify"
	"github.com/MeKo-Tech/stereorect/internal/testutil"
)

// Benchmark names registered by Rectification.Register.
const (
	ComputeTransforms = "compute_transforms"
	BuildMaps         = "build_maps"
	RectifyReused     = "rectify_reused_maps"
	RectifyRebuilt    = "rectify_rebuilt_maps"
	RectifyFrames     = "rectify_frames_parallel"
)

// Rectification benchmarks the engine on one synthetic verged scene.
type Rectification struct {
	rect   *rectify.Rectifier
	f      homography.Homography
	pairs  []epipolar.AssociatedPair
	left   image.Image
	right  image.Image
	tf     *rectify.Transforms
	stream *rectify.Stream
	frames int
}

// NewRectification renders a width x height scene and prepares a stream.
// frames is the batch size of the parallel benchmark.
func NewRectification(width, height, frames int, cfg rectify.Config) (*Rectification, error) {
	if frames < 1 {
		return nil, fmt.Errorf("frames must be positive, got %d", frames)
	}
	rect, err := rectify.New(cfg)
	if err != nil {
		return nil, err
	}

	scene := testutil.NewStereoScene(testutil.VergedRig(width, height), 40, 1)
	pairs := make([]epipolar.AssociatedPair, len(scene.Left))
	for i := range scene.Left {
		pairs[i] = epipolar.AssociatedPair{Left: scene.Left[i], Right: scene.Right[i]}
	}

	b := &Rectification{
		rect:   rect,
		f:      scene.Rig.Fundamental(),
		pairs:  pairs,
		left:   scene.LeftImage,
		right:  scene.RightImage,
		frames: frames,
	}
	if b.tf, err = rect.Compute(b.f, pairs, width, height); err != nil {
		return nil, fmt.Errorf("prepare transforms: %w", err)
	}
	if b.stream, err = rect.NewStream(b.tf); err != nil {
		return nil, fmt.Errorf("prepare stream: %w", err)
	}
	return b, nil
}

// Transforms returns the transforms shared by the benchmarks.
func (b *Rectification) Transforms() *rectify.Transforms { return b.tf }

// Register adds the rectification benchmarks to s.
func (b *Rectification) Register(s *Suite) {
	s.Add(ComputeTransforms, func(context.Context) error {
		_, err := b.rect.Compute(b.f, b.pairs, b.tf.SourceWidth, b.tf.SourceHeight)
		return err
	})
	s.Add(BuildMaps, func(context.Context) error {
		_, err := b.rect.NewStream(b.tf)
		return err
	})
	s.Add(RectifyReused, func(ctx context.Context) error {
		_, err := b.stream.Rectify(ctx, b.left, b.right)
		return err
	})
	s.Add(RectifyRebuilt, func(ctx context.Context) error {
		_, err := b.rect.Rectify(ctx, b.f, b.pairs, b.left, b.right)
		return err
	})
	s.Add(RectifyFrames, func(ctx context.Context) error {
		frames := make([]rectify.FramePair, b.frames)
		for i := range frames {
			frames[i] = rectify.FramePair{Left: b.left, Right: b.right}
		}
		_, err := b.stream.RectifyFrames(ctx, frames, rectify.DefaultParallelConfig())
		return err
	})
}
