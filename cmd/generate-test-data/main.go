package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/stereorect/internal/testutil"
	"github.com/MeKo-Tech/stereorect/internal/utils"
)

// sceneSpec describes one synthetic scene written by this tool.
type sceneSpec struct {
	name   string
	rig    func(width, height int) testutil.StereoRig
	width  int
	height int
	points int
}

var scenes = []sceneSpec{
	{name: "canonical", rig: testutil.CanonicalRig, width: 320, height: 240, points: 30},
	{name: "verged", rig: testutil.VergedRig, width: 320, height: 240, points: 30},
	{name: "verged_large", rig: testutil.VergedRig, width: 1280, height: 960, points: 80},
}

func main() {
	// Set up structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		outDir  = flag.String("out", "", "Output directory (default <project root>/testdata/scenes)")
		seed    = flag.Uint64("seed", 7, "Seed for the sampled scene points")
		verbose = flag.Bool("v", false, "Verbose output")
		help    = flag.Bool("h", false, "Show help")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic stereo scenes for stereorect testing.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(os.Stderr, "  %s                   # Write all scenes to testdata/scenes\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -out /tmp/scenes  # Write them elsewhere\n", os.Args[0])
	}

	flag.Parse()

	if *help {
		flag.Usage()
		return
	}

	dir := *outDir
	if dir == "" {
		var err error
		if dir, err = testutil.ScenesDir(); err != nil {
			slog.Error("Failed to find project root", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Starting test data generation...", "dir", dir, "seed", *seed)

	for _, spec := range scenes {
		if err := writeScene(filepath.Join(dir, spec.name), spec, *seed); err != nil {
			slog.Error("Failed to generate scene", "scene", spec.name, "error", err)
			os.Exit(1)
		}
		if *verbose {
			slog.Info("Scene written", "scene", spec.name, "width", spec.width, "height", spec.height)
		}
	}

	slog.Info("Test data generation completed successfully!", "scenes", len(scenes))
}

// writeScene writes geometry.yaml, left.png and right.png for spec into dir.
func writeScene(dir string, spec sceneSpec, seed uint64) error {
	scene := testutil.NewStereoScene(spec.rig(spec.width, spec.height), spec.points, seed)
	if len(scene.Left) < spec.points {
		return fmt.Errorf("only %d of %d points are visible in both views", len(scene.Left), spec.points)
	}

	if err := testutil.EnsureDir(dir); err != nil {
		return fmt.Errorf("failed to create scene directory: %w", err)
	}
	data, err := scene.GeometryYAML()
	if err != nil {
		return fmt.Errorf("failed to render geometry: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "geometry.yaml"), data, 0o600); err != nil {
		return fmt.Errorf("failed to write geometry: %w", err)
	}
	if err := utils.SaveImage(scene.LeftImage, filepath.Join(dir, "left.png")); err != nil {
		return err
	}
	return utils.SaveImage(scene.RightImage, filepath.Join(dir, "right.png"))
}
