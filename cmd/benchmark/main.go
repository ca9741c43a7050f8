package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MeKo-Tech/stereorect/internal/benchmark"
	"github.com/MeKo-Tech/stereorect/internal/distort"
	"github.com/MeKo-Tech/stereorect/internal/rectify"
)

func main() {
	var (
		width      = flag.Int("width", 1280, "Synthetic image width")
		height     = flag.Int("height", 960, "Synthetic image height")
		iterations = flag.Int("iterations", 5, "Number of iterations per benchmark")
		frames     = flag.Int("frames", 8, "Frame pairs per parallel batch")
		interp     = flag.String("interp", "bilinear", "Interpolation: bilinear or nearest")
		workers    = flag.Int("workers", 0, "Row workers per image (0 = one per CPU)")
		only       = flag.String("only", "", "Comma-separated benchmark names to run")
		outputFile = flag.String("output", "", "Write results as JSON to this file (optional)")
	)
	flag.Parse()

	cfg := rectify.DefaultConfig()
	mode, err := distort.ParseInterpolation(*interp)
	if err != nil {
		log.Fatalf("Invalid interpolation: %v", err)
	}
	cfg.Interpolation = mode
	cfg.Workers = *workers

	fmt.Println("stereorect rectification benchmark")
	fmt.Println("==================================")
	fmt.Printf("Scene %dx%d, %d iterations, %d frames per batch\n", *width, *height, *iterations, *frames)

	bench, err := benchmark.NewRectification(*width, *height, *frames, cfg)
	if err != nil {
		log.Fatalf("Failed to prepare benchmark: %v", err)
	}
	fmt.Printf("Row residual of the synthetic scene: %.3g px\n", bench.Transforms().Diagnostics.RowResidual)

	suite := benchmark.NewSuite()
	bench.Register(suite)
	if *only != "" {
		names := strings.Split(*only, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		filtered, err := suite.Filter(names...)
		if err != nil {
			log.Fatalf("Invalid -only: %v (available: %s)", err, strings.Join(suite.Names(), ", "))
		}
		suite = filtered
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	suite.RunAll(ctx, *iterations)
	if err := suite.WriteText(os.Stdout); err != nil {
		log.Fatalf("Failed to print results: %v", err)
	}

	if *outputFile != "" {
		if err := saveResultsToFile(*outputFile, suite); err != nil {
			log.Printf("Failed to save results to file: %v", err)
		} else {
			fmt.Printf("Results saved to: %s\n", *outputFile)
		}
	}
}

func saveResultsToFile(filename string, s *benchmark.Suite) error {
	file, err := os.Create(filename) //nolint:gosec // G304: user-chosen output path
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	return s.WriteJSON(file)
}
