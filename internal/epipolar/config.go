package epipolar

import "fmt"

// Config holds numeric thresholds for the solver.
type Config struct {
	MinCorrespondences    int     // minimum inliers for the matching-transform solve
	RankTolerance         float64 // max s3/s2 of F before it is treated as rank 3
	CollinearityTolerance float64 // min eigenvalue ratio of the point scatter
	MaxCoordinate         float64 // largest accepted |coordinate| of a correspondence
	InfinityTolerance     float64 // |z| of the unit epipole below which it lies at infinity
	CenterTolerance       float64 // epipole distance from the image center, as a fraction of the diagonal, treated as zero
	MaxCondition          float64 // largest condition number accepted for the least-squares system
	EnforceRank2          bool    // project F onto rank 2 before use
	RejectEpipoleInside   bool    // fail instead of warn when an epipole lies inside its image
}

// DefaultConfig returns conservative thresholds.
func DefaultConfig() Config {
	return Config{
		MinCorrespondences:    4,
		RankTolerance:         1e-3,
		CollinearityTolerance: 1e-6,
		MaxCoordinate:         1e7,
		InfinityTolerance:     1e-10,
		CenterTolerance:       1e-9,
		MaxCondition:          1e12,
		EnforceRank2:          true,
		RejectEpipoleInside:   false,
	}
}

// Validate checks that the thresholds are usable.
func (c Config) Validate() error {
	if c.MinCorrespondences < 4 {
		return fmt.Errorf("min correspondences must be at least 4, got %d", c.MinCorrespondences)
	}
	if c.RankTolerance <= 0 || c.RankTolerance >= 1 {
		return fmt.Errorf("rank tolerance must be in (0,1), got %g", c.RankTolerance)
	}
	if c.CollinearityTolerance <= 0 || c.CollinearityTolerance >= 1 {
		return fmt.Errorf("collinearity tolerance must be in (0,1), got %g", c.CollinearityTolerance)
	}
	if c.MaxCoordinate <= 0 {
		return fmt.Errorf("max coordinate must be positive, got %g", c.MaxCoordinate)
	}
	if c.InfinityTolerance < 0 || c.CenterTolerance < 0 {
		return fmt.Errorf("tolerances must not be negative")
	}
	if c.MaxCondition <= 1 {
		return fmt.Errorf("max condition must exceed 1, got %g", c.MaxCondition)
	}
	return nil
}
