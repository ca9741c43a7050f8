package support

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/stereorect/internal/epipolar"
	"github.com/MeKo-Tech/stereorect/internal/utils"
	"github.com/cucumber/godog"
)

// theErrorShouldReportDegenerateGeometry verifies the solver rejected the input.
func (testCtx *TestContext) theErrorShouldReportDegenerateGeometry() error {
	if !errors.Is(testCtx.LastError, epipolar.ErrDegenerateGeometry) {
		return fmt.Errorf("expected a degenerate geometry error, got: %v", testCtx.LastError)
	}
	return nil
}

// theErrorShouldReportAnImageProblem verifies an image failed to load or validate.
func (testCtx *TestContext) theErrorShouldReportAnImageProblem() error {
	var ipe *utils.ImageProcessingError
	if !errors.As(testCtx.LastError, &ipe) {
		return fmt.Errorf("expected an image processing error, got: %v", testCtx.LastError)
	}
	return nil
}

// theErrorShouldMentionInvalidConfiguration verifies configuration validation failed.
func (testCtx *TestContext) theErrorShouldMentionInvalidConfiguration() error {
	return testCtx.theErrorShouldMention("configuration validation failed")
}

// RegisterErrorSteps registers error classification steps.
func (testCtx *TestContext) RegisterErrorSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the error should report degenerate geometry$`, testCtx.theErrorShouldReportDegenerateGeometry)
	sc.Step(`^the error should report an image problem$`, testCtx.theErrorShouldReportAnImageProblem)
	sc.Step(`^the error should mention invalid configuration values$`,
		testCtx.theErrorShouldMentionInvalidConfiguration)
}
