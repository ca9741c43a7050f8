package epipolar

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateGeometry reports input from which no stable rectification exists.
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	// ErrInvalidCorrespondence reports a correspondence with unusable coordinates.
	ErrInvalidCorrespondence = errors.New("invalid correspondence")
)

// CorrespondenceError identifies the offending pair.
type CorrespondenceError struct {
	Index int
	Pair  AssociatedPair
}

func (e *CorrespondenceError) Error() string {
	return fmt.Sprintf("correspondence %d (%v -> %v): %v", e.Index, e.Pair.Left, e.Pair.Right, ErrInvalidCorrespondence)
}

func (e *CorrespondenceError) Unwrap() error { return ErrInvalidCorrespondence }

func degenerate(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDegenerateGeometry, fmt.Sprintf(format, args...))
}
