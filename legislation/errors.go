package legislation

import (
	"errors"
	"fmt"

	"github.com/warp/fisc-engine/periods"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrParameterNotFound is returned when a path does not exist in the tree.
	ErrParameterNotFound = errors.New("parameter not found")

	// ErrNoValueAtInstant is returned when a parameter exists but none of its
	// ranges covers the requested instant.
	ErrNoValueAtInstant = errors.New("no value at instant")

	// ErrNotAParameter is returned when Resolve is pointed at a Node or a
	// Scale, or ResolveScale at something other than a Scale.
	ErrNotAParameter = errors.New("path does not name an item of the expected kind")

	// ErrUnsortedScale is returned when bracket thresholds resolved at an
	// instant are not in ascending order.
	ErrUnsortedScale = errors.New("scale thresholds not sorted")

	// ErrPatchPathNotFound is returned when a patch targets a path whose
	// parent does not exist in the tree being patched.
	ErrPatchPathNotFound = errors.New("patch path not found")

	ErrOverlappingRanges = errors.New("overlapping value ranges")
	ErrInvertedRange     = errors.New("range stop before start")
	ErrIncompleteBracket = errors.New("bracket needs a threshold and a rate")
	ErrInvalidDocument   = errors.New("invalid legislation document")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("parameter not found: %s", e.Path)
}

func (e *NotFoundError) Unwrap() error { return ErrParameterNotFound }

// NoValueError names the parameter and the uncovered instant.
type NoValueError struct {
	Path string
	At   periods.Instant
}

func (e *NoValueError) Error() string {
	return fmt.Sprintf("parameter %s has no value at %s", e.Path, e.At)
}

func (e *NoValueError) Unwrap() error { return ErrNoValueAtInstant }

// RangeError reports a malformed value range found by Validate.
type RangeError struct {
	Path  string
	Range ValueRange
	Err   error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: [%s, %s]: %v", e.Path, e.Range.Start, e.Range.Stop, e.Err)
}

func (e *RangeError) Unwrap() error { return e.Err }

// IsNotFound returns true if the error indicates a missing path.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrParameterNotFound) || errors.Is(err, ErrPatchPathNotFound)
}
