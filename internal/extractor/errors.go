package extractor

import (
	"errors"
	"fmt"
)

// ErrInvalidReference matches every *InvalidReferenceError via errors.Is
var ErrInvalidReference = errors.New("invalid reference")

// InvalidReferenceError reports a video id or quality selector that failed
// validation before anything was handed to yt-dlp.
type InvalidReferenceError struct {
	Kind  string // "video id" or "quality selector"
	Input string
}

func (e *InvalidReferenceError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("invalid %s: empty input", e.Kind)
	}
	return fmt.Sprintf("invalid %s: %q", e.Kind, e.Input)
}

// Is makes errors.Is(err, ErrInvalidReference) work
func (e *InvalidReferenceError) Is(target error) bool {
	return target == ErrInvalidReference
}

// ExtractionError is returned when yt-dlp fails to run, exits non-zero or
// produces output that cannot be parsed. Stderr carries the tool's diagnostics.
type ExtractionError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("yt-dlp %s failed: %v: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("yt-dlp %s failed: %v", e.Op, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
