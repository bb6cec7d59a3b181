package domain

import "errors"

// Fatal pipeline errors. Callers wrap them with detail via
// fmt.Errorf("...: %w", ...) and match with errors.Is. All three abort
// the run before any output file is written.
var (
	// ErrMissingInput reports that the raw input file does not exist.
	ErrMissingInput = errors.New("missing input file")

	// ErrSchema reports that the raw header lacks required columns.
	ErrSchema = errors.New("missing required columns")

	// ErrDegenerateInput reports a zero-variance coordinate column over
	// the retained rows, which would make standardization divide by zero.
	ErrDegenerateInput = errors.New("degenerate input")
)
