package importer

import (
	"errors"
	"fmt"
)

var (
	// ErrAborted marks a fatal import failure: the operation could not
	// complete and any open transaction was rolled back. Row problems never
	// produce it; they are reported through ImportResult.
	ErrAborted = errors.New("import aborted")

	// ErrMissingField is returned by the decoder when a bound column is
	// absent from the header or the row is too short to contain it.
	ErrMissingField = errors.New("missing field")

	// ErrInvalidFormat is wrapped by conversion failures that are not
	// already strconv or time errors.
	ErrInvalidFormat = errors.New("invalid format")
)

// AbortError wraps the cause of a fatal import failure.
type AbortError struct {
	ImportID string
	Row      int // last row reached, 0 if the loop never started
	Err      error
}

func (e *AbortError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("import %s aborted at row %d: %v", e.ImportID, e.Row, e.Err)
	}
	return fmt.Sprintf("import %s aborted: %v", e.ImportID, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrAborted) match any AbortError.
func (e *AbortError) Is(target error) bool {
	return target == ErrAborted
}

// RowError is a row-level parse failure reported by a RowReader.
// The pipeline classifies it and moves on to the next row.
type RowError struct {
	Line int // physical line in the input, when known
	Err  error
}

func (e *RowError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return e.Err.Error()
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// FieldError is a failure to convert one cell into its struct field.
type FieldError struct {
	Column string
	Value  string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("column %q: cannot use %q: %v", e.Column, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
