package importer

import (
	"encoding/json"
	"fmt"
)

// CsvError describes one problem attributable to one input row.
// Row is 1-based and counts data rows only (the header is not row 1).
type CsvError struct {
	Row         int    `json:"row"`
	Description string `json:"description"`
}

// NewCsvError creates a CsvError for the given row.
func NewCsvError(row int, description string) CsvError {
	return CsvError{Row: row, Description: description}
}

func (e CsvError) String() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Description)
}

// ImportResult is the outcome of validating or importing a batch of rows.
// The zero value is a failed result with no errors; use Success or Failed.
type ImportResult struct {
	succeeded bool
	errors    []CsvError
}

// Success is the shared "succeeded, no errors" result.
var Success = ImportResult{succeeded: true}

// Failed returns a failed result carrying errs in order.
// Passing no errors (or a nil slice) still yields a failed result.
func Failed(errs ...CsvError) ImportResult {
	r := ImportResult{succeeded: false}
	if len(errs) > 0 {
		r.errors = make([]CsvError, len(errs))
		copy(r.errors, errs)
	}
	return r
}

// Succeeded reports whether the operation completed without row errors.
func (r ImportResult) Succeeded() bool {
	return r.succeeded
}

// Errors returns a copy of the row errors in the order they were found.
func (r ImportResult) Errors() []CsvError {
	if len(r.errors) == 0 {
		return nil
	}
	out := make([]CsvError, len(r.errors))
	copy(out, r.errors)
	return out
}

// ErrorCount returns the number of row errors.
func (r ImportResult) ErrorCount() int {
	return len(r.errors)
}

// String renders "Succeeded" or "Failed".
func (r ImportResult) String() string {
	if !r.succeeded {
		return "Failed"
	}
	return "Succeeded"
}

type resultJSON struct {
	Succeeded bool       `json:"succeeded"`
	Status    string     `json:"status"`
	Errors    []CsvError `json:"errors"`
}

// MarshalJSON renders the result for API and CLI output.
func (r ImportResult) MarshalJSON() ([]byte, error) {
	errs := r.errors
	if errs == nil {
		errs = []CsvError{}
	}
	return json.Marshal(resultJSON{
		Succeeded: r.succeeded,
		Status:    r.String(),
		Errors:    errs,
	})
}
