package importer

// classifier.go turns row-level parse failures into CsvErrors.
//
// Each Classifier recognizes one category of error and abstains on the rest.
// CompositeClassifier tries them in order and falls back to a generic
// "Unhandled exception" message, so the chain always produces a result.
// New categories are added by appending a classifier to the chain.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jszwec/csvutil"
)

const (
	// MsgInvalidFormat is reported when a value could not be converted to its field type.
	MsgInvalidFormat = "Invalid format detected."

	// MsgMissingFields is reported for structural parser errors.
	MsgMissingFields = "Missing fields in the CSV file."

	// MsgUnknownError is LegacyClassifier's catch-all.
	MsgUnknownError = "An unknown error occurred."
)

// Classifier converts an error raised while reading a row into a CsvError.
// The boolean is false when the classifier has no opinion about err.
type Classifier interface {
	Classify(err error, row int) (CsvError, bool)
}

// ClassifierFunc adapts an ordinary function to the Classifier interface.
type ClassifierFunc func(err error, row int) (CsvError, bool)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(err error, row int) (CsvError, bool) {
	return f(err, row)
}

// FormatClassifier recognizes values that could not be parsed into the
// expected type, including any cell csvutil failed to decode.
type FormatClassifier struct{}

// Classify implements Classifier.
func (FormatClassifier) Classify(err error, row int) (CsvError, bool) {
	var (
		numErr  *strconv.NumError
		timeErr *time.ParseError
		typeErr *csvutil.UnmarshalTypeError
		decErr  *csvutil.DecodeError
	)
	switch {
	case errors.As(err, &numErr), errors.As(err, &timeErr), errors.Is(err, ErrInvalidFormat),
		errors.As(err, &typeErr), errors.As(err, &decErr):
		return NewCsvError(row, MsgInvalidFormat), true
	}
	return CsvError{}, false
}

// ParserClassifier recognizes structural errors from the CSV parser, such
// as a missing column or a malformed record.
type ParserClassifier struct{}

// Classify implements Classifier.
func (ParserClassifier) Classify(err error, row int) (CsvError, bool) {
	var parseErr *csv.ParseError
	if errors.Is(err, ErrMissingField) || errors.As(err, &parseErr) {
		return NewCsvError(row, MsgMissingFields), true
	}
	return CsvError{}, false
}

// LegacyClassifier is a single classifier for callers that expect the
// older fixed message set: format errors, missing columns, and a generic
// message that does not echo err. Malformed records fall into the generic
// case. It never abstains.
type LegacyClassifier struct{}

// Classify implements Classifier.
func (LegacyClassifier) Classify(err error, row int) (CsvError, bool) {
	if e, ok := (FormatClassifier{}).Classify(err, row); ok {
		return e, true
	}
	if errors.Is(err, ErrMissingField) {
		return NewCsvError(row, MsgMissingFields), true
	}
	return NewCsvError(row, MsgUnknownError), true
}

// CompositeClassifier tries each classifier in order and returns the first
// result. It never abstains.
type CompositeClassifier struct {
	classifiers []Classifier
}

// NewCompositeClassifier builds a chain from the given classifiers.
// Nil entries are ignored.
func NewCompositeClassifier(classifiers ...Classifier) *CompositeClassifier {
	chain := make([]Classifier, 0, len(classifiers))
	for _, c := range classifiers {
		if c != nil {
			chain = append(chain, c)
		}
	}
	return &CompositeClassifier{classifiers: chain}
}

// DefaultClassifier returns the chain used when none is configured:
// format errors first, then parser errors.
func DefaultClassifier() *CompositeClassifier {
	return NewCompositeClassifier(FormatClassifier{}, ParserClassifier{})
}

// Classify implements Classifier. The boolean is always true.
func (c *CompositeClassifier) Classify(err error, row int) (CsvError, bool) {
	for _, cl := range c.classifiers {
		if e, ok := cl.Classify(err, row); ok {
			return e, true
		}
	}
	return unhandled(err, row), true
}

// unhandled is the catch-all used when every classifier abstains.
func unhandled(err error, row int) CsvError {
	msg := "<nil>"
	if err != nil {
		msg = err.Error()
	}
	return NewCsvError(row, fmt.Sprintf("Unhandled exception: %s", msg))
}
