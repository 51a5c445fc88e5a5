package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/stretchr/testify/assert"
)

func TestDefaultClassifier(t *testing.T) {
	_, numErr := strconv.Atoi("abc")
	_, timeErr := time.Parse("2006-01-02", "yesterday")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"strconv error", numErr, MsgInvalidFormat},
		{"time error", timeErr, MsgInvalidFormat},
		{"wrapped field error", &RowError{Err: &FieldError{Column: "id", Value: "x", Err: numErr}}, MsgInvalidFormat},
		{"invalid format sentinel", fmt.Errorf("%w: bad uuid", ErrInvalidFormat), MsgInvalidFormat},
		{"missing field", &RowError{Err: fmt.Errorf("%w: %q", ErrMissingField, "email")}, MsgMissingFields},
		{"csv parse error", &csv.ParseError{Line: 3, Err: csv.ErrQuote}, MsgMissingFields},
		{"csvutil type error", &csvutil.UnmarshalTypeError{Value: "x", Type: reflect.TypeOf(0)}, MsgInvalidFormat},
		{"csvutil decode error", &RowError{Err: &csvutil.DecodeError{Field: "Level", Err: errors.New("unknown level")}}, MsgInvalidFormat},
		{"unknown", errors.New("disk on fire"), "Unhandled exception: disk on fire"},
		{"nil", nil, "Unhandled exception: <nil>"},
	}

	c := DefaultClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := c.Classify(tt.err, 7)
			assert.True(t, ok, "composite never abstains")
			assert.Equal(t, CsvError{Row: 7, Description: tt.want}, got)
		})
	}
}

func TestClassifiersAbstain(t *testing.T) {
	other := errors.New("other")

	_, ok := FormatClassifier{}.Classify(other, 1)
	assert.False(t, ok)
	_, ok = FormatClassifier{}.Classify(ErrMissingField, 1)
	assert.False(t, ok)

	_, ok = ParserClassifier{}.Classify(other, 1)
	assert.False(t, ok)
	_, ok = ParserClassifier{}.Classify(ErrInvalidFormat, 1)
	assert.False(t, ok)
}

func TestCompositeClassifierOrder(t *testing.T) {
	first := ClassifierFunc(func(err error, row int) (CsvError, bool) {
		return NewCsvError(row, "first"), true
	})
	abstain := ClassifierFunc(func(error, int) (CsvError, bool) { return CsvError{}, false })

	c := NewCompositeClassifier(nil, abstain, first, FormatClassifier{})
	got, ok := c.Classify(ErrInvalidFormat, 2)
	assert.True(t, ok)
	assert.Equal(t, "first", got.Description)

	empty := NewCompositeClassifier()
	got, _ = empty.Classify(errors.New("x"), 1)
	assert.Equal(t, "Unhandled exception: x", got.Description)
}

func TestClassificationIsDeterministic(t *testing.T) {
	err := errors.New("strange")
	c := DefaultClassifier()
	a, _ := c.Classify(err, 5)
	b, _ := c.Classify(err, 5)
	assert.Equal(t, a, b)
}

func TestLegacyClassifier(t *testing.T) {
	_, numErr := strconv.Atoi("abc")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"format", &RowError{Err: &FieldError{Column: "id", Value: "abc", Err: numErr}}, MsgInvalidFormat},
		{"missing field", &RowError{Err: fmt.Errorf("%w: %q", ErrMissingField, "email")}, MsgMissingFields},
		{"malformed record", &RowError{Err: &csv.ParseError{Line: 3, Err: csv.ErrQuote}}, MsgUnknownError},
		{"unknown", errors.New("disk on fire"), MsgUnknownError},
		{"nil", nil, MsgUnknownError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LegacyClassifier{}.Classify(tt.err, 4)
			assert.True(t, ok)
			assert.Equal(t, CsvError{Row: 4, Description: tt.want}, got)
		})
	}
}
