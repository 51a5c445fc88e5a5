package importer

// validator.go provides the row validator chain.
//
// Every configured validator runs against every parsed row, and all of their
// errors are collected before the pipeline moves on. StructValidator is the
// default: it evaluates `validate:"..."` struct tags and reports each
// violated rule as its own CsvError.

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator checks one parsed row. Row problems are reported through the
// returned ImportResult; a non-nil error means the check itself could not
// run and aborts the import.
type Validator[M any] interface {
	Validate(ctx context.Context, row M, rowNumber int) (ImportResult, error)
}

// ValidatorFunc adapts an ordinary function to the Validator interface.
type ValidatorFunc[M any] func(ctx context.Context, row M, rowNumber int) (ImportResult, error)

// Validate implements Validator.
func (f ValidatorFunc[M]) Validate(ctx context.Context, row M, rowNumber int) (ImportResult, error) {
	return f(ctx, row, rowNumber)
}

// StructValidator applies the declarative constraints in a row model's
// `validate` struct tags.
type StructValidator[M any] struct {
	validate *validator.Validate
}

// StructOption configures a StructValidator.
type StructOption func(*validator.Validate) error

// WithRule registers a custom validation tag.
func WithRule(tag string, fn validator.Func) StructOption {
	return func(v *validator.Validate) error {
		return v.RegisterValidation(tag, fn)
	}
}

// NewStructValidator creates a struct-tag validator for row model M.
// Field names in messages are taken from the `csv` tag when present.
func NewStructValidator[M any](opts ...StructOption) (*StructValidator[M], error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("csv"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("configure struct validator: %w", err)
		}
	}

	return &StructValidator[M]{validate: v}, nil
}

// Validate implements Validator.
func (s *StructValidator[M]) Validate(ctx context.Context, row M, rowNumber int) (ImportResult, error) {
	err := s.validate.StructCtx(ctx, row)
	if err == nil {
		return Success, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ImportResult{}, fmt.Errorf("validate row %d: %w", rowNumber, err)
	}

	errs := make([]CsvError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, NewCsvError(rowNumber, ruleMessage(fe)))
	}
	return Failed(errs...), nil
}

// ruleMessage renders a human-readable description of a violated rule.
func ruleMessage(fe validator.FieldError) string {
	field := fe.Field()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", field)
	case "email":
		return fmt.Sprintf("%s is not a valid e-mail address.", field)
	case "url":
		return fmt.Sprintf("%s is not a valid URL.", field)
	case "numeric":
		return fmt.Sprintf("%s must be numeric.", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters.", field, param)
		}
		return fmt.Sprintf("%s must be at least %s.", field, param)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters.", field, param)
		}
		return fmt.Sprintf("%s must be at most %s.", field, param)
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters.", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s.", field, strings.ReplaceAll(param, " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s.", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s.", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s.", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s.", field, param)
	default:
		return fmt.Sprintf("%s failed the '%s' rule.", field, fe.Tag())
	}
}
