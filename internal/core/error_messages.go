package core

// Error codes shown to API and CLI users. Support staff can look a code
// up here to see what produced it.
//
//	DB001   duplicate key
//	DB002   unique constraint
//	DB003   foreign key
//	DB004   connection refused
//	DB005   connection reset
//	DB006   database timeout
//	DB007   deadlock
//	FILE001 file too large
//	FILE002 malformed CSV
//	FILE003 no file in request
//	FILE004 missing header column
//	IMP001  too many concurrent imports
//	IMP002  import cancelled
//	IMP003  import timed out
//	IMP004  import aborted (fallback for AbortError causes not matched above)
//	TBL001  unknown table
//	RATE001 rate limited
//	REQ001  invalid request parameter
//	REQ002  extra column value names no column or has the wrong type
//	ERR000  anything else; check the logs for the technical error
//
// Typed errors are matched first with errors.Is / errors.As. Remaining
// errors are matched case-insensitively against message patterns, first
// match wins.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/csvimport/internal/importer"
	"github.com/JonMunkholm/csvimport/internal/mapper"
)

// ErrUnknownTable is returned for a table key with no registered definition.
var ErrUnknownTable = errors.New("unknown table")

// ErrNoFile is returned when an import request carries no CSV data.
var ErrNoFile = errors.New("no file provided")

// ErrInvalidRequest is wrapped by transport errors for malformed parameters.
var ErrInvalidRequest = errors.New("invalid request")

// UserMessage is the user-facing side of an error.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

var (
	msgTooLarge = UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller chunks",
		Code:    "FILE001",
	}
	msgNoFile = UserMessage{
		Message: "No CSV data was provided",
		Action:  "Send the CSV as the request body or as a multipart \"file\" field",
		Code:    "FILE003",
	}
	msgBusy = UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "IMP001",
	}
	msgCancelled = UserMessage{
		Message: "Import was cancelled",
		Action:  "Start a new import when ready",
		Code:    "IMP002",
	}
	msgTimedOut = UserMessage{
		Message: "Import timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "IMP003",
	}
	msgAborted = UserMessage{
		Message: "Import could not be completed and nothing was saved",
		Action:  "Please try again or contact support with the import ID",
		Code:    "IMP004",
	}
	msgInvalidRequest = UserMessage{
		Message: "The request has an invalid parameter",
		Action:  "Check validate_only and extra.<column> values",
		Code:    "REQ001",
	}
	msgBadExtra = UserMessage{
		Message: "An extra column value could not be applied",
		Action:  "Check extra.<column> names and value formats against the table",
		Code:    "REQ002",
	}
	msgUnknownTable = UserMessage{
		Message: "Unknown table",
		Action:  "List the available tables and check the key",
		Code:    "TBL001",
	}
)

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Constraint violations, as worded by PostgreSQL, MySQL and SQLite.
	{"duplicate key", UserMessage{"A record with this key already exists", "Remove rows that are already imported", "DB001"}},
	{"duplicate entry", UserMessage{"A record with this key already exists", "Remove rows that are already imported", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your CSV", "DB002"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Review your data for duplicate key values", "DB002"}},
	{"foreign key", UserMessage{"Referenced record does not exist", "Import parent records first", "DB003"}},

	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Database operation timed out", "Try a smaller file or try again later", "DB006"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	{"file too large", msgTooLarge},
	{"request body too large", msgTooLarge},
	{"parse error", UserMessage{"File is not a valid CSV", "Ensure the file is comma-separated with quoted fields closed", "FILE002"}},
	{"missing field", UserMessage{"A required column is missing from the CSV", "Check the header against the table's column list", "FILE004"}},

	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-facing message.
// A nil error maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, ErrTooManyImports):
		return msgBusy
	case errors.Is(err, ErrUnknownTable):
		return msgUnknownTable
	case errors.Is(err, ErrNoFile):
		return msgNoFile
	case errors.Is(err, ErrInvalidRequest):
		return msgInvalidRequest
	case errors.Is(err, mapper.ErrUnknownColumn), errors.Is(err, mapper.ErrTypeMismatch):
		return msgBadExtra
	case errors.As(err, &maxBytes):
		return msgTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return msgTimedOut
	case errors.Is(err, context.Canceled):
		return msgCancelled
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if errors.Is(err, importer.ErrAborted) {
		return msgAborted
	}
	return defaultMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError keeps the technical error for logging alongside its user message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. It returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
