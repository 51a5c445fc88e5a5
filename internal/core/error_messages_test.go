package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/JonMunkholm/csvimport/internal/importer"
	"github.com/JonMunkholm/csvimport/internal/mapper"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"postgres duplicate key", errors.New(`ERROR: duplicate key value violates unique constraint "contacts_pkey"`), "DB001"},
		{"mysql duplicate entry", errors.New("Error 1062 (23000): Duplicate entry '1' for key 'PRIMARY'"), "DB001"},
		{"sqlite unique constraint", errors.New("constraint failed: UNIQUE constraint failed: items.sku (1555)"), "DB002"},
		{"foreign key", errors.New("violates foreign key constraint"), "DB003"},
		{"connection refused", errors.New("dial tcp: connection refused"), "DB004"},
		{"io timeout", errors.New("read tcp: i/o timeout"), "DB006"},
		{"max bytes", &http.MaxBytesError{Limit: 10}, "FILE001"},
		{"csv parse error", &importer.RowError{Line: 3, Err: errors.New(`parse error on line 3, column 4: bare " in non-quoted-field`)}, "FILE002"},
		{"no file", fmt.Errorf("read upload: %w", ErrNoFile), "FILE003"},
		{"too many imports", ErrTooManyImports, "IMP001"},
		{"cancelled", &importer.AbortError{ImportID: "x", Err: context.Canceled}, "IMP002"},
		{"deadline", &importer.AbortError{ImportID: "x", Row: 9, Err: context.DeadlineExceeded}, "IMP003"},
		{"abort with unmatched cause", &importer.AbortError{ImportID: "x", Err: errors.New("boom")}, "IMP004"},
		{"abort with db cause", &importer.AbortError{ImportID: "x", Err: errors.New("persist: duplicate key")}, "DB001"},
		{"unknown table", fmt.Errorf("%w: %q", ErrUnknownTable, "nope"), "TBL001"},
		{"rate limit", errors.New("rate limit exceeded"), "RATE001"},
		{"unknown extra column", &importer.AbortError{ImportID: "x", Row: 1, Err: fmt.Errorf("map row 1: %w: %q", mapper.ErrUnknownColumn, "nope")}, "REQ002"},
		{"invalid request", fmt.Errorf("%w: validate_only", ErrInvalidRequest), "REQ001"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
		{"case insensitive matching", errors.New("DUPLICATE KEY value violates"), "DB001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Error("MapError() message is empty")
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyImports)

	expected := "System is busy processing other imports (Code: IMP001). Please wait a moment and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", errors.New("duplicate key"), true},
		{"sentinel is user facing", ErrUnknownTable, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := errors.New("pq: duplicate key value")
		userErr := NewUserError(techErr)

		if userErr.Error() != "A record with this key already exists" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if userErr.User.Code != "DB001" {
			t.Errorf("Code = %q, want DB001", userErr.User.Code)
		}
		if !errors.Is(userErr, techErr) {
			t.Error("Unwrap() should return original error")
		}
	})
}
