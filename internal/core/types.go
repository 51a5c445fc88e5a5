package core

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/JonMunkholm/csvimport/internal/importer"
)

// TableInfo describes an importable table.
type TableInfo struct {
	Key     string   `json:"key"`     // Unique identifier: "contacts"
	Group   string   `json:"group"`   // Grouping for listings: "CRM", "Catalog"
	Label   string   `json:"label"`   // Display name: "Contacts"
	Table   string   `json:"table"`   // Destination table name
	Columns []string `json:"columns"` // Expected CSV header columns
}

// ImportRequest carries the per-call import options.
type ImportRequest struct {
	// Extra holds constant column values applied to every mapped entity.
	Extra map[string]any

	// ValidateOnly runs parsing and validation without persisting anything.
	ValidateOnly bool

	// SizeHint is the input size in bytes when known, used for progress logging.
	SizeHint int64
}

// ImportOutcome is the result of Service.Import.
type ImportOutcome struct {
	ID           string                `json:"import_id"`
	Table        string                `json:"table"`
	ValidateOnly bool                  `json:"validate_only"`
	Result       importer.ImportResult `json:"result"`
	Duration     time.Duration         `json:"-"`
}

// Runner executes one import against a bound backend. Each call uses a
// fresh store, so concurrent calls do not share a transaction.
type Runner func(ctx context.Context, r io.Reader, req ImportRequest) (importer.ImportResult, error)

// TableDefinition pairs a table's description with the function that binds
// its typed pipeline to a backend. Build one with Define.
type TableDefinition struct {
	Info TableInfo
	Bind func(b Backend, logger *slog.Logger) Runner
}
