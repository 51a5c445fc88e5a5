package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvimport/internal/config"
	"github.com/JonMunkholm/csvimport/internal/importer"
	"github.com/JonMunkholm/csvimport/internal/store"
	"github.com/JonMunkholm/csvimport/internal/store/memstore"
)

type widgetRow struct {
	SKU string `csv:"SKU" validate:"required"`
	Qty int    `csv:"Qty" validate:"gte=0"`
}

type widget struct {
	SKU   string `db:"sku"`
	Qty   int    `db:"qty"`
	Batch string `db:"batch"`
}

var widgetTable = store.Table[widget]{
	Name:    "widgets",
	Columns: []string{"sku", "qty", "batch"},
	Values:  func(w widget) []any { return []any{w.SKU, w.Qty, w.Batch} },
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// registerWidgets installs a fresh registry holding only the widgets table.
func registerWidgets(t *testing.T) {
	t.Helper()
	Clear()
	t.Cleanup(Clear)
	Register(Define(TableInfo{Key: "widgets", Group: "Test", Label: "Widgets"}, TableSpec[widgetRow, widget]{
		Table: widgetTable,
	}))
}

func testService(t *testing.T, db *memstore.DB, opts ...ServiceOption) *Service {
	t.Helper()
	registerWidgets(t)
	cfg := config.ImportConfig{MaxConcurrent: 2, MaxWaitTime: 50 * time.Millisecond, Timeout: time.Minute}
	return NewService(MemoryBackend(db), cfg, append([]ServiceOption{WithLogger(quietLogger())}, opts...)...)
}

func TestDefine_FillsInfoFromSpec(t *testing.T) {
	def := Define(TableInfo{Key: "widgets"}, TableSpec[widgetRow, widget]{Table: widgetTable})

	assert.Equal(t, "widgets", def.Info.Table)
	assert.Equal(t, []string{"SKU", "Qty"}, def.Info.Columns)
	assert.NotNil(t, def.Bind)
}

func TestDefine_PanicsOnInvalidTable(t *testing.T) {
	assert.Panics(t, func() {
		Define(TableInfo{Key: "bad"}, TableSpec[widgetRow, widget]{Table: store.Table[widget]{Name: "bad"}})
	})
}

func TestCSVColumns_SkipsIgnoredAndUnexported(t *testing.T) {
	type row struct {
		A      string `csv:"a,omitempty"`
		B      string
		Hidden string `csv:"-"`
		lower  string
	}

	assert.Equal(t, []string{"a", "B"}, csvColumns[row]())
	assert.Nil(t, csvColumns[string]())
}

func TestRegistry(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	spec := TableSpec[widgetRow, widget]{Table: widgetTable}
	Register(Define(TableInfo{Key: "b", Group: "Two"}, spec))
	Register(Define(TableInfo{Key: "a", Group: "Two"}, spec))
	Register(Define(TableInfo{Key: "z", Group: "One"}, spec))

	keys := func(defs []TableDefinition) []string {
		var out []string
		for _, d := range defs {
			out = append(out, d.Info.Key)
		}
		return out
	}

	assert.Equal(t, []string{"z", "a", "b"}, keys(All()))
	assert.Equal(t, []string{"One", "Two"}, Groups())
	assert.Equal(t, []string{"a", "b"}, keys(ByGroup("Two")))
	assert.Equal(t, 3, TableCount())

	_, ok := Get("a")
	assert.True(t, ok)
	_, ok = Get("missing")
	assert.False(t, ok)

	assert.Panics(t, func() { Register(Define(TableInfo{Key: "a"}, spec)) }, "duplicate key")
	assert.Panics(t, func() { Register(TableDefinition{Info: TableInfo{Key: "x"}}) }, "missing Bind")
}

func TestService_ImportPersists(t *testing.T) {
	db := memstore.NewDB()
	svc := testService(t, db)

	csv := "SKU,Qty\nW-1,3\nW-2,0\n"
	out, err := svc.Import(context.Background(), "widgets", strings.NewReader(csv), ImportRequest{
		Extra: map[string]any{"batch": "2024-01"},
	})
	require.NoError(t, err)

	assert.True(t, out.Result.Succeeded())
	assert.Equal(t, "widgets", out.Table)
	assert.NotEmpty(t, out.ID)
	assert.Equal(t, [][]any{{"W-1", 3, "2024-01"}, {"W-2", 0, "2024-01"}}, db.Rows("widgets"))
	assert.Equal(t, 0, svc.Limiter().ActiveCount())
}

func TestService_RowErrorsPersistNothing(t *testing.T) {
	db := memstore.NewDB()
	svc := testService(t, db)

	csv := "SKU,Qty\nW-1,3\n,-1\n"
	out, err := svc.Import(context.Background(), "widgets", strings.NewReader(csv), ImportRequest{})
	require.NoError(t, err)

	assert.False(t, out.Result.Succeeded())
	assert.Equal(t, []importer.CsvError{
		{Row: 2, Description: "SKU is required."},
		{Row: 2, Description: "Qty must be greater than or equal to 0."},
	}, out.Result.Errors())
	assert.Equal(t, 0, db.Count("widgets"))
}

func TestService_ValidateOnly(t *testing.T) {
	db := memstore.NewDB()
	svc := testService(t, db)

	out, err := svc.Import(context.Background(), "widgets", strings.NewReader("SKU,Qty\nW-1,1\n"), ImportRequest{ValidateOnly: true})
	require.NoError(t, err)

	assert.True(t, out.Result.Succeeded())
	assert.True(t, out.ValidateOnly)
	assert.Equal(t, 0, db.Count("widgets"))
}

func TestService_UsesImportIDFromContext(t *testing.T) {
	svc := testService(t, memstore.NewDB())

	ctx := importer.WithImportID(context.Background(), "fixed-id")
	out, err := svc.Import(ctx, "widgets", strings.NewReader("SKU,Qty\n"), ImportRequest{})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", out.ID)
}

func TestService_UnknownTable(t *testing.T) {
	svc := testService(t, memstore.NewDB())

	_, err := svc.Import(context.Background(), "nope", strings.NewReader(""), ImportRequest{})
	require.ErrorIs(t, err, ErrUnknownTable)
	assert.Equal(t, "TBL001", MapError(err).Code)
}

func TestService_AbortOnUnknownExtraColumn(t *testing.T) {
	db := memstore.NewDB()
	svc := testService(t, db)

	out, err := svc.Import(context.Background(), "widgets", strings.NewReader("SKU,Qty\nW-1,1\n"), ImportRequest{
		Extra: map[string]any{"nope": 1},
	})
	require.Error(t, err)

	var abort *importer.AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, out.ID, abort.ImportID)
	assert.Equal(t, 1, abort.Row)
	assert.Equal(t, 0, db.Count("widgets"))
}

func TestService_TooManyImports(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := testService(t, memstore.NewDB(), WithMetrics(NewMetrics(reg)))

	for i := 0; i < svc.Limiter().MaxConcurrent(); i++ {
		require.True(t, svc.Limiter().TryAcquire())
	}
	defer func() {
		for i := 0; i < svc.Limiter().MaxConcurrent(); i++ {
			svc.Limiter().Release()
		}
	}()

	_, err := svc.Import(context.Background(), "widgets", strings.NewReader("SKU,Qty\n"), ImportRequest{})
	require.ErrorIs(t, err, ErrTooManyImports)
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.importsTotal.WithLabelValues("widgets", "import", StatusRejected)))
}

func TestService_TimeoutAborts(t *testing.T) {
	registerWidgets(t)
	svc := NewService(MemoryBackend(memstore.NewDB()), config.ImportConfig{Timeout: time.Nanosecond}, WithLogger(quietLogger()))

	_, err := svc.Import(context.Background(), "widgets", strings.NewReader("SKU,Qty\nW-1,1\n"), ImportRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "IMP003", MapError(err).Code)
}

func TestService_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := testService(t, memstore.NewDB(), WithMetrics(NewMetrics(reg)))
	ctx := context.Background()

	_, err := svc.Import(ctx, "widgets", strings.NewReader("SKU,Qty\nW-1,1\n"), ImportRequest{})
	require.NoError(t, err)
	_, err = svc.Import(ctx, "widgets", strings.NewReader("SKU,Qty\n,1\n,2\n"), ImportRequest{ValidateOnly: true})
	require.NoError(t, err)

	m := svc.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.importsTotal.WithLabelValues("widgets", "import", StatusSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.importsTotal.WithLabelValues("widgets", "validate", StatusFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rowErrorsTotal.WithLabelValues("widgets")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestService_ListTables(t *testing.T) {
	svc := testService(t, memstore.NewDB())

	tables := svc.ListTables()
	require.Len(t, tables, 1)
	assert.Equal(t, "widgets", tables[0].Key)

	info, ok := svc.Table("widgets")
	assert.True(t, ok)
	assert.Equal(t, []string{"SKU", "Qty"}, info.Columns)
}
