package tables

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvimport/internal/config"
	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/JonMunkholm/csvimport/internal/importer"
	"github.com/JonMunkholm/csvimport/internal/mapper"
	"github.com/JonMunkholm/csvimport/internal/store/memstore"
)

func newService(db *memstore.DB) *core.Service {
	return core.NewService(core.MemoryBackend(db), config.ImportConfig{MaxConcurrent: 1},
		core.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestTablesRegistered(t *testing.T) {
	contacts, ok := core.Get("contacts")
	require.True(t, ok)
	assert.Equal(t, "CRM", contacts.Info.Group)
	assert.Equal(t, []string{"Id", "Name", "Email", "State"}, contacts.Info.Columns)

	products, ok := core.Get("products")
	require.True(t, ok)
	assert.Equal(t, "products", products.Info.Table)
	assert.Equal(t, []string{"SKU", "Name", "Price", "Quantity", "Category"}, products.Info.Columns)
}

func TestContacts_ImportNormalizes(t *testing.T) {
	db := memstore.NewDB()
	svc := newService(db)

	csv := "Id,Name,Email,State\n1,Ann,Ann@Example.com,new york\n2,Bob,bob@example.com,tx\n"
	out, err := svc.Import(context.Background(), "contacts", strings.NewReader(csv), core.ImportRequest{
		Extra: map[string]any{"source": "crm-export"},
	})
	require.NoError(t, err)
	require.True(t, out.Result.Succeeded(), out.Result.Errors())

	assert.Equal(t, [][]any{
		{int64(1), "Ann", "ann@example.com", "NY", "crm-export"},
		{int64(2), "Bob", "bob@example.com", "TX", "crm-export"},
	}, db.Rows("contacts"))
}

func TestContacts_InvalidEmail(t *testing.T) {
	db := memstore.NewDB()
	svc := newService(db)

	csv := "Id,Name,Email\n1,John,john@example.com\n2,Jane,not-an-email\n"
	out, err := svc.Import(context.Background(), "contacts", strings.NewReader(csv), core.ImportRequest{})
	require.NoError(t, err)

	assert.False(t, out.Result.Succeeded())
	assert.Equal(t, []importer.CsvError{{Row: 2, Description: "Invalid email format"}}, out.Result.Errors())
	assert.Zero(t, db.Count("contacts"))
}

func TestProducts_Rules(t *testing.T) {
	db := memstore.NewDB()
	svc := newService(db)

	csv := "SKU,Name,Price,Quantity\nAB-1,Widget,9.99,3\nbad sku,Gadget,-1,2\nCD-2,Thing,abc,1\n"
	out, err := svc.Import(context.Background(), "products", strings.NewReader(csv), core.ImportRequest{})
	require.NoError(t, err)

	errs := out.Result.Errors()
	require.Len(t, errs, 3)
	assert.Equal(t, importer.CsvError{Row: 2, Description: "SKU failed the 'sku' rule."}, errs[0])
	assert.Equal(t, importer.CsvError{Row: 2, Description: "Price must be greater than or equal to 0."}, errs[1])
	assert.Equal(t, 3, errs[2].Row)
	assert.Zero(t, db.Count("products"))
}

func TestProducts_LegacyMessages(t *testing.T) {
	db := memstore.NewDB()
	svc := newService(db)

	csv := "SKU,Name,Price,Quantity\nAB-1,\"Wid\"get,9.99,3\nCD-2,Thing,abc,1\nEF-3,Short\n"
	out, err := svc.Import(context.Background(), "products", strings.NewReader(csv), core.ImportRequest{})
	require.NoError(t, err)

	assert.Equal(t, []importer.CsvError{
		{Row: 1, Description: importer.MsgUnknownError},
		{Row: 2, Description: importer.MsgInvalidFormat},
		{Row: 3, Description: importer.MsgMissingFields},
	}, out.Result.Errors())
}

func TestContacts_BadExtraRejectedUpFront(t *testing.T) {
	db := memstore.NewDB()
	svc := newService(db)

	csv := "Id,Name,Email\n1,Ann,ann@example.com\n"
	_, err := svc.Import(context.Background(), "contacts", strings.NewReader(csv), core.ImportRequest{
		Extra:        map[string]any{"warehouse": "north"},
		ValidateOnly: true,
	})
	assert.ErrorIs(t, err, mapper.ErrUnknownColumn)
	assert.ErrorIs(t, err, importer.ErrAborted)
}

func TestProducts_Import(t *testing.T) {
	db := memstore.NewDB()
	svc := newService(db)

	csv := "\ufeffSKU,Name,Price,Quantity,Category\nAB-1,Widget,9.99,3,tools\n"
	out, err := svc.Import(context.Background(), "products", strings.NewReader(csv), core.ImportRequest{})
	require.NoError(t, err)
	require.True(t, out.Result.Succeeded(), out.Result.Errors())

	assert.Equal(t, [][]any{{"AB-1", "Widget", 9.99, int64(3), "tools", ""}}, db.Rows("products"))
}

func TestNormalizeState(t *testing.T) {
	tests := map[string]string{
		"California":           "CA",
		" new york ":           "NY",
		"tx":                   "TX",
		"District of Columbia": "DC",
		"Puerto Rico":          "PR",
		"Ontario":              "Ontario",
		"":                     "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeState(in), "input %q", in)
	}
}
