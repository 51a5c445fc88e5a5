package mapper

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvimport/internal/importer"
)

type productRow struct {
	SKU      string
	Name     string
	Price    float64
	Quantity int32
	Discount *float64
	Note     string
}

type product struct {
	SKU        string    `db:"sku"`
	Name       string    `db:"name"`
	Price      float64   `db:"price"`
	Quantity   int64     `db:"quantity"`
	Discount   float64   `db:"discount"`
	Source     string    `db:"source_system"`
	ImportedAt time.Time `db:"imported_at"`
	Batch      *int      `db:"batch"`
	Active     bool      `db:"active"`
}

func TestFieldMapperCopiesFields(t *testing.T) {
	m := NewFieldMapper[productRow, product]()
	d := 0.1

	got, err := m.Map(productRow{SKU: "A1", Name: "Widget", Price: 2.5, Quantity: 4, Discount: &d, Note: "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, product{SKU: "A1", Name: "Widget", Price: 2.5, Quantity: 4, Discount: 0.1}, got)

	got, err = m.Map(productRow{SKU: "A2"}, nil)
	require.NoError(t, err)
	assert.Zero(t, got.Discount, "nil pointer leaves the zero value")
}

func TestFieldMapperExtras(t *testing.T) {
	m := NewFieldMapper[productRow, *product]()

	got, err := m.Map(productRow{SKU: "A1"}, map[string]any{
		"source_system": "erp",
		"IMPORTED_AT":   "2024-05-01",
		"batch":         7,
		"active":        "true",
		"Quantity":      "12",
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "erp", got.Source)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), got.ImportedAt)
	require.NotNil(t, got.Batch)
	assert.Equal(t, 7, *got.Batch)
	assert.True(t, got.Active)
	assert.Equal(t, int64(12), got.Quantity, "extras override copied fields")
}

func TestFieldMapperExtraErrors(t *testing.T) {
	m := NewFieldMapper[productRow, product]()

	_, err := m.Map(productRow{}, map[string]any{"warehouse": "north"})
	assert.True(t, errors.Is(err, ErrUnknownColumn))

	_, err = m.Map(productRow{}, map[string]any{"price": "cheap"})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = m.Map(productRow{}, map[string]any{"name": 42})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	got, err := m.Map(productRow{Name: "kept"}, map[string]any{"name": nil})
	require.NoError(t, err)
	assert.Empty(t, got.Name)
}

func TestFieldMapperPointerModel(t *testing.T) {
	m := NewFieldMapper[*productRow, product]()

	got, err := m.Map(&productRow{SKU: "P"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "P", got.SKU)

	_, err = m.Map(nil, nil)
	assert.Error(t, err)
}

func TestNewFieldMapperPanicsOnNonStruct(t *testing.T) {
	assert.Panics(t, func() { NewFieldMapper[string, product]() })
}

func TestFunc(t *testing.T) {
	f := Func[productRow, string](func(row productRow, extra map[string]any) (string, error) {
		return row.SKU + "/" + extra["suffix"].(string), nil
	})
	got, err := f.Map(productRow{SKU: "A"}, map[string]any{"suffix": "b"})
	require.NoError(t, err)
	assert.Equal(t, "A/b", got)
}

type measureRow struct {
	Qty    float64
	Count  int64
	Weight *float64
	Code   int
}

type measure struct {
	Qty    int64
	Count  int32
	Weight int
	Code   string
}

func TestFieldMapperRejectsLossyCopies(t *testing.T) {
	m := NewFieldMapper[measureRow, measure]()
	heavy := 2.5

	tests := []struct {
		name string
		row  measureRow
	}{
		{"fraction", measureRow{Qty: 2.9}},
		{"float overflow", measureRow{Qty: 1e30}},
		{"int narrowing", measureRow{Count: 1 << 40}},
		{"pointer fraction", measureRow{Weight: &heavy}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Map(tt.row, nil)
			assert.ErrorIs(t, err, importer.ErrInvalidFormat)
			assert.NotErrorIs(t, err, ErrTypeMismatch)
		})
	}
}

func TestFieldMapperExactConversions(t *testing.T) {
	m := NewFieldMapper[measureRow, measure]()
	w := 4.0

	got, err := m.Map(measureRow{Qty: 3, Count: -7, Weight: &w, Code: 65}, nil)
	require.NoError(t, err)
	assert.Equal(t, measure{Qty: 3, Count: -7, Weight: 4}, got, "ints are not copied into strings")

	got, err = m.Map(measureRow{}, nil)
	require.NoError(t, err)
	assert.Zero(t, got.Weight)
}

func TestFieldMapperExtraRange(t *testing.T) {
	m := NewFieldMapper[productRow, product]()

	_, err := m.Map(productRow{}, map[string]any{"quantity": 2.5})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = m.Map(productRow{}, map[string]any{"quantity": uint64(1) << 63})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	got, err := m.Map(productRow{}, map[string]any{"quantity": 12.0, "batch": 3})
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.Quantity)
}

func TestFieldMapperCheckExtra(t *testing.T) {
	m := NewFieldMapper[productRow, product]()

	assert.NoError(t, m.CheckExtra(map[string]any{"source_system": "erp", "batch": 7}))
	assert.NoError(t, m.CheckExtra(nil))
	assert.ErrorIs(t, m.CheckExtra(map[string]any{"warehouse": "north"}), ErrUnknownColumn)
	assert.ErrorIs(t, m.CheckExtra(map[string]any{"active": "yes"}), ErrTypeMismatch)
}
