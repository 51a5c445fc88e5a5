package tables

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/JonMunkholm/csvimport/internal/importer"
	"github.com/JonMunkholm/csvimport/internal/store"
)

// ProductRow is one line of a products CSV.
type ProductRow struct {
	SKU      string  `csv:"SKU" validate:"required,sku"`
	Name     string  `csv:"Name" validate:"required,max=200"`
	Price    float64 `csv:"Price" validate:"gte=0"`
	Quantity int     `csv:"Quantity" validate:"gte=0"`
	Category string  `csv:"Category,omitempty" validate:"omitempty,max=64"`
}

// Product is a stored catalog item.
type Product struct {
	SKU      string  `db:"sku"`
	Name     string  `db:"name"`
	Price    float64 `db:"price"`
	Quantity int64   `db:"quantity"`
	Category string  `db:"category"`
	Source   string  `db:"source"`
}

var productsTable = store.Table[Product]{
	Name:    "products",
	Columns: []string{"sku", "name", "price", "quantity", "category", "source"},
	Values: func(p Product) []any {
		return []any{p.SKU, p.Name, p.Price, p.Quantity, p.Category, p.Source}
	},
}

var skuPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{1,31}$`)

func validSKU(fl validator.FieldLevel) bool {
	return skuPattern.MatchString(fl.Field().String())
}

func init() {
	core.Register(core.Define(
		core.TableInfo{Key: "products", Group: "Catalog", Label: "Products"},
		core.TableSpec[ProductRow, Product]{
			Table: productsTable,
			Rules: []importer.StructOption{importer.WithRule("sku", validSKU)},
			// Catalog feeds predate the detailed messages.
			Classifier: importer.LegacyClassifier{},
		},
	))
}
