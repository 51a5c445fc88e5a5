package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"

	"github.com/JonMunkholm/csvimport/internal/importer"
	"github.com/JonMunkholm/csvimport/internal/mapper"
	"github.com/JonMunkholm/csvimport/internal/store"
)

// TableSpec is the typed half of a table definition: how rows of M are
// validated and mapped into entities E, and where E is written.
type TableSpec[M, E any] struct {
	Table store.Table[E]

	// Mapper defaults to mapper.NewFieldMapper[M, E]().
	Mapper importer.Mapper[M, E]

	// Validators run after the struct-tag validator for M.
	Validators []importer.Validator[M]

	// Rules registers custom validate tags used by M.
	Rules []importer.StructOption

	// Classifier replaces the default error classifier chain.
	Classifier importer.Classifier
}

// Define builds a TableDefinition from a typed spec. Info.Table and
// Info.Columns are filled from the spec when empty. It panics on an
// invalid spec, since definitions are built at init time.
func Define[M, E any](info TableInfo, spec TableSpec[M, E]) TableDefinition {
	if err := spec.Table.Validate(); err != nil {
		panic(fmt.Sprintf("table %s: %v", info.Key, err))
	}

	if info.Table == "" {
		info.Table = spec.Table.Name
	}
	if len(info.Columns) == 0 {
		info.Columns = csvColumns[M]()
	}

	m := spec.Mapper
	if m == nil {
		m = mapper.NewFieldMapper[M, E]()
	}

	sv, err := importer.NewStructValidator[M](spec.Rules...)
	if err != nil {
		panic(fmt.Sprintf("table %s: %v", info.Key, err))
	}
	validators := append([]importer.Validator[M]{sv}, spec.Validators...)

	bind := func(b Backend, logger *slog.Logger) Runner {
		logger = logger.With("table", info.Key)

		return func(ctx context.Context, r io.Reader, req ImportRequest) (importer.ImportResult, error) {
			st, err := newStore(b, spec.Table)
			if err != nil {
				return importer.ImportResult{}, err
			}

			opts := []importer.Option[M, E]{
				importer.WithValidators[M, E](validators...),
				importer.WithSizeHint[M, E](req.SizeHint),
			}
			if spec.Classifier != nil {
				opts = append(opts, importer.WithClassifier[M, E](spec.Classifier))
			}

			im, err := importer.New(st, m, logger, opts...)
			if err != nil {
				return importer.ImportResult{}, err
			}
			return im.ProcessCSV(ctx, r, req.Extra, req.ValidateOnly)
		}
	}

	return TableDefinition{Info: info, Bind: bind}
}

// csvColumns lists the header columns bound by M's csv tags.
func csvColumns[M any]() []string {
	var zero M
	t := reflect.TypeOf(&zero).Elem()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var cols []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("csv"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		cols = append(cols, name)
	}
	return cols
}
