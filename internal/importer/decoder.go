package importer

// decoder.go binds CSV records to row model structs.
//
// The first record is the header. Each exported struct field binds to the
// column named by its `csv` tag (case-insensitive), or to its own name when
// the tag is absent:
//
//	type ContactRow struct {
//	    ID    int    `csv:"Id"`
//	    Name  string `csv:"Name"`
//	    Email string `csv:"Email,omitempty"` // column may be absent or empty
//	    Notes string `csv:"-"`               // never bound
//	}
//
// Value conversion is done by csvutil. Row-level problems (a missing column,
// a value that does not convert) are returned as *RowError so the pipeline
// can classify them and continue. Any other error from the underlying
// reader is fatal.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
)

// RowReader yields parsed row models one at a time.
// Next returns io.EOF after the last row. A *RowError is a recoverable
// problem with a single row; any other error ends the import.
type RowReader[M any] interface {
	Next() (M, error)
}

// TimeLayouts are tried in order when binding a time.Time field.
var TimeLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
}

// timeUnmarshalers replaces csvutil's RFC3339-only time.Time handling.
var timeUnmarshalers = csvutil.NewUnmarshalers(
	csvutil.UnmarshalFunc(func(data []byte, t *time.Time) error {
		value := strings.TrimSpace(string(data))
		if value == "" {
			*t = time.Time{}
			return nil
		}
		parsed, err := parseTime(value)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}),
)

type binding struct {
	name     string // tag or field name, as csvutil knows it
	key      string // normalized for header matching
	optional bool
}

// Decoder reads row models of type M from CSV text.
type Decoder[M any] struct {
	reader   *csv.Reader
	feed     *recordFeed
	dec      *csvutil.Decoder
	rowType  reflect.Type
	isPtr    bool
	bindings []binding
	header   map[string]int // binding name -> record position
	width    int
	started  bool
}

// recordFeed hands csvutil one record at a time, after the Decoder has
// checked and padded it.
type recordFeed struct {
	record []string
}

func (f *recordFeed) Read() ([]string, error) {
	if f.record == nil {
		return nil, io.EOF
	}
	rec := f.record
	f.record = nil
	return rec, nil
}

// NewDecoder creates a Decoder over r. M must be a struct or a pointer to a struct.
func NewDecoder[M any](r io.Reader) (*Decoder[M], error) {
	var zero M
	t := reflect.TypeOf(&zero).Elem()
	isPtr := false
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
		isPtr = true
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("decoder: row model must be a struct, got %s", t)
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	return &Decoder[M]{
		reader:   cr,
		feed:     &recordFeed{},
		rowType:  t,
		isPtr:    isPtr,
		bindings: bindingsFor(t),
	}, nil
}

// NewRowReader is the default RowReader factory used by the pipeline.
func NewRowReader[M any](r io.Reader) (RowReader[M], error) {
	return NewDecoder[M](r)
}

// bindingsFor lists the columns csvutil will bind for t.
func bindingsFor(t reflect.Type) []binding {
	var out []binding
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("csv")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = f.Name
		}
		out = append(out, binding{
			name:     name,
			key:      headerKey(name),
			optional: opts == "omitempty",
		})
	}
	return out
}

// headerKey normalizes a header cell for lookup.
func headerKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// readHeader reads the header and rewrites matching cells to the exact
// binding names, so csvutil matches them case-insensitively. Later
// duplicates of a column are renamed away; the first one wins.
func (d *Decoder[M]) readHeader() error {
	raw, err := d.reader.Read()
	if err != nil {
		return err
	}

	byKey := make(map[string]string, len(d.bindings))
	for _, b := range d.bindings {
		byKey[b.key] = b.name
	}

	header := make([]string, len(raw))
	d.header = make(map[string]int, len(raw))
	for i, cell := range raw {
		name, ok := byKey[headerKey(cell)]
		if !ok {
			name = cell
		}
		if _, dup := d.header[name]; dup {
			name = fmt.Sprintf("%s#%d", name, i+1)
		}
		header[i] = name
		d.header[name] = i
	}
	d.width = len(header)

	dec, err := csvutil.NewDecoder(d.feed, header...)
	if err != nil {
		return fmt.Errorf("bind header: %w", err)
	}
	dec.WithUnmarshalers(timeUnmarshalers)
	d.dec = dec
	return nil
}

// Next implements RowReader.
func (d *Decoder[M]) Next() (M, error) {
	var zero M

	if !d.started {
		d.started = true
		if err := d.readHeader(); err != nil {
			if errors.Is(err, io.EOF) {
				return zero, io.EOF
			}
			return zero, fmt.Errorf("read header: %w", err)
		}
	}

	record, err := d.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return zero, io.EOF
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return zero, &RowError{Line: parseErr.Line, Err: err}
		}
		return zero, fmt.Errorf("read record: %w", err)
	}
	line, _ := d.reader.FieldPos(0)

	for _, b := range d.bindings {
		if pos, ok := d.header[b.name]; (!ok || pos >= len(record)) && !b.optional {
			return zero, &RowError{Line: line, Err: fmt.Errorf("%w: %q", ErrMissingField, b.key)}
		}
	}

	// csvutil wants exactly one cell per header column.
	padded := make([]string, d.width)
	copy(padded, record)
	d.feed.record = padded

	ptr := reflect.New(d.rowType)
	if err := d.dec.Decode(ptr.Interface()); err != nil {
		return zero, &RowError{Line: line, Err: d.fieldError(padded, err)}
	}

	if d.isPtr {
		return ptr.Interface().(M), nil
	}
	return ptr.Elem().Interface().(M), nil
}

// fieldError attaches the failing column and cell to a csvutil error.
func (d *Decoder[M]) fieldError(record []string, err error) error {
	var decErr *csvutil.DecodeError
	if !errors.As(err, &decErr) {
		return err
	}
	fe := &FieldError{Column: headerKey(decErr.Field), Err: err}
	if pos, ok := d.header[decErr.Field]; ok {
		fe.Value = record[pos]
	}
	return fe
}

func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range TimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
