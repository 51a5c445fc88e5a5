// Package mapper converts row models into persistence entities.
//
// FieldMapper copies same-named fields with copier and then applies
// caller-supplied extra column values, which is enough for the flat
// row/entity pairs the importer works with. Anything more involved can be
// written as a Func, or by embedding a FieldMapper.
package mapper

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/copier"

	"github.com/JonMunkholm/csvimport/internal/importer"
)

var (
	// ErrUnknownColumn is returned when an extra column value names no entity field.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrTypeMismatch is returned when an extra column value cannot be stored in its field.
	ErrTypeMismatch = errors.New("type mismatch")
)

// Func adapts an ordinary function to the importer's Mapper interface.
type Func[M, E any] func(model M, extra map[string]any) (E, error)

// Map implements importer.Mapper.
func (f Func[M, E]) Map(model M, extra map[string]any) (E, error) {
	return f(model, extra)
}

// FieldMapper copies same-named exported fields from M to E.
// M and E may each be a struct or a pointer to a struct.
//
// Numeric fields are converted only when the value survives the
// conversion unchanged; 2.9 into an int field is a row format error, not 2.
type FieldMapper[M, E any] struct {
	dstType        reflect.Type
	srcPtr, dstPtr bool
	option         copier.Option
	columns        map[string]int // lowercased db tag or field name -> E field
}

// NewFieldMapper builds the mapper for M -> E. It panics if either type
// is not a struct, since that is a programming error caught at startup.
func NewFieldMapper[M, E any]() *FieldMapper[M, E] {
	var m M
	var e E
	srcType, srcPtr := structType(reflect.TypeOf(&m).Elem())
	dstType, dstPtr := structType(reflect.TypeOf(&e).Elem())

	fm := &FieldMapper[M, E]{
		dstType: dstType,
		srcPtr:  srcPtr,
		dstPtr:  dstPtr,
		columns: make(map[string]int),
	}

	seen := make(map[[2]reflect.Type]bool)
	var converters []copier.TypeConverter
	for i := 0; i < dstType.NumField(); i++ {
		df := dstType.Field(i)
		if !df.IsExported() {
			continue
		}

		col := strings.SplitN(df.Tag.Get("db"), ",", 2)[0]
		if col == "" || col == "-" {
			col = df.Name
		}
		fm.columns[strings.ToLower(col)] = i
		fm.columns[strings.ToLower(df.Name)] = i

		sf, ok := srcType.FieldByName(df.Name)
		if !ok || !sf.IsExported() || sf.Type.AssignableTo(df.Type) {
			continue
		}
		pair := [2]reflect.Type{sf.Type, df.Type}
		if seen[pair] {
			continue
		}
		if conv, ok := converterFor(sf.Type, df.Type); ok {
			seen[pair] = true
			converters = append(converters, conv)
		}
	}

	fm.option = copier.Option{CaseSensitive: true, Converters: converters}
	return fm
}

func structType(t reflect.Type) (reflect.Type, bool) {
	isPtr := false
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
		isPtr = true
	}
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("mapper: %s is not a struct", t))
	}
	return t, isPtr
}

// converterFor replaces copier's plain reflect conversion for from -> to
// where that conversion could change the value.
func converterFor(from, to reflect.Type) (copier.TypeConverter, bool) {
	elem := from
	if from.Kind() == reflect.Pointer {
		elem = from.Elem()
	}

	var convert func(reflect.Value) (any, error)
	switch {
	case isNumeric(elem.Kind()) && isNumeric(to.Kind()):
		convert = func(v reflect.Value) (any, error) {
			out, ok := exact(v, to)
			if !ok {
				return nil, fmt.Errorf("%w: %v does not fit %s", importer.ErrInvalidFormat, v.Interface(), to)
			}
			return out.Interface(), nil
		}
	case to.Kind() == reflect.String && elem.Kind() != reflect.String && elem.ConvertibleTo(to):
		// int -> string would be a rune conversion; leave the field empty.
		convert = func(reflect.Value) (any, error) {
			return reflect.Zero(to).Interface(), nil
		}
	default:
		return copier.TypeConverter{}, false
	}

	return copier.TypeConverter{
		SrcType: reflect.Zero(from).Interface(),
		DstType: reflect.Zero(to).Interface(),
		Fn: func(src any) (any, error) {
			v := reflect.ValueOf(src)
			if from.Kind() == reflect.Pointer {
				if !v.IsValid() || v.IsNil() {
					return reflect.Zero(to).Interface(), nil
				}
				v = v.Elem()
			}
			return convert(v)
		},
	}, true
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isSigned(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func isUnsigned(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

// exact converts the numeric value v to type to, reporting false when the
// result does not convert back to v or changes sign.
func exact(v reflect.Value, to reflect.Type) (reflect.Value, bool) {
	from := v.Kind()
	switch {
	case isSigned(from) && isUnsigned(to.Kind()) && v.Int() < 0:
		return reflect.Value{}, false
	case isUnsigned(from) && isSigned(to.Kind()):
		if v.Uint() > uint64(1)<<(to.Bits()-1)-1 {
			return reflect.Value{}, false
		}
	case (from == reflect.Float32 || from == reflect.Float64) && !isFloat(to.Kind()):
		f := v.Float()
		if math.IsNaN(f) || f >= maxInt(to) || f < minInt(to) {
			return reflect.Value{}, false
		}
	}

	out := v.Convert(to)
	if !out.Convert(v.Type()).Equal(v) {
		return reflect.Value{}, false
	}
	return out, true
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

// maxInt is the first float64 past the range of integer type t.
func maxInt(t reflect.Type) float64 {
	if isUnsigned(t.Kind()) {
		return float64(uint64(1)<<(t.Bits()-1)) * 2
	}
	return float64(uint64(1) << (t.Bits() - 1))
}

func minInt(t reflect.Type) float64 {
	if isUnsigned(t.Kind()) {
		return 0
	}
	return -float64(uint64(1) << (t.Bits() - 1))
}

// Map implements importer.Mapper.
//
// A same-named field whose value cannot be stored exactly yields an error
// wrapping importer.ErrInvalidFormat. Bad extra values yield
// ErrUnknownColumn or ErrTypeMismatch.
func (fm *FieldMapper[M, E]) Map(model M, extra map[string]any) (E, error) {
	var zero E

	src := reflect.ValueOf(&model).Elem()
	if fm.srcPtr {
		if src.IsNil() {
			return zero, errors.New("mapper: nil row model")
		}
		src = src.Elem()
	}

	dstPtr := reflect.New(fm.dstType)
	if err := copier.CopyWithOption(dstPtr.Interface(), src.Interface(), fm.option); err != nil {
		return zero, err
	}

	if err := fm.applyExtra(dstPtr.Elem(), extra); err != nil {
		return zero, err
	}

	if fm.dstPtr {
		return dstPtr.Interface().(E), nil
	}
	return dstPtr.Elem().Interface().(E), nil
}

// CheckExtra reports the error Map would return for extra, without a row.
func (fm *FieldMapper[M, E]) CheckExtra(extra map[string]any) error {
	return fm.applyExtra(reflect.New(fm.dstType).Elem(), extra)
}

func (fm *FieldMapper[M, E]) applyExtra(dst reflect.Value, extra map[string]any) error {
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		idx, ok := fm.columns[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
		if err := assign(dst.Field(idx), extra[name]); err != nil {
			return fmt.Errorf("column %q: %w", name, err)
		}
	}
	return nil
}

// assign stores v in field, parsing strings for non-string fields.
func assign(field reflect.Value, v any) error {
	if v == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}
	if field.Kind() == reflect.Pointer && rv.Type().AssignableTo(field.Type().Elem()) {
		p := reflect.New(field.Type().Elem())
		p.Elem().Set(rv)
		field.Set(p)
		return nil
	}
	if s, ok := v.(string); ok {
		return parseInto(field, s)
	}
	if isNumeric(rv.Kind()) && isNumeric(field.Kind()) {
		out, ok := exact(rv, field.Type())
		if !ok {
			return fmt.Errorf("%w: %v does not fit %s", ErrTypeMismatch, v, field.Type())
		}
		field.Set(out)
		return nil
	}
	if rv.Kind() == reflect.String && field.Kind() == reflect.String {
		field.Set(rv.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("%w: cannot use %T as %s", ErrTypeMismatch, v, field.Type())
}

func parseInto(field reflect.Value, s string) error {
	if field.Kind() == reflect.Pointer {
		p := reflect.New(field.Type().Elem())
		if err := parseInto(p.Elem(), s); err != nil {
			return err
		}
		field.Set(p)
		return nil
	}

	if field.Type() == reflect.TypeOf(time.Time{}) {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			if t, err = time.Parse("2006-01-02", s); err != nil {
				return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
			}
		}
		field.Set(reflect.ValueOf(t))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(s, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(s, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		field.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTypeMismatch, err)
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("%w: cannot parse string into %s", ErrTypeMismatch, field.Type())
	}
	return nil
}
