package sqlite

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/strftime"
	"github.com/shopspring/decimal"

	"github.com/roach88/relq/internal/queryir"
)

// SQLite stores dates and times as TEXT in a fixed layout so that text
// comparison orders them chronologically.
var (
	dateTimeLayout = mustStrftime("%Y-%m-%d %H:%M:%S")
	jsonTimeLayout = mustStrftime("%Y-%m-%dT%H:%M:%S")
	dateLayout     = mustStrftime("%Y-%m-%d")
)

func mustStrftime(pattern string) *strftime.Strftime {
	f, err := strftime.New(pattern)
	if err != nil {
		panic(fmt.Sprintf("sqlite: bad time layout %q: %v", pattern, err))
	}
	return f
}

// ticks renders the sub-second part in 100ns units with trailing zeros
// removed, or "" for a whole second.
func ticks(ns int) string {
	if ns < 100 {
		return ""
	}
	return strings.TrimRight(fmt.Sprintf(".%07d", ns/100), "0")
}

// FormatDateTime renders t as SQLite stores a datetime:
// 2006-01-02 15:04:05.1234567 with trailing fractional zeros trimmed.
func FormatDateTime(t time.Time) string {
	return dateTimeLayout.FormatString(t) + ticks(t.Nanosecond())
}

// FormatDateTimeOffset renders t with its UTC offset.
func FormatDateTimeOffset(t time.Time) string {
	return FormatDateTime(t) + t.Format("-07:00")
}

// FormatDate renders the date part of t.
func FormatDate(t time.Time) string {
	return dateLayout.FormatString(t)
}

// FormatTimeOfDay renders a duration since midnight as 15:04:05.1234567.
func FormatTimeOfDay(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s) + ticks(int(d))
}

// FormatTimeSpan renders d in the constant format [-][d.]hh:mm:ss[.fffffff].
// The fraction, when present, always has seven digits.
func FormatTimeSpan(d time.Duration) string {
	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		fmt.Fprintf(&b, "%d.", days)
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	fmt.Fprintf(&b, "%02d:%02d:%02d", h, m, s)
	if d >= 100 {
		fmt.Fprintf(&b, ".%07d", d/100)
	}
	return b.String()
}

// ParseTimeSpan parses the FormatTimeSpan layout.
func ParseTimeSpan(s string) (time.Duration, error) {
	orig := s
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var days int64
	if i := strings.IndexByte(s, '.'); i >= 0 && i < strings.IndexByte(s, ':') {
		n, err := strconv.ParseInt(s[:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timespan %q", orig)
		}
		days, s = n, s[i+1:]
	}
	var frac time.Duration
	if i := strings.IndexByte(s, '.'); i >= 0 {
		digits := (s[i+1:] + "0000000")[:7]
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timespan %q", orig)
		}
		frac, s = time.Duration(n)*100, s[:i]
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timespan %q", orig)
	}
	var hms [3]int64
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timespan %q", orig)
		}
		hms[i] = n
	}
	d := time.Duration(days)*24*time.Hour + time.Duration(hms[0])*time.Hour +
		time.Duration(hms[1])*time.Minute + time.Duration(hms[2])*time.Second + frac
	if neg {
		d = -d
	}
	return d, nil
}

// FormatDecimal renders d the way decimal columns are stored: at least one
// fractional digit, no trailing zeros beyond it.
func FormatDecimal(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%v has no SQLite literal", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s, nil
}

func textLiteral(format func(any) string) func(any) (string, error) {
	return func(v any) (string, error) { return quote(format(v)), nil }
}

func textConverter(name string, format func(any) string) *queryir.ValueConverter {
	return &queryir.ValueConverter{
		Name:       name,
		ToProvider: func(v any) (any, error) { return format(v), nil },
	}
}

func asTime(v any) time.Time         { return v.(time.Time) }
func asDuration(v any) time.Duration { return v.(time.Duration) }

var (
	formatDateTimeValue       = func(v any) string { return FormatDateTime(asTime(v)) }
	formatDateTimeOffsetValue = func(v any) string { return FormatDateTimeOffset(asTime(v)) }
	formatDateValue           = func(v any) string { return FormatDate(asTime(v)) }
	formatTimeValue           = func(v any) string { return FormatTimeOfDay(asDuration(v)) }
	formatTimeSpanValue       = func(v any) string { return FormatTimeSpan(asDuration(v)) }
	formatDecimalValue        = func(v any) string { return FormatDecimal(v.(decimal.Decimal)) }
	formatUUIDValue           = func(v any) string { return strings.ToUpper(v.(uuid.UUID).String()) }
)

// The SQLite type-mapping catalog. Every node rendering a kind the same
// way shares one of these pointers.
var (
	Bool = &queryir.TypeMapping{
		Kind:      queryir.KindBool,
		StoreType: "INTEGER",
		Literal: func(v any) (string, error) {
			if v.(bool) {
				return "1", nil
			}
			return "0", nil
		},
	}
	Int32 = &queryir.TypeMapping{
		Kind:      queryir.KindInt32,
		StoreType: "INTEGER",
		Literal:   func(v any) (string, error) { return strconv.FormatInt(v.(int64), 10), nil },
	}
	Int64 = &queryir.TypeMapping{
		Kind:      queryir.KindInt64,
		StoreType: "INTEGER",
		Literal:   func(v any) (string, error) { return strconv.FormatInt(v.(int64), 10), nil },
	}
	// Uint64 is stored in a signed INTEGER; values above MaxInt64 wrap,
	// which is why ordering and arithmetic on it are refused.
	Uint64 = &queryir.TypeMapping{
		Kind:      queryir.KindUint64,
		StoreType: "INTEGER",
		Converter: &queryir.ValueConverter{
			Name:       "uint64-to-int64",
			ToProvider: func(v any) (any, error) { return int64(v.(uint64)), nil },
		},
		Literal: func(v any) (string, error) { return strconv.FormatInt(int64(v.(uint64)), 10), nil },
	}
	Float64 = &queryir.TypeMapping{
		Kind:      queryir.KindFloat64,
		StoreType: "REAL",
		Literal:   func(v any) (string, error) { return formatFloat(v.(float64)) },
	}
	Decimal = &queryir.TypeMapping{
		Kind:      queryir.KindDecimal,
		StoreType: "TEXT",
		Converter: textConverter("decimal-to-text", formatDecimalValue),
		Literal:   textLiteral(formatDecimalValue),
	}
	String = &queryir.TypeMapping{
		Kind:      queryir.KindString,
		StoreType: "TEXT",
		Literal:   func(v any) (string, error) { return quote(v.(string)), nil },
	}
	Bytes = &queryir.TypeMapping{
		Kind:      queryir.KindBytes,
		StoreType: "BLOB",
		Literal: func(v any) (string, error) {
			return "X'" + strings.ToUpper(hex.EncodeToString(v.([]byte))) + "'", nil
		},
	}
	DateTime = &queryir.TypeMapping{
		Kind:      queryir.KindDateTime,
		StoreType: "TEXT",
		Converter: textConverter("datetime-to-text", formatDateTimeValue),
		Literal:   textLiteral(formatDateTimeValue),
	}
	DateTimeOffset = &queryir.TypeMapping{
		Kind:      queryir.KindDateTimeOffset,
		StoreType: "TEXT",
		Converter: textConverter("datetimeoffset-to-text", formatDateTimeOffsetValue),
		Literal:   textLiteral(formatDateTimeOffsetValue),
	}
	Date = &queryir.TypeMapping{
		Kind:      queryir.KindDate,
		StoreType: "TEXT",
		Converter: textConverter("date-to-text", formatDateValue),
		Literal:   textLiteral(formatDateValue),
	}
	Time = &queryir.TypeMapping{
		Kind:      queryir.KindTime,
		StoreType: "TEXT",
		Converter: textConverter("time-to-text", formatTimeValue),
		Literal:   textLiteral(formatTimeValue),
	}
	TimeSpan = &queryir.TypeMapping{
		Kind:      queryir.KindTimeSpan,
		StoreType: "TEXT",
		Converter: textConverter("timespan-to-text", formatTimeSpanValue),
		Literal:   textLiteral(formatTimeSpanValue),
	}
	UUID = &queryir.TypeMapping{
		Kind:      queryir.KindUUID,
		StoreType: "TEXT",
		Converter: textConverter("uuid-to-text", formatUUIDValue),
		Literal:   textLiteral(formatUUIDValue),
	}
	Object = &queryir.TypeMapping{
		Kind:      queryir.KindObject,
		StoreType: "TEXT",
		Converter: &queryir.ValueConverter{
			Name:       "object-to-json",
			ToProvider: func(v any) (any, error) { return encodeJSON(v) },
		},
		Literal: func(v any) (string, error) {
			s, err := encodeJSON(v)
			if err != nil {
				return "", err
			}
			return quote(s), nil
		},
	}
)

// FromJSON hooks build nodes carrying the mapping itself, so they are
// attached after the variables exist.
func init() {
	Bytes.FromJSON = func(e queryir.SqlExpr) queryir.SqlExpr {
		return queryir.NewFunction(FuncUnhex, []queryir.SqlExpr{e}, queryir.Propagating(1), true, queryir.KindBytes, Bytes)
	}
	DateTime.FromJSON = func(e queryir.SqlExpr) queryir.SqlExpr {
		return trimmedStrftime(queryir.KindDateTime, DateTime, "%Y-%m-%d %H:%M:%f", e)
	}
	UUID.FromJSON = func(e queryir.SqlExpr) queryir.SqlExpr {
		return queryir.NewFunction("upper", []queryir.SqlExpr{e}, queryir.Propagating(1), true, queryir.KindUUID, UUID)
	}
}

var defaults = map[queryir.Kind]*queryir.TypeMapping{
	queryir.KindBool:           Bool,
	queryir.KindInt32:          Int32,
	queryir.KindInt64:          Int64,
	queryir.KindUint64:         Uint64,
	queryir.KindFloat64:        Float64,
	queryir.KindDecimal:        Decimal,
	queryir.KindString:         String,
	queryir.KindBytes:          Bytes,
	queryir.KindDateTime:       DateTime,
	queryir.KindDateTimeOffset: DateTimeOffset,
	queryir.KindDate:           Date,
	queryir.KindTime:           Time,
	queryir.KindTimeSpan:       TimeSpan,
	queryir.KindUUID:           UUID,
	queryir.KindObject:         Object,
}

// Catalog is the SQLite MappingSource. Collection mappings are created on
// first use and memoized so that each element mapping has exactly one
// collection mapping. Safe for concurrent use.
type Catalog struct {
	collections sync.Map // *TypeMapping (element, possibly nil) -> *TypeMapping
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Default implements queryir.MappingSource. Arrays of unknown element
// type get the untyped collection mapping.
func (c *Catalog) Default(kind queryir.Kind) *queryir.TypeMapping {
	if kind == queryir.KindArray {
		return c.Collection(nil)
	}
	return defaults[kind]
}

// Collection implements queryir.MappingSource.
func (c *Catalog) Collection(elem *queryir.TypeMapping) *queryir.TypeMapping {
	if m, ok := c.collections.Load(elem); ok {
		return m.(*queryir.TypeMapping)
	}
	m, _ := c.collections.LoadOrStore(elem, newCollection(elem))
	return m.(*queryir.TypeMapping)
}

func newCollection(elem *queryir.TypeMapping) *queryir.TypeMapping {
	encode := func(v any) (string, error) {
		items := v.([]any)
		out := make([]any, len(items))
		for i, it := range items {
			j, err := jsonElement(elem, it)
			if err != nil {
				return "", fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = j
		}
		return encodeJSON(out)
	}
	name := "collection-to-json"
	if elem != nil {
		name = fmt.Sprintf("collection(%s)-to-json", elem.Kind)
	}
	return &queryir.TypeMapping{
		Kind:      queryir.KindArray,
		StoreType: "TEXT",
		Element:   elem,
		Converter: &queryir.ValueConverter{
			Name:       name,
			ToProvider: func(v any) (any, error) { return encode(v) },
		},
		Literal: func(v any) (string, error) {
			s, err := encode(v)
			if err != nil {
				return "", err
			}
			return quote(s), nil
		},
	}
}

// jsonElement converts one element to its JSON form. Datetimes are ISO
// 8601 with a T separator, uuids lower-case and bytes hex, which is why
// reading them back goes through the element mapping's FromJSON.
func jsonElement(elem *queryir.TypeMapping, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	kind := queryir.KindOf(v)
	if elem != nil {
		kind = elem.Kind
	}
	norm, err := queryir.Normalize(v, kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case queryir.KindDateTime:
		t := norm.(time.Time)
		return jsonTimeLayout.FormatString(t) + ticks(t.Nanosecond()), nil
	case queryir.KindUUID:
		return norm.(uuid.UUID).String(), nil
	case queryir.KindBytes:
		return hex.EncodeToString(norm.([]byte)), nil
	case queryir.KindUint64:
		return int64(norm.(uint64)), nil
	case queryir.KindFloat64:
		f := norm.(float64)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%v cannot be stored in JSON", f)
		}
		return f, nil
	}
	if m := defaults[kind]; m != nil && m.Converter != nil {
		return m.Converter.ToProvider(norm)
	}
	return norm, nil
}

func encodeJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
