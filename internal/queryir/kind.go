package queryir

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind is the logical type of a scalar value, independent of how a dialect
// stores it.
type Kind int

const (
	KindUnknown Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindUint64
	KindFloat64
	KindDecimal
	KindString
	KindBytes
	KindDateTime
	KindDateTimeOffset
	KindDate
	KindTime
	KindTimeSpan
	KindUUID
	KindArray  // primitive collection, stored as a JSON array
	KindObject // JSON-mapped owned structure
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown",
	KindBool:           "bool",
	KindInt32:          "int32",
	KindInt64:          "int64",
	KindUint64:         "uint64",
	KindFloat64:        "float64",
	KindDecimal:        "decimal",
	KindString:         "string",
	KindBytes:          "bytes",
	KindDateTime:       "datetime",
	KindDateTimeOffset: "datetimeoffset",
	KindDate:           "date",
	KindTime:           "time",
	KindTimeSpan:       "timespan",
	KindUUID:           "uuid",
	KindArray:          "array",
	KindObject:         "object",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s && k != KindUnknown {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown kind %q", s)
}

// IsNumeric reports whether arithmetic is defined on k.
func (k Kind) IsNumeric() bool {
	switch k {
	case KindInt32, KindInt64, KindUint64, KindFloat64, KindDecimal:
		return true
	}
	return false
}

// IsIntegral reports whether k is an integer kind.
func (k Kind) IsIntegral() bool {
	return k == KindInt32 || k == KindInt64 || k == KindUint64
}

// IsTemporal reports whether k is a date or time kind.
func (k Kind) IsTemporal() bool {
	switch k {
	case KindDateTime, KindDateTimeOffset, KindDate, KindTime, KindTimeSpan:
		return true
	}
	return false
}

// Comparable reports whether values of k have a total order in the source
// language. Whether a given dialect can reproduce that order in SQL is a
// separate question answered by the dialect.
func (k Kind) Comparable() bool {
	switch k {
	case KindUnknown, KindArray, KindObject:
		return false
	}
	return true
}

// Normalize converts v to the canonical Go representation of kind:
//
//	bool                 bool
//	int32, int64         int64
//	uint64               uint64
//	float64              float64
//	decimal              decimal.Decimal
//	string               string
//	bytes                []byte
//	datetime, date       time.Time
//	datetimeoffset       time.Time (with its zone)
//	time, timespan       time.Duration
//	uuid                 uuid.UUID
//	array                []any
//
// nil stays nil.
func Normalize(v any, kind Kind) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case KindInt32, KindInt64:
		n, ok := toInt64(v)
		if ok {
			if kind == KindInt32 && (n < math.MinInt32 || n > math.MaxInt32) {
				return nil, fmt.Errorf("value %d overflows int32", n)
			}
			return n, nil
		}
	case KindUint64:
		switch n := v.(type) {
		case uint64:
			return n, nil
		case uint:
			return uint64(n), nil
		case uint32:
			return uint64(n), nil
		}
		if n, ok := toInt64(v); ok && n >= 0 {
			return uint64(n), nil
		}
	case KindFloat64:
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		}
		if n, ok := toInt64(v); ok {
			return float64(n), nil
		}
	case KindDecimal:
		switch d := v.(type) {
		case decimal.Decimal:
			return d, nil
		case string:
			return decimal.NewFromString(d)
		case float64:
			return decimal.NewFromFloat(d), nil
		}
		if n, ok := toInt64(v); ok {
			return decimal.NewFromInt(n), nil
		}
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindBytes:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	case KindDateTime, KindDateTimeOffset, KindDate:
		if t, ok := v.(time.Time); ok {
			if kind == KindDate {
				y, m, d := t.Date()
				return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
			}
			return t, nil
		}
	case KindTime, KindTimeSpan:
		if d, ok := v.(time.Duration); ok {
			return d, nil
		}
	case KindUUID:
		switch u := v.(type) {
		case uuid.UUID:
			return u, nil
		case string:
			return uuid.Parse(u)
		}
	case KindArray:
		switch a := v.(type) {
		case []any:
			return a, nil
		case []string:
			out := make([]any, len(a))
			for i, s := range a {
				out[i] = s
			}
			return out, nil
		case []int64:
			out := make([]any, len(a))
			for i, n := range a {
				out[i] = n
			}
			return out, nil
		case []int:
			out := make([]any, len(a))
			for i, n := range a {
				out[i] = int64(n)
			}
			return out, nil
		}
	case KindObject:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, kind)
}

// KindOf guesses the kind of a Go value. It returns KindUnknown for nil.
func KindOf(v any) Kind {
	switch v.(type) {
	case bool:
		return KindBool
	case int32:
		return KindInt32
	case int, int64, int16, int8:
		return KindInt64
	case uint64, uint, uint32:
		return KindUint64
	case float64, float32:
		return KindFloat64
	case decimal.Decimal:
		return KindDecimal
	case string:
		return KindString
	case []byte:
		return KindBytes
	case time.Time:
		return KindDateTime
	case time.Duration:
		return KindTimeSpan
	case uuid.UUID:
		return KindUUID
	case []any, []string, []int64, []int:
		return KindArray
	case map[string]any:
		return KindObject
	}
	return KindUnknown
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1<<63 {
			return int64(n), true
		}
	}
	return 0, false
}
