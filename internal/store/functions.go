package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/roach88/relq/internal/sqlite"
)

// Decimals carry at most 28 significant digits and stay within the range
// of a 96-bit coefficient.
const decimalDigits = 28

var (
	maxDecimal = decimal.RequireFromString("79228162514264337593543950335")

	errDecimalOverflow = errors.New("decimal overflow")
	errDivideByZero    = errors.New("decimal division by zero")
)

// registerFunctions installs the functions generated SQL calls but SQLite
// does not provide. It runs for every new connection.
func registerFunctions(conn *sqlite3.SQLiteConn) error {
	scalars := []struct {
		name string
		impl any
	}{
		{sqlite.FuncAdd, decimalOp(func(a, b decimal.Decimal) (decimal.Decimal, error) { return a.Add(b), nil })},
		{sqlite.FuncMultiply, decimalOp(func(a, b decimal.Decimal) (decimal.Decimal, error) { return a.Mul(b), nil })},
		{sqlite.FuncDivide, decimalOp(divide)},
		{sqlite.FuncMod, decimalOp(mod)},
		{sqlite.FuncNegate, negate},
		{sqlite.FuncCompare, compare},
		{sqlite.FuncDays, days},
		{sqlite.FuncTimeSpan, timeSpan},
		{sqlite.FuncRegexp, matchRegexp},
		{sqlite.FuncUnhex, unhex},
	}
	for _, f := range scalars {
		if err := conn.RegisterFunc(f.name, f.impl, true); err != nil {
			return fmt.Errorf("register %s: %w", f.name, err)
		}
	}
	if err := conn.RegisterAggregator(sqlite.FuncMax, newExtreme(1), true); err != nil {
		return fmt.Errorf("register %s: %w", sqlite.FuncMax, err)
	}
	if err := conn.RegisterAggregator(sqlite.FuncMin, newExtreme(-1), true); err != nil {
		return fmt.Errorf("register %s: %w", sqlite.FuncMin, err)
	}
	return nil
}

// isNull reports whether a function argument is SQL NULL. The driver
// passes NULL to untyped arguments as a nil []byte.
func isNull(v any) bool {
	if b, ok := v.([]byte); ok {
		return b == nil
	}
	return v == nil
}

// toDecimal reads a decimal from its stored TEXT form or a numeric value.
func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case string:
		return decimal.NewFromString(x)
	case []byte:
		return decimal.NewFromString(string(x))
	case int64:
		return decimal.NewFromInt(x), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	}
	return decimal.Decimal{}, fmt.Errorf("cannot use %T as decimal", v)
}

// fit rounds d to the supported number of significant digits.
func fit(d decimal.Decimal) (decimal.Decimal, error) {
	if d.Abs().GreaterThan(maxDecimal) {
		return d, errDecimalOverflow
	}
	digits := len(d.Coefficient().String())
	if d.Sign() < 0 {
		digits--
	}
	if excess := digits - decimalDigits; excess > 0 && d.Exponent() < 0 {
		places := -d.Exponent() - int32(excess)
		if places < 0 {
			places = 0
		}
		d = d.Round(places)
	}
	return d, nil
}

func decimalOp(op func(a, b decimal.Decimal) (decimal.Decimal, error)) func(a, b any) (any, error) {
	return func(a, b any) (any, error) {
		if isNull(a) || isNull(b) {
			return nil, nil
		}
		x, err := toDecimal(a)
		if err != nil {
			return nil, err
		}
		y, err := toDecimal(b)
		if err != nil {
			return nil, err
		}
		r, err := op(x, y)
		if err != nil {
			return nil, err
		}
		if r, err = fit(r); err != nil {
			return nil, err
		}
		return sqlite.FormatDecimal(r), nil
	}
}

func divide(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Decimal{}, errDivideByZero
	}
	return a.DivRound(b, decimalDigits), nil
}

func mod(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Decimal{}, errDivideByZero
	}
	return a.Mod(b), nil
}

func negate(a any) (any, error) {
	if isNull(a) {
		return nil, nil
	}
	x, err := toDecimal(a)
	if err != nil {
		return nil, err
	}
	return sqlite.FormatDecimal(x.Neg()), nil
}

func compare(a, b any) (any, error) {
	if isNull(a) || isNull(b) {
		return nil, nil
	}
	x, err := toDecimal(a)
	if err != nil {
		return nil, err
	}
	y, err := toDecimal(b)
	if err != nil {
		return nil, err
	}
	return int64(x.Cmp(y)), nil
}

// days converts stored timespan text to fractional days.
func days(v any) (any, error) {
	if isNull(v) {
		return nil, nil
	}
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case []byte:
		s = string(x)
	default:
		return nil, fmt.Errorf("cannot use %T as timespan", v)
	}
	d, err := sqlite.ParseTimeSpan(s)
	if err != nil {
		return nil, err
	}
	return float64(d) / float64(24*time.Hour), nil
}

// timeSpan converts fractional days to timespan text, rounded to 100ns
// ticks.
func timeSpan(v any) (any, error) {
	if isNull(v) {
		return nil, nil
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int64:
		f = float64(x)
	default:
		return nil, fmt.Errorf("cannot use %T as days", v)
	}
	ticks := math.Round(f * float64(24*time.Hour/100))
	if math.Abs(ticks) > float64(math.MaxInt64/100) {
		return nil, errors.New("timespan overflow")
	}
	return sqlite.FormatTimeSpan(time.Duration(ticks) * 100), nil
}

var patterns sync.Map // string -> *regexp.Regexp

// matchRegexp backs "input REGEXP pattern", which SQLite evaluates as
// regexp(pattern, input).
func matchRegexp(pattern, input any) (any, error) {
	if isNull(pattern) || isNull(input) {
		return nil, nil
	}
	p := text(pattern)
	re, ok := patterns.Load(p)
	if !ok {
		compiled, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("regexp: %w", err)
		}
		re, _ = patterns.LoadOrStore(p, compiled)
	}
	return re.(*regexp.Regexp).MatchString(text(input)), nil
}

// unhex returns NULL for text that is not an even run of hex digits.
func unhex(v any) any {
	if isNull(v) {
		return nil
	}
	b, err := hex.DecodeString(text(v))
	if err != nil {
		return nil
	}
	return b
}

func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

// extreme is the ef_max and ef_min aggregate: the largest (sign 1) or
// smallest (sign -1) non-NULL decimal, in stored form.
type extreme struct {
	sign int
	best decimal.Decimal
	seen bool
	err  error
}

func newExtreme(sign int) func() *extreme {
	return func() *extreme { return &extreme{sign: sign} }
}

func (e *extreme) Step(v any) {
	if isNull(v) || e.err != nil {
		return
	}
	d, err := toDecimal(v)
	if err != nil {
		e.err = err
		return
	}
	if !e.seen || d.Cmp(e.best)*e.sign > 0 {
		e.best, e.seen = d, true
	}
}

func (e *extreme) Done() (any, error) {
	if e.err != nil {
		return nil, e.err
	}
	if !e.seen {
		return nil, nil
	}
	return sqlite.FormatDecimal(e.best), nil
}
