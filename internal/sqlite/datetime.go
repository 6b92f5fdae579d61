package sqlite

import (
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/sqltranslate"
)

const (
	kDateTime = queryir.KindDateTime
	kDate     = queryir.KindDate
	kTime     = queryir.KindTime
	kFloat    = queryir.KindFloat64

	dateTimeFormat = "%Y-%m-%d %H:%M:%f"
	timeFormat     = "%H:%M:%f"
)

// dateParts maps date and time members to strftime fields.
var dateParts = map[string]string{
	"Year":      "%Y",
	"Month":     "%m",
	"Day":       "%d",
	"Hour":      "%H",
	"Minute":    "%M",
	"Second":    "%S",
	"DayOfYear": "%j",
	"DayOfWeek": "%w",
}

// dateUnits maps AddX methods to date modifier units.
var dateUnits = map[string]string{
	"AddYears":   "years",
	"AddMonths":  "months",
	"AddDays":    "days",
	"AddHours":   "hours",
	"AddMinutes": "minutes",
	"AddSeconds": "seconds",
}

// datePart is CAST(strftime(field, d) AS INTEGER).
func datePart(f *sqltranslate.Factory, field string, d queryir.SqlExpr) queryir.SqlExpr {
	return f.Convert(f.FunctionWith("strftime", kString,
		[]queryir.SqlExpr{f.String(field), d}, []bool{false, true}, true), kInt32)
}

// translateDateTime handles members and methods of datetime, date and
// time values, and the DateTime/DateOnly statics.
func translateDateTime(f *sqltranslate.Factory, c *sqltranslate.CallSite) (queryir.SqlExpr, error) {
	if c.Shape == sqltranslate.ShapeStatic {
		return dateStatic(f, c)
	}
	d := c.Receiver
	switch d.Type() {
	case kDateTime:
		if c.Shape == sqltranslate.ShapeMember {
			return dateTimeMember(f, c.Name, d), nil
		}
		return dateTimeMethod(f, c, d), nil
	case kDate:
		if c.Shape == sqltranslate.ShapeMember {
			switch c.Name {
			case "Year", "Month", "Day", "DayOfYear", "DayOfWeek":
				return datePart(f, dateParts[c.Name], d), nil
			}
			return nil, nil
		}
		switch {
		case c.Is("AddYears", kAny), c.Is("AddMonths", kAny), c.Is("AddDays", kAny):
			return f.FunctionWith("date", kDate,
				[]queryir.SqlExpr{d, modifier(f, c.Args[0], dateUnits[c.Name])}, []bool{true, true}, true), nil
		}
	case kTime:
		if c.Shape != sqltranslate.ShapeMember {
			return nil, nil
		}
		switch c.Name {
		case "Hour", "Minute", "Second":
			return datePart(f, dateParts[c.Name], d), nil
		case "Millisecond":
			return millisecond(f, d), nil
		}
	case queryir.KindDateTimeOffset:
		if c.Shape == sqltranslate.ShapeMember || dateUnits[c.Name] != "" {
			return nil, sqltranslate.NotSupported(c.Name, queryir.KindDateTimeOffset)
		}
	}
	return nil, nil
}

func dateTimeMember(f *sqltranslate.Factory, name string, d queryir.SqlExpr) queryir.SqlExpr {
	if field, ok := dateParts[name]; ok {
		return datePart(f, field, d)
	}
	switch name {
	case "Millisecond":
		return millisecond(f, d)
	case "Date":
		return trimmedStrftime(kDateTime, DateTime, dateTimeFormat, d, f.String("start of day"))
	case "TimeOfDay":
		return trimmedStrftime(kTime, Time, timeFormat, d)
	}
	return nil
}

// millisecond is CAST((strftime('%f', d) * 1000) % 1000 AS INTEGER).
func millisecond(f *sqltranslate.Factory, d queryir.SqlExpr) queryir.SqlExpr {
	secs := f.Convert(f.FunctionWith("strftime", kString,
		[]queryir.SqlExpr{f.String("%f"), d}, []bool{false, true}, true), kFloat)
	ms := f.Binary(queryir.OpModulo,
		f.Binary(queryir.OpMultiply, secs, f.Constant(1000.0, kFloat)),
		f.Constant(1000.0, kFloat))
	return f.Convert(ms, kInt32)
}

func dateTimeMethod(f *sqltranslate.Factory, c *sqltranslate.CallSite, d queryir.SqlExpr) queryir.SqlExpr {
	if len(c.Args) != 1 || !c.Args[0].Type().IsNumeric() {
		return nil
	}
	n := c.Args[0]
	if unit, ok := dateUnits[c.Name]; ok {
		return trimmedStrftime(kDateTime, DateTime, dateTimeFormat, d, modifier(f, n, unit))
	}
	if c.Name == "AddMilliseconds" {
		var secs queryir.SqlExpr
		if v, ok := n.(*queryir.Constant); ok && v.Value != nil {
			ms, _ := queryir.Normalize(v.Value, kFloat)
			secs = f.Constant(ms.(float64)/1000, kFloat)
		} else {
			secs = f.Binary(queryir.OpDivide, n, f.Constant(1000.0, kFloat))
		}
		return trimmedStrftime(kDateTime, DateTime, dateTimeFormat, d, modifier(f, secs, "seconds"))
	}
	return nil
}

func dateStatic(f *sqltranslate.Factory, c *sqltranslate.CallSite) (queryir.SqlExpr, error) {
	switch c.Type {
	case "DateTime":
		switch {
		case c.Is("Now"):
			return trimmedStrftime(kDateTime, DateTime, dateTimeFormat, f.String("now"), f.String("localtime")), nil
		case c.Is("UtcNow"):
			return trimmedStrftime(kDateTime, DateTime, dateTimeFormat, f.String("now")), nil
		case c.Is("Today"):
			return trimmedStrftime(kDateTime, DateTime, dateTimeFormat,
				f.String("now"), f.String("localtime"), f.String("start of day")), nil
		}
	case "DateOnly":
		if c.Is("FromDateTime", kDateTime) {
			return f.Function("date", kDate, c.Args[0]), nil
		}
	}
	return nil, nil
}
