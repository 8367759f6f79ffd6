package builtins

import (
	"fmt"
	"strings"
	"time"

	"github.com/solisoft/solidb/value"
)

func init() {
	register("NOW", nowFn)
	register("DATE_NOW", nowFn)
	register("DATE_ISO8601", dateISO8601)
	register("DATE_TIMESTAMP", dateTimestamp)
	register("DATE_YEAR", dateField(func(t time.Time) int { return t.Year() }))
	register("DATE_MONTH", dateField(func(t time.Time) int { return int(t.Month()) }))
	register("DATE_DAY", dateField(func(t time.Time) int { return t.Day() }))
	register("DATE_HOUR", dateField(func(t time.Time) int { return t.Hour() }))
	register("DATE_MINUTE", dateField(func(t time.Time) int { return t.Minute() }))
	register("DATE_SECOND", dateField(func(t time.Time) int { return t.Second() }))
	register("DATE_DAYOFWEEK", dateField(func(t time.Time) int { return int(t.Weekday()) }))
	register("DATE_DAYOFYEAR", dateField(func(t time.Time) int { return t.YearDay() }))
	register("DATE_WEEK", dateField(func(t time.Time) int { _, w := t.ISOWeek(); return w }))
	register("DATE_ADD", dateAdd)
	register("DATE_SUBTRACT", dateSubtract)
	register("DATE_DIFF", dateDiff)
	register("DATE_TRUNC", dateTrunc)
	register("DATE_FORMAT", dateFormat)
	register("DATE_COMPARE", dateCompare)
}

// parseTime accepts RFC3339, RFC3339Nano, a bare date, or a unix millis
// integer.
func parseTime(v value.Value) (time.Time, bool) {
	switch v.Kind() {
	case value.KindInt:
		return time.UnixMilli(v.AsInt()).UTC(), true
	case value.KindFloat:
		return time.UnixMilli(int64(v.AsFloat())).UTC(), true
	case value.KindString:
		s := v.AsString()
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func nowFn(a []value.Value) (value.Value, error) {
	if len(a) != 0 {
		return value.Null(), argErr("NOW", 0, len(a))
	}
	return value.String(time.Now().UTC().Format(time.RFC3339Nano)), nil
}

func dateISO8601(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("DATE_ISO8601", 1, len(a))
	}
	t, ok := parseTime(a[0])
	if !ok {
		return value.Null(), typeErr("DATE_ISO8601", a)
	}
	return value.String(t.Format(time.RFC3339Nano)), nil
}

func dateTimestamp(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("DATE_TIMESTAMP", 1, len(a))
	}
	t, ok := parseTime(a[0])
	if !ok {
		return value.Null(), typeErr("DATE_TIMESTAMP", a)
	}
	return value.Int(t.UnixMilli()), nil
}

func dateField(f func(time.Time) int) Func {
	return func(a []value.Value) (value.Value, error) {
		if len(a) != 1 {
			return value.Null(), argErr("DATE_*", 1, len(a))
		}
		t, ok := parseTime(a[0])
		if !ok {
			return value.Null(), typeErr("DATE_*", a)
		}
		return value.Int(int64(f(t))), nil
	}
}

// dateAdd does calendar-correct month/year arithmetic via addMonthsClamped
// rather than a fixed 30-day approximation (decided Open Question).
func dateAdd(a []value.Value) (value.Value, error) {
	if len(a) != 3 {
		return value.Null(), argErr("DATE_ADD", 3, len(a))
	}
	t, ok := parseTime(a[0])
	if !ok {
		return value.Null(), typeErr("DATE_ADD", a)
	}
	amount := int(a[1].ToFloat())
	unit := a[2].AsString()
	t2, err := addUnit(t, amount, unit)
	if err != nil {
		return value.Null(), err
	}
	return value.String(t2.Format(time.RFC3339Nano)), nil
}

func dateSubtract(a []value.Value) (value.Value, error) {
	if len(a) != 3 {
		return value.Null(), argErr("DATE_SUBTRACT", 3, len(a))
	}
	return dateAdd([]value.Value{a[0], value.Int(-int64(a[1].ToFloat())), a[2]})
}

// addUnit accepts both the single-letter unit tokens (y/m/w/d/h/i/s/ms,
// with i meaning minutes) and their long forms.
func addUnit(t time.Time, amount int, unit string) (time.Time, error) {
	switch unit {
	case "y", "years", "year":
		return addMonthsClamped(t, amount*12), nil
	case "m", "months", "month":
		return addMonthsClamped(t, amount), nil
	case "w", "weeks", "week":
		return t.AddDate(0, 0, amount*7), nil
	case "d", "days", "day":
		return t.AddDate(0, 0, amount), nil
	case "h", "hours", "hour":
		return t.Add(time.Duration(amount) * time.Hour), nil
	case "i", "minutes", "minute":
		return t.Add(time.Duration(amount) * time.Minute), nil
	case "s", "seconds", "second":
		return t.Add(time.Duration(amount) * time.Second), nil
	case "ms", "milliseconds", "millisecond":
		return t.Add(time.Duration(amount) * time.Millisecond), nil
	default:
		return t, fmt.Errorf("DATE_ADD: unknown unit %q", unit)
	}
}

// addMonthsClamped shifts t by whole months keeping the day-of-month,
// clamped to the target month's last day (Jan 31 + 1 month = Feb 28/29),
// instead of time.AddDate's overflow normalization.
func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()).AddDate(0, months, 0)
	day := t.Day()
	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateDiff(a []value.Value) (value.Value, error) {
	if len(a) < 2 || len(a) > 3 {
		return value.Null(), argErr("DATE_DIFF", 2, len(a))
	}
	t1, ok1 := parseTime(a[0])
	t2, ok2 := parseTime(a[1])
	if !ok1 || !ok2 {
		return value.Null(), typeErr("DATE_DIFF", a)
	}
	d := t2.Sub(t1)
	unit := "seconds"
	if len(a) == 3 {
		unit = a[2].AsString()
	}
	switch unit {
	case "y", "years", "year":
		return value.Float(d.Hours() / 24 / 365), nil
	case "m", "months", "month":
		return value.Float(d.Hours() / 24 / 30), nil
	case "w", "weeks", "week":
		return value.Float(d.Hours() / 24 / 7), nil
	case "d", "days", "day":
		return value.Float(d.Hours() / 24), nil
	case "h", "hours", "hour":
		return value.Float(d.Hours()), nil
	case "i", "minutes", "minute":
		return value.Float(d.Minutes()), nil
	case "s", "seconds", "second":
		return value.Float(d.Seconds()), nil
	case "ms", "milliseconds", "millisecond":
		return value.Float(float64(d.Milliseconds())), nil
	default:
		return value.Null(), fmt.Errorf("DATE_DIFF: unknown unit %q", unit)
	}
}

// dateTrunc truncates to the given unit, optionally in an IANA timezone
// (third argument) so day/month/year boundaries follow local midnight.
func dateTrunc(a []value.Value) (value.Value, error) {
	if len(a) < 2 || len(a) > 3 {
		return value.Null(), argErr("DATE_TRUNC", 2, len(a))
	}
	t, ok := parseTime(a[0])
	if !ok {
		return value.Null(), typeErr("DATE_TRUNC", a)
	}
	loc := time.UTC
	if len(a) == 3 {
		l, err := time.LoadLocation(a[2].AsString())
		if err != nil {
			return value.Null(), fmt.Errorf("DATE_TRUNC: unknown timezone %q", a[2].AsString())
		}
		loc = l
	}
	t = t.In(loc)
	unit := a[1].AsString()
	var trunc time.Time
	switch unit {
	case "year":
		trunc = time.Date(t.Year(), 1, 1, 0, 0, 0, 0, loc)
	case "month":
		trunc = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case "day":
		trunc = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	case "hour":
		trunc = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
	case "minute":
		trunc = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	default:
		trunc = t.Truncate(time.Second)
	}
	return value.String(trunc.Format(time.RFC3339Nano)), nil
}

func dateFormat(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("DATE_FORMAT", 2, len(a))
	}
	t, ok := parseTime(a[0])
	if !ok {
		return value.Null(), typeErr("DATE_FORMAT", a)
	}
	return value.String(t.Format(goLayout(a[1].AsString()))), nil
}

// goLayout converts the small set of strftime-style directives used by the
// DBQL surface into Go's reference-time layout.
func goLayout(pattern string) string {
	replacer := map[string]string{
		"%Y": "2006", "%m": "01", "%d": "02",
		"%H": "15", "%M": "04", "%S": "05",
	}
	out := pattern
	for k, v := range replacer {
		out = strings.ReplaceAll(out, k, v)
	}
	return out
}

func dateCompare(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("DATE_COMPARE", 2, len(a))
	}
	t1, ok1 := parseTime(a[0])
	t2, ok2 := parseTime(a[1])
	if !ok1 || !ok2 {
		return value.Null(), typeErr("DATE_COMPARE", a)
	}
	switch {
	case t1.Before(t2):
		return value.Int(-1), nil
	case t1.After(t2):
		return value.Int(1), nil
	default:
		return value.Int(0), nil
	}
}
