package models

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"
)

// Excel serial numbers outside this range are not treated as dates.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465 // 9999-12-31
)

var serialPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

var dayFirstLayouts = buildDayFirstLayouts()

func buildDayFirstLayouts() []string {
	dates := []string{"2.1.2006", "2/1/2006", "2-1-2006", "2006-1-2", "2006/1/2", "2006.1.2", "2.1.06", "2/1/06"}
	times := []string{"", " 15:04:05", " 15:04", "T15:04:05", " 15:04:05.000"}

	layouts := []string{time.RFC3339, time.RFC3339Nano}
	for _, d := range dates {
		for _, t := range times {
			layouts = append(layouts, d+t)
		}
	}
	return layouts
}

// CellString converts a heterogeneous cell value to its display string.
// Integral floats render without a fractional part.
func CellString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if !math.IsNaN(x) && !math.IsInf(x, 0) && x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
	case float32:
		return CellString(float64(x))
	case time.Time:
		return FormatDate(x)
	case decimal.Decimal:
		return x.String()
	}
	return strings.TrimSpace(cast.ToString(v))
}

// ParseAmount converts a cell value to a decimal. Anything that is not a
// number becomes zero.
func ParseAmount(v interface{}) decimal.Decimal {
	switch x := v.(type) {
	case nil, bool:
		return decimal.Zero
	case decimal.Decimal:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(x)
	case float32:
		return ParseAmount(float64(x))
	case string:
		return parseAmountString(x)
	}

	if i, err := cast.ToInt64E(v); err == nil {
		return decimal.NewFromInt(i)
	}
	return parseAmountString(cast.ToString(v))
}

// parseAmountString accepts plain decimals, thousands separators and a
// decimal comma. When both separators occur the last one is the decimal mark.
func parseAmountString(s string) decimal.Decimal {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseDate reads a cell value as a calendar date using the day-first
// convention. Excel serial numbers are accepted. The second result is false
// when the value could not be read; the date is then the zero time.
func ParseDate(v interface{}) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return truncateDay(x), true
	case float64, float32, int, int64, int32:
		return fromSerial(cast.ToFloat64(x))
	}

	s := CellString(v)
	if s == "" {
		return time.Time{}, false
	}

	if serialPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromSerial(f)
		}
	}

	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

func fromSerial(serial float64) (time.Time, bool) {
	if serial < minExcelSerial || serial > maxExcelSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	return truncateDay(t), true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
