package period

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// pattern pairs an input shape with the function that turns a match into a
// start/end pair in the origin location. ok is false when the shape matched
// but the values do not form a real calendar date.
type pattern struct {
	name      string
	re        *regexp.Regexp
	interpret func(m []string, loc *time.Location) (start, end time.Time, ok bool)
}

// excelEpoch is day zero of spreadsheet serial dates.
var excelEpoch = struct {
	year  int
	month time.Month
	day   int
}{1899, time.December, 30}

// Order matters: a full timestamp must win over a bare year, and YYYYMM must
// be tried before the five-digit serial date.
var patterns = []pattern{
	{
		name: "timestamp",
		re:   regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}(?:Z|[+-]\d{2}:\d{2}))$`),
		interpret: func(m []string, loc *time.Location) (time.Time, time.Time, bool) {
			t, err := time.Parse(zonedLayout, m[1])
			if err != nil {
				return time.Time{}, time.Time{}, false
			}
			t = t.In(loc)
			return t, t, true
		},
	},
	{
		name: "year",
		re:   regexp.MustCompile(`^(\d{4})\.?$`),
		interpret: func(m []string, loc *time.Location) (time.Time, time.Time, bool) {
			y := atoi(m[1])
			start := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
			return start, endOfDay(time.Date(y, time.December, 31, 0, 0, 0, 0, loc)), true
		},
	},
	{
		name:      "month",
		re:        regexp.MustCompile(`^(\d{4})[-/. ](\d{2})$`),
		interpret: monthRange,
	},
	{
		name:      "month",
		re:        regexp.MustCompile(`^(\d{4})(\d{2})$`),
		interpret: monthRange,
	},
	{
		name: "quarter",
		re:   regexp.MustCompile(`(?i)^(?:quarter\s+q?|q)([1-4])[-/. ]?(\d{4})$`),
		interpret: func(m []string, loc *time.Location) (time.Time, time.Time, bool) {
			q := atoi(m[1])
			return monthSpan(atoi(m[2]), time.Month((q-1)*3+1), 3, loc)
		},
	},
	{
		name: "semester",
		re:   regexp.MustCompile(`(?i)^(?:semester\s+s?|s)([12])[-/. ]?(\d{4})$`),
		interpret: func(m []string, loc *time.Location) (time.Time, time.Time, bool) {
			first := time.January
			if m[1] == "2" {
				first = time.July
			}
			return monthSpan(atoi(m[2]), first, 6, loc)
		},
	},
	{
		name: "date",
		re:   regexp.MustCompile(`^(\d{4})[-/. ](\d{2})[-/. ](\d{2})$`),
		interpret: func(m []string, loc *time.Location) (time.Time, time.Time, bool) {
			return dayRange(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]), loc)
		},
	},
	{
		name: "serial date",
		re:   regexp.MustCompile(`^(\d{5})$`),
		interpret: func(m []string, loc *time.Location) (time.Time, time.Time, bool) {
			start := time.Date(excelEpoch.year, excelEpoch.month, excelEpoch.day+atoi(m[1]), 0, 0, 0, 0, loc)
			return start, endOfDay(start), true
		},
	},
	{
		name: "date",
		re:   regexp.MustCompile(`(?i)^([a-z]{3,9})\s+(\d{1,2}),\s*(\d{4})$`),
		interpret: func(m []string, loc *time.Location) (time.Time, time.Time, bool) {
			month, ok := monthNames[strings.ToLower(m[1])]
			if !ok {
				return time.Time{}, time.Time{}, false
			}
			return dayRange(atoi(m[3]), month, atoi(m[2]), loc)
		},
	},
	{
		name: "date",
		re:   regexp.MustCompile(`(?i)^(\d{1,2})\s+([a-z]{3,9})\s+(\d{4})$`),
		interpret: func(m []string, loc *time.Location) (time.Time, time.Time, bool) {
			month, ok := monthNames[strings.ToLower(m[2])]
			if !ok {
				return time.Time{}, time.Time{}, false
			}
			return dayRange(atoi(m[3]), month, atoi(m[1]), loc)
		},
	},
}

var monthNames = func() map[string]time.Month {
	names := make(map[string]time.Month, 25)
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		names[full] = m
		names[full[:3]] = m
	}
	names["sept"] = time.September
	return names
}()

func monthRange(m []string, loc *time.Location) (time.Time, time.Time, bool) {
	return monthSpan(atoi(m[1]), time.Month(atoi(m[2])), 1, loc)
}

// monthSpan covers n whole months starting at first.
func monthSpan(y int, first time.Month, n int, loc *time.Location) (time.Time, time.Time, bool) {
	if first < time.January || first > time.December {
		return time.Time{}, time.Time{}, false
	}
	last := first + time.Month(n-1)
	start := time.Date(y, first, 1, 0, 0, 0, 0, loc)
	end := endOfDay(time.Date(y, last, lastDayOfMonth(y, last), 0, 0, 0, 0, loc))
	return start, end, true
}

func dayRange(y int, month time.Month, day int, loc *time.Location) (time.Time, time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > lastDayOfMonth(y, month) {
		return time.Time{}, time.Time{}, false
	}
	start := time.Date(y, month, day, 0, 0, 0, 0, loc)
	return start, endOfDay(start), true
}

// atoi is only called on regexp digit groups.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
