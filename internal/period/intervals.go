package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// Granularity is the period size used to tile a range.
type Granularity int

const (
	Yearly Granularity = iota + 1
	Quarterly
	Monthly
)

// String returns the lowercase name used in job files and query strings.
func (g Granularity) String() string {
	switch g {
	case Yearly:
		return "yearly"
	case Quarterly:
		return "quarterly"
	case Monthly:
		return "monthly"
	default:
		return "granularity(" + strconv.Itoa(int(g)) + ")"
	}
}

// ParseGranularity accepts "yearly", "quarterly" or "monthly" in any case.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yearly", "year":
		return Yearly, nil
	case "quarterly", "quarter":
		return Quarterly, nil
	case "monthly", "month":
		return Monthly, nil
	}
	return 0, errors.Wrapf(ErrUnknownGranularity, "%q", s)
}

// Interval is one calendar-aligned piece of a generated sequence.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// Generate tiles r into intervals of granularity g.
//
// It returns nil when neither endpoint sits on a period boundary. Otherwise
// it walks forward period by period from the start, clipping the first
// interval to the supplied start and stopping before any period that would
// run past the end.
func Generate(r TimeRange, g Granularity) []Interval {
	start := startOfDay(r.Start)
	end := endOfDay(r.End)

	if !isFirstDayOfPeriod(start, g) && !isLastDayOfPeriod(end, g) {
		return nil
	}

	var out []Interval
	for current := start; !current.After(end); {
		periodEnd := lastDayOfPeriod(current, g)
		if periodEnd.After(end) {
			break
		}
		out = append(out, Interval{
			Start: current,
			End:   periodEnd,
			Label: label(current, g),
		})
		current = nextPeriodStart(current, g)
	}
	return out
}

// Between parses from and to in timezone, spans them and tiles the result.
// A refused range yields ErrIncompleteRange.
func Between(from, to, timezone string, g Granularity) ([]Interval, error) {
	a, err := Parse(from, timezone)
	if err != nil {
		return nil, err
	}
	b, err := Parse(to, timezone)
	if err != nil {
		return nil, err
	}
	r, err := Span(a, b)
	if err != nil {
		return nil, err
	}
	out := Generate(r, g)
	if out == nil {
		return nil, errors.Wrapf(ErrIncompleteRange, "%s for %s", r.RawInput, g)
	}
	return out, nil
}

// IsComplete reports whether Generate would accept r for g.
func IsComplete(r TimeRange, g Granularity) bool {
	return isFirstDayOfPeriod(startOfDay(r.Start), g) || isLastDayOfPeriod(endOfDay(r.End), g)
}

func quarterStartMonth(m time.Month) time.Month {
	return time.Month((int(m)-1)/3*3 + 1)
}

func isFirstDayOfPeriod(t time.Time, g Granularity) bool {
	_, m, d := t.Date()
	if d != 1 {
		return false
	}
	switch g {
	case Yearly:
		return m == time.January
	case Quarterly:
		return m == quarterStartMonth(m)
	case Monthly:
		return true
	}
	return false
}

func isLastDayOfPeriod(t time.Time, g Granularity) bool {
	y, m, d := t.Date()
	if d != lastDayOfMonth(y, m) {
		return false
	}
	switch g {
	case Yearly:
		return m == time.December
	case Quarterly:
		return m == quarterStartMonth(m)+2
	case Monthly:
		return true
	}
	return false
}

func lastDayOfPeriod(t time.Time, g Granularity) time.Time {
	y, m, _ := t.Date()
	var last time.Month
	switch g {
	case Yearly:
		last = time.December
	case Quarterly:
		last = quarterStartMonth(m) + 2
	default:
		last = m
	}
	return endOfDay(time.Date(y, last, lastDayOfMonth(y, last), 0, 0, 0, 0, t.Location()))
}

func nextPeriodStart(t time.Time, g Granularity) time.Time {
	y, m, _ := t.Date()
	switch g {
	case Yearly:
		return time.Date(y+1, time.January, 1, 0, 0, 0, 0, t.Location())
	case Quarterly:
		return time.Date(y, quarterStartMonth(m)+3, 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location())
	}
}

func label(t time.Time, g Granularity) string {
	y, m, _ := t.Date()
	switch g {
	case Yearly:
		return strconv.Itoa(y)
	case Quarterly:
		return fmt.Sprintf("Q%d %d", (int(m)-1)/3+1, y)
	default:
		return fmt.Sprintf("%d-%02d", y, int(m))
	}
}
