// Package period turns date-like strings into calendar-aligned time ranges
// and tiles those ranges into yearly, quarterly or monthly intervals.
package period

import (
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// DefaultTimezone is used when no timezone, or "unknown", is supplied.
const DefaultTimezone = "UTC"

const (
	localLayout = "2006-01-02 15:04:05"
	zonedLayout = "2006-01-02T15:04:05.000Z07:00"
)

var (
	// ErrInvalidFormat is returned when no supported pattern matches the input,
	// or when a pattern matches but names a date that does not exist.
	ErrInvalidFormat = errors.New("invalid period format")

	// ErrInvalidTimezone is returned when the timezone is not a known IANA zone.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrIncompleteRange is the error form of a refused interval generation.
	ErrIncompleteRange = errors.New("incomplete range for granularity")

	// ErrUnknownGranularity is returned by ParseGranularity.
	ErrUnknownGranularity = errors.New("unknown granularity")
)

// TimeRange is a parsed period in its origin timezone.
//
// StartLocal and EndLocal are wall-clock strings without an offset.
// StartUTC and EndUTC identify the same instants with millisecond precision
// and the origin zone's offset.
type TimeRange struct {
	RawInput    string    `json:"rawInput"`
	RawTimezone string    `json:"rawTimezone"`
	StartLocal  string    `json:"startLocal"`
	EndLocal    string    `json:"endLocal"`
	StartUTC    string    `json:"startUtc"`
	EndUTC      string    `json:"endUtc"`
	Start       time.Time `json:"-"`
	End         time.Time `json:"-"`
}

// Location returns the origin timezone of the range.
func (r TimeRange) Location() *time.Location {
	return r.Start.Location()
}

func newTimeRange(input, timezone string, start, end time.Time) TimeRange {
	return TimeRange{
		RawInput:    input,
		RawTimezone: timezone,
		StartLocal:  start.Format(localLayout),
		EndLocal:    end.Format(localLayout),
		StartUTC:    start.Format(zonedLayout),
		EndUTC:      end.Format(zonedLayout),
		Start:       start,
		End:         end,
	}
}

// LoadLocation resolves a timezone identifier. Empty and "unknown" map to UTC.
func LoadLocation(timezone string) (*time.Location, error) {
	name := strings.TrimSpace(timezone)
	if name == "" || name == "unknown" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidTimezone, "%q", timezone)
	}
	return loc, nil
}

// Parse converts a date-like string into a TimeRange in the given timezone.
//
// The timezone is validated before any pattern is tried. Patterns are tried
// from most to least specific and the first match wins.
func Parse(input, timezone string) (TimeRange, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return TimeRange{}, err
	}

	trimmed := strings.TrimSpace(input)
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		start, end, ok := p.interpret(m, loc)
		if !ok {
			return TimeRange{}, errors.Wrapf(ErrInvalidFormat, "%q is not a valid %s", input, p.name)
		}
		return newTimeRange(input, timezone, start, end), nil
	}

	return TimeRange{}, errors.Wrapf(ErrInvalidFormat, "%q", input)
}

// Span joins the start of from with the end of to.
// Both ranges must share a location and from must not start after to ends.
func Span(from, to TimeRange) (TimeRange, error) {
	if from.Location().String() != to.Location().String() {
		return TimeRange{}, errors.Errorf("span: timezone mismatch %s != %s", from.Location(), to.Location())
	}
	if from.Start.After(to.End) {
		return TimeRange{}, errors.Errorf("span: %s starts after %s ends", from.RawInput, to.RawInput)
	}
	raw := from.RawInput + " / " + to.RawInput
	return newTimeRange(raw, from.RawTimezone, from.Start, to.End), nil
}

// endOfDay returns the last millisecond of t's calendar day in t's location.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// lastDayOfMonth returns the final calendar day of month m in year y.
func lastDayOfMonth(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
