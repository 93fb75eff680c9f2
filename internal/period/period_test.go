package period

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Parse: supported shapes
// =============================================================================

func TestParse_ZonedOutputs(t *testing.T) {
	tests := []struct {
		input, tz            string
		startLocal, endLocal string
		startUTC, endUTC     string
	}{
		{
			input: "2023", tz: "America/Sao_Paulo",
			startLocal: "2023-01-01 00:00:00", endLocal: "2023-12-31 23:59:59",
			startUTC: "2023-01-01T00:00:00.000-03:00", endUTC: "2023-12-31T23:59:59.999-03:00",
		},
		{
			input: "2023-04", tz: "America/New_York",
			startLocal: "2023-04-01 00:00:00", endLocal: "2023-04-30 23:59:59",
			startUTC: "2023-04-01T00:00:00.000-04:00", endUTC: "2023-04-30T23:59:59.999-04:00",
		},
		{
			input: "Q1 2023", tz: "UTC",
			startLocal: "2023-01-01 00:00:00", endLocal: "2023-03-31 23:59:59",
			startUTC: "2023-01-01T00:00:00.000Z", endUTC: "2023-03-31T23:59:59.999Z",
		},
		{
			input: "2023-04-15", tz: "America/Los_Angeles",
			startLocal: "2023-04-15 00:00:00", endLocal: "2023-04-15 23:59:59",
			startUTC: "2023-04-15T00:00:00.000-07:00", endUTC: "2023-04-15T23:59:59.999-07:00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.input+" "+tt.tz, func(t *testing.T) {
			got, err := Parse(tt.input, tt.tz)
			require.NoError(t, err)
			assert.Equal(t, tt.input, got.RawInput)
			assert.Equal(t, tt.tz, got.RawTimezone)
			assert.Equal(t, tt.startLocal, got.StartLocal)
			assert.Equal(t, tt.endLocal, got.EndLocal)
			assert.Equal(t, tt.startUTC, got.StartUTC)
			assert.Equal(t, tt.endUTC, got.EndUTC)
		})
	}
}

func TestParse_Shapes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		startUTC string
		endUTC   string
	}{
		{"bare year", "2023", "2023-01-01T00:00:00.000Z", "2023-12-31T23:59:59.999Z"},
		{"year with trailing dot", "2023.", "2023-01-01T00:00:00.000Z", "2023-12-31T23:59:59.999Z"},
		{"padded input", "  2023  ", "2023-01-01T00:00:00.000Z", "2023-12-31T23:59:59.999Z"},
		{"month with dash", "2024-02", "2024-02-01T00:00:00.000Z", "2024-02-29T23:59:59.999Z"},
		{"month with slash", "2023/02", "2023-02-01T00:00:00.000Z", "2023-02-28T23:59:59.999Z"},
		{"month with dot", "2023.11", "2023-11-01T00:00:00.000Z", "2023-11-30T23:59:59.999Z"},
		{"month with space", "2023 12", "2023-12-01T00:00:00.000Z", "2023-12-31T23:59:59.999Z"},
		{"concatenated month", "202401", "2024-01-01T00:00:00.000Z", "2024-01-31T23:59:59.999Z"},
		{"quarter", "Q2 2023", "2023-04-01T00:00:00.000Z", "2023-06-30T23:59:59.999Z"},
		{"quarter lowercase no space", "q32023", "2023-07-01T00:00:00.000Z", "2023-09-30T23:59:59.999Z"},
		{"quarter with dash", "Q4-2023", "2023-10-01T00:00:00.000Z", "2023-12-31T23:59:59.999Z"},
		{"quarter spelled out", "Quarter 2 2023", "2023-04-01T00:00:00.000Z", "2023-06-30T23:59:59.999Z"},
		{"quarter spelled out with Q", "QUARTER Q1 2023", "2023-01-01T00:00:00.000Z", "2023-03-31T23:59:59.999Z"},
		{"first semester", "S1 2023", "2023-01-01T00:00:00.000Z", "2023-06-30T23:59:59.999Z"},
		{"second semester", "Semester 2 2023", "2023-07-01T00:00:00.000Z", "2023-12-31T23:59:59.999Z"},
		{"day with dashes", "2023-04-15", "2023-04-15T00:00:00.000Z", "2023-04-15T23:59:59.999Z"},
		{"day with dots", "2023.04.15", "2023-04-15T00:00:00.000Z", "2023-04-15T23:59:59.999Z"},
		{"serial date", "45031", "2023-04-15T00:00:00.000Z", "2023-04-15T23:59:59.999Z"},
		{"month name first", "April 15, 2023", "2023-04-15T00:00:00.000Z", "2023-04-15T23:59:59.999Z"},
		{"abbreviated month name", "Apr 5, 2023", "2023-04-05T00:00:00.000Z", "2023-04-05T23:59:59.999Z"},
		{"day first", "15 April 2023", "2023-04-15T00:00:00.000Z", "2023-04-15T23:59:59.999Z"},
		{"timestamp", "2023-01-04T03:00:00.000Z", "2023-01-04T03:00:00.000Z", "2023-01-04T03:00:00.000Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input, "UTC")
			require.NoError(t, err)
			assert.Equal(t, tt.startUTC, got.StartUTC)
			assert.Equal(t, tt.endUTC, got.EndUTC)
			assert.False(t, got.End.Before(got.Start), "end before start")
		})
	}
}

func TestParse_TimestampKeepsInstant(t *testing.T) {
	got, err := Parse("2023-01-04T03:00:00.000Z", "America/Sao_Paulo")
	require.NoError(t, err)

	assert.Equal(t, "2023-01-04T00:00:00.000-03:00", got.StartUTC)
	assert.Equal(t, got.StartUTC, got.EndUTC)
	assert.Equal(t, "2023-01-04 00:00:00", got.StartLocal)
	assert.True(t, got.Start.Equal(got.End))
}

func TestParse_DefaultTimezone(t *testing.T) {
	for _, tz := range []string{"", "unknown"} {
		got, err := Parse("2023", tz)
		require.NoError(t, err)
		assert.Equal(t, "2023-01-01T00:00:00.000Z", got.StartUTC)
		assert.Equal(t, tz, got.RawTimezone)
	}
}

// =============================================================================
// Parse: failures
// =============================================================================

func TestParse_InvalidFormat(t *testing.T) {
	inputs := []string{
		"Invalid Input",
		"not a date",
		"Q5 2023",
		"April 31, 2023",
		"2023-",
		"2023 Semester 1",
		"2023-13",
		"2023-02-30",
		"Smarch 3, 2023",
		"",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input, "UTC")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFormat), "got %v", err)
		})
	}
}

func TestParse_InvalidFormatForAnyTimezone(t *testing.T) {
	for _, tz := range []string{"UTC", "America/Sao_Paulo", "Asia/Tokyo", ""} {
		_, err := Parse("not a date", tz)
		assert.True(t, errors.Is(err, ErrInvalidFormat), "tz %q: got %v", tz, err)
	}
}

func TestParse_InvalidTimezone(t *testing.T) {
	_, err := Parse("2023", "Invalid/Timezone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTimezone))
}

func TestParse_TimezoneCheckedFirst(t *testing.T) {
	_, err := Parse("not a date", "Invalid/Timezone")
	assert.True(t, errors.Is(err, ErrInvalidTimezone))
}

// =============================================================================
// Span
// =============================================================================

func TestSpan(t *testing.T) {
	from, err := Parse("2023-01", "UTC")
	require.NoError(t, err)
	to, err := Parse("2024-06", "UTC")
	require.NoError(t, err)

	got, err := Span(from, to)
	require.NoError(t, err)
	assert.Equal(t, "2023-01-01T00:00:00.000Z", got.StartUTC)
	assert.Equal(t, "2024-06-30T23:59:59.999Z", got.EndUTC)

	_, err = Span(to, from)
	assert.Error(t, err)

	other, err := Parse("2024-06", "America/Sao_Paulo")
	require.NoError(t, err)
	_, err = Span(from, other)
	assert.Error(t, err)
}
