package ingest

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/aggrada/internal/period"
	"github.com/JonMunkholm/aggrada/internal/source"
	"github.com/JonMunkholm/aggrada/internal/spatial"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"nil", nil, ""},
		{"period", errors.Wrap(period.ErrInvalidFormat, "parse"), "PER001"},
		{"timezone", period.ErrInvalidTimezone, "PER002"},
		{"incomplete", errors.Wrap(period.ErrIncompleteRange, "generate"), "PER003"},
		{"granularity", errors.Wrap(period.ErrUnknownGranularity, `"weekly"`), "PER004"},
		{"spatial", spatial.ErrNotFound, "SPA001"},
		{"store", storeUnavailable("insert", errors.New("boom")), "STO001"},
		{"job", errors.Wrap(ErrInvalidJob, "file is required"), "JOB001"},
		{"source", errors.Wrap(source.ErrUnsupported, `".txt"`), "SRC001"},
		{"limiter", ErrTooManyRuns, "RUN001"},
		{"pattern connection", errors.New("dial tcp: Connection Refused"), "STO001"},
		{"pattern timezone", errors.New("remote: Invalid Timezone given"), "PER002"},
		{"unknown", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := MapError(tt.err)
			assert.Equal(t, tt.code, msg.Code)
			if tt.err != nil {
				assert.NotEmpty(t, msg.Message)
				assert.NotEmpty(t, msg.Action)
			}
		})
	}
}

func TestStoreErrorUnwrap(t *testing.T) {
	cause := errors.New("pool closed")
	err := storeUnavailable("prefetch", cause)

	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "store unavailable: prefetch: pool closed", err.Error())
}
