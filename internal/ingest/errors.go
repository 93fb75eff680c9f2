package ingest

// Error codes returned to CLI and HTTP callers.
//
//	PER001  period input not recognised
//	PER002  unknown timezone
//	PER003  range does not cover a whole period
//	PER004  granularity is not yearly, quarterly or monthly
//	SPA001  spatial entity not found
//	STO001  store unavailable; the run was aborted
//	JOB001  job definition is invalid
//	SRC001  input file type is not supported
//	RUN001  too many concurrent runs
//	ERR000  anything else; check the server logs
//
// Sentinels are matched first with errors.Is. Errors that crossed a process
// or library boundary without a sentinel fall back to case-insensitive
// substring patterns.

import (
	"strings"

	"github.com/go-faster/errors"

	"github.com/JonMunkholm/aggrada/internal/period"
	"github.com/JonMunkholm/aggrada/internal/source"
	"github.com/JonMunkholm/aggrada/internal/spatial"
)

var (
	// ErrStoreUnavailable wraps prefetch and insert failures. It aborts the run.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidJob is returned by Job.Validate.
	ErrInvalidJob = errors.New("invalid job")
)

// UserMessage is an error rendered for people, with a stable code.
type UserMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

type sentinelMessage struct {
	target error
	msg    UserMessage
}

var sentinelMessages = []sentinelMessage{
	{period.ErrInvalidFormat, UserMessage{
		Code:    "PER001",
		Message: "The period could not be recognised",
		Action:  "Use a year, month, quarter, semester, date or ISO timestamp",
	}},
	{period.ErrInvalidTimezone, UserMessage{
		Code:    "PER002",
		Message: "The timezone is not a known IANA zone",
		Action:  "Use a name such as America/Sao_Paulo or UTC",
	}},
	{period.ErrIncompleteRange, UserMessage{
		Code:    "PER003",
		Message: "The range does not start or end on a period boundary",
		Action:  "Widen the range or pick a finer granularity",
	}},
	{period.ErrUnknownGranularity, UserMessage{
		Code:    "PER004",
		Message: "The granularity is not supported",
		Action:  "Use yearly, quarterly or monthly",
	}},
	{spatial.ErrNotFound, UserMessage{
		Code:    "SPA001",
		Message: "The spatial entity was not found",
		Action:  "Load the spatial registry or enable an outsourced provider",
	}},
	{ErrStoreUnavailable, UserMessage{
		Code:    "STO001",
		Message: "The database is unavailable; the run was stopped",
		Action:  "Check the database and re-run; already stored rows are skipped",
	}},
	{ErrInvalidJob, UserMessage{
		Code:    "JOB001",
		Message: "The job definition is invalid",
		Action:  "Fix the job file and try again",
	}},
	{source.ErrUnsupported, UserMessage{
		Code:    "SRC001",
		Message: "The file type is not supported",
		Action:  "Use a .csv, .xlsx or .json file",
	}},
	{ErrTooManyRuns, UserMessage{
		Code:    "RUN001",
		Message: "Too many ingestion runs are in progress",
		Action:  "Wait a moment and try again",
	}},
}

type patternMessage struct {
	pattern string
	code    string
}

var patternMessages = []patternMessage{
	{"invalid period format", "PER001"},
	{"invalid timezone", "PER002"},
	{"incomplete range", "PER003"},
	{"unknown granularity", "PER004"},
	{"spatial index not found", "SPA001"},
	{"connection refused", "STO001"},
	{"store unavailable", "STO001"},
	{"invalid job", "JOB001"},
	{"unsupported file type", "SRC001"},
	{"too many concurrent", "RUN001"},
}

var defaultMessage = UserMessage{
	Code:    "ERR000",
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the server logs",
}

// MapError converts err to a UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.target) {
			return s.msg
		}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range patternMessages {
		if strings.Contains(lower, p.pattern) {
			return messageByCode(p.code)
		}
	}
	return defaultMessage
}

func messageByCode(code string) UserMessage {
	for _, s := range sentinelMessages {
		if s.msg.Code == code {
			return s.msg
		}
	}
	return defaultMessage
}
