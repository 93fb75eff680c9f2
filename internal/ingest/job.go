package ingest

import (
	"strings"

	"github.com/go-faster/errors"

	"github.com/JonMunkholm/aggrada/internal/period"
	"github.com/JonMunkholm/aggrada/internal/source"
	"github.com/JonMunkholm/aggrada/internal/spatial"
)

// DefaultSeparator joins the columns of a CompositeKey.
const DefaultSeparator = "-"

// Job describes one ingestion run.
type Job struct {
	File       string
	Timezone   string
	Scope      spatial.Scope
	GeoCodeKey string
	Temporal   TemporalKey

	// BatchSize overrides the per-extension default when > 0.
	BatchSize int
	// Outsource names a provider consulted for codes the store lacks.
	Outsource string
	// Source holds format-specific reader options.
	Source source.Options
}

// TemporalKey says where a row's period string comes from. Implementations
// are ColumnKey, CompositeKey, FixedKey and QueryKey.
type TemporalKey interface {
	temporalKey()
	validate() error
}

// ColumnKey reads the period from one column.
type ColumnKey struct {
	Column string
}

// CompositeKey joins several trimmed columns with Separator, e.g. a year and
// a month column become "2023-01".
type CompositeKey struct {
	Columns   []string
	Separator string
}

// FixedKey uses the same period for every row.
type FixedKey struct {
	Value string
}

// BindKind selects how a query argument is filled.
type BindKind string

const (
	BindColumn BindKind = "column"
	BindFixed  BindKind = "fixed"
)

// Bind is one positional argument of a QueryKey.
type Bind struct {
	Kind  BindKind
	Value string
}

// QueryKey runs Query against the store with Binds as arguments and reads
// Attribute from the first row.
type QueryKey struct {
	Query     string
	Attribute string
	Binds     []Bind
}

func (ColumnKey) temporalKey()    {}
func (CompositeKey) temporalKey() {}
func (FixedKey) temporalKey()     {}
func (QueryKey) temporalKey()     {}

func (k ColumnKey) validate() error {
	if strings.TrimSpace(k.Column) == "" {
		return errors.New("temporal column is empty")
	}
	return nil
}

func (k CompositeKey) validate() error {
	if len(k.Columns) == 0 {
		return errors.New("temporal columns are empty")
	}
	for i, c := range k.Columns {
		if strings.TrimSpace(c) == "" {
			return errors.Errorf("temporal column %d is empty", i)
		}
	}
	return nil
}

func (k FixedKey) validate() error {
	if strings.TrimSpace(k.Value) == "" {
		return errors.New("fixed temporal value is empty")
	}
	return nil
}

func (k QueryKey) validate() error {
	if strings.TrimSpace(k.Query) == "" {
		return errors.New("temporal query is empty")
	}
	if strings.TrimSpace(k.Attribute) == "" {
		return errors.New("temporal query attribute is empty")
	}
	for i, b := range k.Binds {
		switch b.Kind {
		case BindColumn, BindFixed:
		default:
			return errors.Errorf("bind %d: unknown kind %q", i, b.Kind)
		}
		if b.Kind == BindColumn && strings.TrimSpace(b.Value) == "" {
			return errors.Errorf("bind %d: column name is empty", i)
		}
	}
	return nil
}

// Validate checks the job and normalizes defaults. Errors wrap ErrInvalidJob.
func (j *Job) Validate() error {
	var problems []string

	if strings.TrimSpace(j.File) == "" {
		problems = append(problems, "file is required")
	}
	if strings.TrimSpace(j.GeoCodeKey) == "" {
		problems = append(problems, "geo code key is required")
	}
	if j.Scope.Source == "" {
		problems = append(problems, "spatial source is required")
	}
	if j.Scope.AdminLevel == "" {
		problems = append(problems, "spatial admin level is required")
	} else if _, ok := spatial.Rank(j.Scope.AdminLevel); !ok {
		problems = append(problems, "unknown admin level "+j.Scope.AdminLevel)
	}
	if _, err := period.LoadLocation(j.Timezone); err != nil {
		problems = append(problems, err.Error())
	}
	if j.BatchSize < 0 {
		problems = append(problems, "batch size must not be negative")
	}

	if j.Temporal == nil {
		problems = append(problems, "exactly one temporal key is required")
	} else if err := j.Temporal.validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return errors.Wrap(ErrInvalidJob, strings.Join(problems, "; "))
	}

	if j.Timezone == "" {
		j.Timezone = period.DefaultTimezone
	}
	if ck, ok := j.Temporal.(CompositeKey); ok && ck.Separator == "" {
		ck.Separator = DefaultSeparator
		j.Temporal = ck
	}
	return nil
}
