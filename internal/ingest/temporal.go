package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"github.com/JonMunkholm/aggrada/internal/source"
)

var (
	errMissingTemporal = errors.New("temporal key missing")
	errEmptyTemporal   = errors.New("temporal key empty")
)

// TemporalLookup runs a parametrized query and returns one attribute of the
// first row, or "" when there are no rows.
type TemporalLookup interface {
	LookupTemporal(ctx context.Context, query string, args []any, attribute string) (string, error)
}

// temporalValue derives the raw period string for row.
func temporalValue(ctx context.Context, key TemporalKey, row source.Row, lookup TemporalLookup) (string, error) {
	switch k := key.(type) {
	case ColumnKey:
		return column(row, k.Column)

	case CompositeKey:
		parts := make([]string, len(k.Columns))
		for i, c := range k.Columns {
			v, err := column(row, c)
			if err != nil {
				return "", err
			}
			parts[i] = v
		}
		return strings.Join(parts, k.Separator), nil

	case FixedKey:
		return strings.TrimSpace(k.Value), nil

	case QueryKey:
		args := make([]any, len(k.Binds))
		for i, b := range k.Binds {
			if b.Kind == BindFixed {
				args[i] = b.Value
				continue
			}
			v, err := column(row, b.Value)
			if err != nil {
				return "", err
			}
			args[i] = v
		}
		v, err := lookup.LookupTemporal(ctx, k.Query, args, k.Attribute)
		if err != nil {
			return "", err
		}
		if v = strings.TrimSpace(v); v == "" {
			return "", errors.Wrap(errEmptyTemporal, "query returned no value")
		}
		return v, nil
	}
	return "", errors.Errorf("unsupported temporal key %T", key)
}

func column(row source.Row, name string) (string, error) {
	raw, ok := row[name]
	if !ok || raw == nil {
		return "", errors.Wrapf(errMissingTemporal, "column %q", name)
	}
	v := strings.TrimSpace(stringify(raw))
	if v == "" {
		return "", errors.Wrapf(errEmptyTemporal, "column %q", name)
	}
	return v, nil
}

// stringify renders cell values the way they appear in the file. Whole
// floats from JSON drop their fraction so 2023 stays "2023".
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}
