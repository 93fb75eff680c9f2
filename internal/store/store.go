// Package store persists spatial entities and observation records.
//
// Two backends share one contract: Postgres for production and SQLite for
// local runs and tests. Both enforce at-most-once storage of an observation
// through a unique (source_file, content_hash) constraint and report how many
// rows a bulk insert actually wrote.
package store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/zeebo/blake3"

	"github.com/JonMunkholm/aggrada/internal/period"
	"github.com/JonMunkholm/aggrada/internal/spatial"
)

// Store is the full persistence surface used by the ingester.
type Store interface {
	spatial.Lookup

	SaveSpatial(ctx context.Context, e spatial.Entity) (int64, error)
	InsertObservations(ctx context.Context, obs []Observation) (int64, error)
	LookupTemporal(ctx context.Context, query string, args []any, attribute string) (string, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()
}

// Observation is one resolved row ready to be persisted. It is immutable once
// built by NewObservation.
type Observation struct {
	SpatialID   int64
	Range       period.TimeRange
	Data        map[string]any
	SourceFile  string
	ContentHash string
}

// NewObservation builds an Observation and computes its content hash.
func NewObservation(spatialID int64, r period.TimeRange, data map[string]any, sourceFile string) (Observation, error) {
	hash, err := ContentHash(data, sourceFile)
	if err != nil {
		return Observation{}, err
	}
	return Observation{
		SpatialID:   spatialID,
		Range:       r,
		Data:        data,
		SourceFile:  sourceFile,
		ContentHash: hash,
	}, nil
}

// ContentHash is the hex BLAKE3-256 digest of {"data": data, "file": file}.
// encoding/json sorts map keys, so equal data always yields the same digest.
func ContentHash(data map[string]any, file string) (string, error) {
	payload, err := json.Marshal(struct {
		Data map[string]any `json:"data"`
		File string         `json:"file"`
	}{Data: data, File: file})
	if err != nil {
		return "", errors.Wrap(err, "encode observation for hashing")
	}
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

const (
	utcLayout   = "2006-01-02T15:04:05.000Z07:00"
	localLayout = "2006-01-02 15:04:05.000"
)

// rangeColumns renders the UTC and local bounds of r for storage.
func rangeColumns(r period.TimeRange) (startUTC, endUTC, startLocal, endLocal string) {
	return r.Start.UTC().Format(utcLayout),
		r.End.UTC().Format(utcLayout),
		r.Start.Format(localLayout),
		r.End.Format(localLayout)
}

// formatTemporal renders a lookup result so the period parser can read it.
func formatTemporal(v any, dateOnly bool) string {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		if dateOnly {
			return t.Format("2006-01-02")
		}
		return t.UTC().Format(utcLayout)
	case []byte:
		return string(t)
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		var s string
		if json.Unmarshal(b, &s) == nil {
			return s
		}
		return string(b)
	}
}
