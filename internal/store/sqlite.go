package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/aggrada/internal/spatial"
)

const sqliteDateLayout = "2006-01-02"

// SQLite is a single-file store for local runs and tests. It has no
// geometry column; coordinates are kept as plain lat/lon.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path. Use ":memory:" for a
// throwaway database.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	// One connection keeps :memory: databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "apply %q", pragma)
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() {
	_ = s.db.Close()
}

func (s *SQLite) FindSpatialIDs(ctx context.Context, scope spatial.Scope, codes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(codes))
	if len(codes) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(codes)+2)
	args = append(args, scope.AdminLevel, scope.Source)
	for _, c := range codes {
		args = append(args, c)
	}

	// NULL start dates sort last under DESC, so the first row per code is
	// the newest dated entity.
	rows, err := s.db.QueryContext(ctx, `
		SELECT geo_code, id
		FROM aggrada_spatials
		WHERE admin_level = ? AND source = ? AND geo_code IN (`+placeholders(len(codes))+`)
		ORDER BY geo_code, start_date DESC, id DESC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query spatial ids")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			code string
			id   int64
		)
		if err := rows.Scan(&code, &id); err != nil {
			return nil, errors.Wrap(err, "scan spatial id")
		}
		if _, ok := out[code]; !ok {
			out[code] = id
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate spatial ids")
	}
	return out, nil
}

func (s *SQLite) FindSpatialByPrefix(ctx context.Context, scope spatial.Scope, prefix string, notAfter time.Time) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id
		FROM aggrada_spatials
		WHERE source = ? AND admin_level = ?
		  AND substr(geo_code, 1, ?) = ?
		  AND start_date IS NOT NULL AND start_date <= ?
		ORDER BY start_date DESC, id DESC
		LIMIT 1`,
		scope.Source, scope.AdminLevel, len(prefix), prefix, notAfter.Format(sqliteDateLayout)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "query spatial by prefix")
	}
	return id, true, nil
}

func (s *SQLite) SaveSpatial(ctx context.Context, e spatial.Entity) (int64, error) {
	var start sql.NullString
	if !e.StartDate.IsZero() {
		start = sql.NullString{String: e.StartDate.Format(sqliteDateLayout), Valid: true}
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM aggrada_spatials
		WHERE geo_code = ? AND source = ? AND admin_level = ? AND start_date IS ?
		ORDER BY id DESC
		LIMIT 1`,
		e.GeoCode, e.Source, e.AdminLevel, start).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrap(err, "find spatial")
	}

	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO aggrada_spatials (geo_code, source, admin_level, start_date, metadata, lat, lon)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.GeoCode, e.Source, e.AdminLevel, start, meta, nullFloat(e.Lat), nullFloat(e.Lon))
	if err != nil {
		return 0, errors.Wrap(err, "insert spatial")
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "read spatial id")
	}
	return id, nil
}

// InsertObservations writes obs in one transaction and returns the number of
// rows actually inserted.
func (s *SQLite) InsertObservations(ctx context.Context, obs []Observation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO aggrada_observations
			(aggrada_spatials_id, start_utc, end_utc, start_local, end_local, data, source_file, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_file, content_hash) DO NOTHING`)
	if err != nil {
		return 0, errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	var inserted int64
	for i, o := range obs {
		payload, err := json.Marshal(o.Data)
		if err != nil {
			return 0, errors.Wrapf(err, "encode observation %d", i)
		}
		startUTC, endUTC, startLocal, endLocal := rangeColumns(o.Range)
		res, err := stmt.ExecContext(ctx, o.SpatialID, startUTC, endUTC, startLocal, endLocal,
			string(payload), o.SourceFile, o.ContentHash)
		if err != nil {
			return 0, errors.Wrapf(err, "insert observation %d", i)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, errors.Wrap(err, "rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit observations")
	}
	return inserted, nil
}

func (s *SQLite) LookupTemporal(ctx context.Context, query string, args []any, attribute string) (string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return "", errors.Wrap(err, "temporal query")
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", errors.Wrap(err, "temporal query")
		}
		return "", nil
	}

	cols, err := rows.Columns()
	if err != nil {
		return "", errors.Wrap(err, "read temporal columns")
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return "", errors.Wrap(err, "read temporal row")
	}
	for i, c := range cols {
		if c == attribute {
			return formatTemporal(values[i], false), nil
		}
	}
	return "", errors.Errorf("temporal query has no column %q", attribute)
}

// ObservationCount returns the number of stored observations.
func (s *SQLite) ObservationCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM aggrada_observations`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count observations")
	}
	return n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
