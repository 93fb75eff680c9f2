package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/aggrada/internal/spatial"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// PoolConfig sizes the Postgres connection pool.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// OpenPostgres connects a pool to url and verifies it with a ping.
func OpenPostgres(ctx context.Context, url string, pc PoolConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}
	if pc.MaxConns > 0 {
		poolConfig.MaxConns = int32(pc.MaxConns)
	}
	if pc.MinConns > 0 {
		poolConfig.MinConns = int32(pc.MinConns)
	}
	if pc.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}

	slog.Info("connected to database", "database", poolConfig.ConnConfig.Database)
	return &Postgres{pool: pool, db: pool}, nil
}

// Postgres is the production store.
type Postgres struct {
	pool *pgxpool.Pool
	db   DBTX
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, db: pool}
}

// Migrate creates the PostGIS extension, tables and indexes.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, postgresSchema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// FindSpatialIDs returns the newest entity id per code in one query.
func (p *Postgres) FindSpatialIDs(ctx context.Context, scope spatial.Scope, codes []string) (map[string]int64, error) {
	out := make(map[string]int64, len(codes))
	if len(codes) == 0 {
		return out, nil
	}

	rows, err := p.db.Query(ctx, `
		SELECT DISTINCT ON (geo_code) geo_code, id
		FROM aggrada_spatials
		WHERE geo_code = ANY($1) AND admin_level = $2 AND source = $3
		ORDER BY geo_code, start_date DESC NULLS LAST, id DESC`,
		codes, scope.AdminLevel, scope.Source)
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
		out[code] = id
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate spatial ids")
	}
	return out, nil
}

// FindSpatialByPrefix returns the most recent entity whose code starts with
// prefix and that was valid on or before notAfter.
func (p *Postgres) FindSpatialByPrefix(ctx context.Context, scope spatial.Scope, prefix string, notAfter time.Time) (int64, bool, error) {
	var id int64
	err := p.db.QueryRow(ctx, `
		SELECT id
		FROM aggrada_spatials
		WHERE source = $1 AND admin_level = $2
		  AND geo_code LIKE $3 ESCAPE '\'
		  AND start_date <= $4
		ORDER BY start_date DESC, id DESC
		LIMIT 1`,
		scope.Source, scope.AdminLevel, likePrefix(prefix), notAfter).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "query spatial by prefix")
	}
	return id, true, nil
}

// SaveSpatial returns the id of the entity matching e's identity, inserting
// it first if needed.
func (p *Postgres) SaveSpatial(ctx context.Context, e spatial.Entity) (int64, error) {
	start := pgtype.Date{Time: e.StartDate, Valid: !e.StartDate.IsZero()}

	var id int64
	err := p.db.QueryRow(ctx, `
		SELECT id FROM aggrada_spatials
		WHERE geo_code = $1 AND source = $2 AND admin_level = $3
		  AND start_date IS NOT DISTINCT FROM $4
		ORDER BY id DESC
		LIMIT 1`,
		e.GeoCode, e.Source, e.AdminLevel, start).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, errors.Wrap(err, "find spatial")
	}

	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return 0, err
	}

	err = p.db.QueryRow(ctx, `
		INSERT INTO aggrada_spatials (geo_code, source, admin_level, start_date, metadata, geometry)
		VALUES ($1, $2, $3, $4, $5::jsonb,
			CASE WHEN $6::float8 IS NULL OR $7::float8 IS NULL THEN NULL
			     ELSE ST_SetSRID(ST_MakePoint($7::float8, $6::float8), 4326) END)
		RETURNING id`,
		e.GeoCode, e.Source, e.AdminLevel, start, meta, e.Lat, e.Lon).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert spatial")
	}
	return id, nil
}

// InsertObservations writes obs in a single statement and returns the number
// of rows actually inserted. Rows whose (source_file, content_hash) already
// exist are skipped.
func (p *Postgres) InsertObservations(ctx context.Context, obs []Observation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	n := len(obs)
	var (
		spatialIDs  = make([]int64, n)
		startUTC    = make([]string, n)
		endUTC      = make([]string, n)
		startLocal  = make([]string, n)
		endLocal    = make([]string, n)
		data        = make([]string, n)
		sourceFiles = make([]string, n)
		hashes      = make([]string, n)
	)
	for i, o := range obs {
		payload, err := json.Marshal(o.Data)
		if err != nil {
			return 0, errors.Wrapf(err, "encode observation %d", i)
		}
		spatialIDs[i] = o.SpatialID
		startUTC[i], endUTC[i], startLocal[i], endLocal[i] = rangeColumns(o.Range)
		data[i] = string(payload)
		sourceFiles[i] = o.SourceFile
		hashes[i] = o.ContentHash
	}

	tag, err := p.db.Exec(ctx, `
		INSERT INTO aggrada_observations
			(aggrada_spatials_id, temporal_range, temporal_range_local, data, source_file, content_hash)
		SELECT t.spatial_id,
		       tstzrange(t.start_utc::timestamptz, t.end_utc::timestamptz, '[]'),
		       tsrange(t.start_local::timestamp, t.end_local::timestamp, '[]'),
		       t.data::jsonb,
		       t.source_file,
		       t.content_hash
		FROM unnest($1::bigint[], $2::text[], $3::text[], $4::text[], $5::text[], $6::text[], $7::text[], $8::text[])
			AS t(spatial_id, start_utc, end_utc, start_local, end_local, data, source_file, content_hash)
		ON CONFLICT (source_file, content_hash) DO NOTHING`,
		spatialIDs, startUTC, endUTC, startLocal, endLocal, data, sourceFiles, hashes)
	if err != nil {
		return 0, errors.Wrap(err, "insert observations")
	}
	return tag.RowsAffected(), nil
}

// LookupTemporal runs a user-supplied query and returns attribute from its
// first row, formatted for the period parser. No rows yields "".
func (p *Postgres) LookupTemporal(ctx context.Context, query string, args []any, attribute string) (string, error) {
	rows, err := p.db.Query(ctx, query, args...)
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

	values, err := rows.Values()
	if err != nil {
		return "", errors.Wrap(err, "read temporal row")
	}
	for i, fd := range rows.FieldDescriptions() {
		if fd.Name != attribute {
			continue
		}
		return formatTemporal(values[i], fd.DataTypeOID == pgtype.DateOID), nil
	}
	return "", errors.Errorf("temporal query has no column %q", attribute)
}

func encodeMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", errors.Wrap(err, "encode spatial metadata")
	}
	return string(b), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
