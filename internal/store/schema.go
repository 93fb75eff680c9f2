package store

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS aggrada_spatials (
	id          BIGSERIAL PRIMARY KEY,
	geo_code    TEXT NOT NULL,
	source      TEXT NOT NULL,
	admin_level TEXT NOT NULL,
	start_date  DATE,
	metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
	geometry    geometry(Geometry, 4326),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS aggrada_spatials_lookup_idx
	ON aggrada_spatials (source, admin_level, geo_code, start_date DESC);

CREATE INDEX IF NOT EXISTS aggrada_spatials_prefix_idx
	ON aggrada_spatials (geo_code text_pattern_ops);

CREATE TABLE IF NOT EXISTS aggrada_observations (
	id                    BIGSERIAL PRIMARY KEY,
	aggrada_spatials_id   BIGINT NOT NULL REFERENCES aggrada_spatials (id),
	temporal_range        TSTZRANGE NOT NULL,
	temporal_range_local  TSRANGE NOT NULL,
	data                  JSONB NOT NULL,
	source_file           TEXT NOT NULL,
	content_hash          TEXT NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source_file, content_hash)
);

CREATE INDEX IF NOT EXISTS aggrada_observations_range_idx
	ON aggrada_observations USING GIST (temporal_range);

CREATE INDEX IF NOT EXISTS aggrada_observations_range_local_idx
	ON aggrada_observations USING GIST (temporal_range_local);

CREATE INDEX IF NOT EXISTS aggrada_observations_spatial_idx
	ON aggrada_observations (aggrada_spatials_id);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS aggrada_spatials (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	geo_code    TEXT NOT NULL,
	source      TEXT NOT NULL,
	admin_level TEXT NOT NULL,
	start_date  TEXT,
	metadata    TEXT NOT NULL DEFAULT '{}',
	lat         REAL,
	lon         REAL,
	created_at  TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS aggrada_spatials_lookup_idx
	ON aggrada_spatials (source, admin_level, geo_code, start_date);

CREATE TABLE IF NOT EXISTS aggrada_observations (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	aggrada_spatials_id  INTEGER NOT NULL REFERENCES aggrada_spatials (id),
	start_utc            TEXT NOT NULL,
	end_utc              TEXT NOT NULL,
	start_local          TEXT NOT NULL,
	end_local            TEXT NOT NULL,
	data                 TEXT NOT NULL,
	source_file          TEXT NOT NULL,
	content_hash         TEXT NOT NULL,
	created_at           TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (source_file, content_hash)
);

CREATE INDEX IF NOT EXISTS aggrada_observations_range_idx
	ON aggrada_observations (start_utc, end_utc);
`
