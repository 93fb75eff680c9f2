package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/aggrada/internal/ingest"
	"github.com/JonMunkholm/aggrada/internal/source"
	"github.com/JonMunkholm/aggrada/internal/spatial"
)

// JobFile is the YAML form of an ingestion job.
//
//	file: data/pib_municipios.csv
//	timezone: America/Sao_Paulo
//	spatial:
//	  source: ibge
//	  admin_level: city
//	geo_code_key: cod_ibge
//	temporal:
//	  columns: [ano, mes]
//	outsource: ibge
//
// The temporal block takes exactly one of column, columns (with an optional
// separator), value, or query (with attribute and binds).
type JobFile struct {
	File       string        `yaml:"file"`
	Timezone   string        `yaml:"timezone"`
	Spatial    spatial.Scope `yaml:"spatial"`
	GeoCodeKey string        `yaml:"geo_code_key"`
	Temporal   TemporalBlock `yaml:"temporal"`
	BatchSize  int           `yaml:"batch_size"`
	Outsource  string        `yaml:"outsource"`
	Sheet      string        `yaml:"sheet"`
	JSONPath   string        `yaml:"json_path"`
}

// TemporalBlock mirrors ingest.TemporalKey.
type TemporalBlock struct {
	Column    string      `yaml:"column"`
	Columns   []string    `yaml:"columns"`
	Separator string      `yaml:"separator"`
	Value     string      `yaml:"value"`
	Query     string      `yaml:"query"`
	Attribute string      `yaml:"attribute"`
	Binds     []BindBlock `yaml:"binds"`
}

// BindBlock is a query argument: {column: name} or {fixed: value}.
type BindBlock struct {
	Column *string `yaml:"column"`
	Fixed  *string `yaml:"fixed"`
}

// LoadJob reads and converts a job file. See ParseJob for defaults.
func LoadJob(path string, defaults *IngestConfig) (ingest.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ingest.Job{}, errors.Wrap(err, "read job file")
	}
	job, err := ParseJob(data, defaults)
	if err != nil {
		return ingest.Job{}, errors.Wrapf(err, "job file %s", path)
	}
	return job, nil
}

// ParseJob decodes a YAML or JSON job. Unknown keys are rejected. Fields
// the job leaves empty are taken from defaults when it is non-nil. The
// returned job has been validated.
func ParseJob(data []byte, defaults *IngestConfig) (ingest.Job, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f JobFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return ingest.Job{}, errors.Wrap(ingest.ErrInvalidJob, "job is empty")
		}
		return ingest.Job{}, errors.Wrap(ingest.ErrInvalidJob, err.Error())
	}

	job, err := f.Job()
	if err != nil {
		return ingest.Job{}, err
	}
	if defaults != nil {
		defaults.Apply(&job)
	}
	if err := job.Validate(); err != nil {
		return ingest.Job{}, err
	}
	return job, nil
}

// Job converts f. It checks the temporal block shape; the rest is left to
// ingest.Job.Validate.
func (f JobFile) Job() (ingest.Job, error) {
	key, err := f.Temporal.key()
	if err != nil {
		return ingest.Job{}, errors.Wrap(ingest.ErrInvalidJob, err.Error())
	}
	return ingest.Job{
		File:       strings.TrimSpace(f.File),
		Timezone:   strings.TrimSpace(f.Timezone),
		Scope:      f.Spatial,
		GeoCodeKey: f.GeoCodeKey,
		Temporal:   key,
		BatchSize:  f.BatchSize,
		Outsource:  f.Outsource,
		Source:     source.Options{Sheet: f.Sheet, Path: f.JSONPath},
	}, nil
}

func (t TemporalBlock) key() (ingest.TemporalKey, error) {
	var set []string
	if t.Column != "" {
		set = append(set, "column")
	}
	if len(t.Columns) > 0 {
		set = append(set, "columns")
	}
	if t.Value != "" {
		set = append(set, "value")
	}
	if t.Query != "" {
		set = append(set, "query")
	}
	if len(set) != 1 {
		return nil, errors.Errorf("temporal block needs exactly one of column, columns, value or query, got %d", len(set))
	}

	switch set[0] {
	case "column":
		return ingest.ColumnKey{Column: t.Column}, nil
	case "columns":
		return ingest.CompositeKey{Columns: t.Columns, Separator: t.Separator}, nil
	case "value":
		return ingest.FixedKey{Value: t.Value}, nil
	}

	binds := make([]ingest.Bind, len(t.Binds))
	for i, b := range t.Binds {
		switch {
		case b.Column != nil && b.Fixed == nil:
			binds[i] = ingest.Bind{Kind: ingest.BindColumn, Value: *b.Column}
		case b.Fixed != nil && b.Column == nil:
			binds[i] = ingest.Bind{Kind: ingest.BindFixed, Value: *b.Fixed}
		default:
			return nil, errors.Errorf("bind %d needs exactly one of column or fixed", i)
		}
	}
	return ingest.QueryKey{Query: t.Query, Attribute: t.Attribute, Binds: binds}, nil
}

// Restrict applies the limits on jobs received from remote callers. The
// file is resolved inside DataDir (relative paths are relative to it) and
// query-derived periods are refused unless AllowQueryJobs is set.
func (c *IngestConfig) Restrict(job *ingest.Job) error {
	if _, ok := job.Temporal.(ingest.QueryKey); ok && !c.AllowQueryJobs {
		return errors.Wrap(ingest.ErrInvalidJob, "temporal queries are disabled for submitted jobs")
	}

	root, err := filepath.Abs(c.DataDir)
	if err != nil {
		return errors.Wrap(err, "resolve data directory")
	}
	path := job.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.Wrapf(ingest.ErrInvalidJob, "file %q is outside the data directory", job.File)
	}
	job.File = path
	return nil
}

// Apply fills job fields left empty with process defaults.
func (c *IngestConfig) Apply(job *ingest.Job) {
	if job.Timezone == "" {
		job.Timezone = c.Timezone
	}
	if job.BatchSize == 0 {
		job.BatchSize = c.BatchSize
	}
}
