// Package ingest turns rows from a source file into stored observations.
//
// Each batch is handled start to finish before the next is pulled: temporal
// keys are parsed, geo codes are prefetched and resolved, rows are flattened
// and bulk inserted with content-hash deduplication. Row-level problems are
// counted and logged; store failures abort the run. Metrics are written on
// every exit.
package ingest

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/JonMunkholm/aggrada/internal/flatten"
	"github.com/JonMunkholm/aggrada/internal/logging"
	"github.com/JonMunkholm/aggrada/internal/outsource"
	"github.com/JonMunkholm/aggrada/internal/period"
	"github.com/JonMunkholm/aggrada/internal/source"
	"github.com/JonMunkholm/aggrada/internal/spatial"
	"github.com/JonMunkholm/aggrada/internal/store"
)

// Store is the persistence surface the pipeline writes through.
type Store interface {
	TemporalLookup
	SaveSpatial(ctx context.Context, e spatial.Entity) (int64, error)
	InsertObservations(ctx context.Context, obs []store.Observation) (int64, error)
}

// storeError marks a failure that makes the store unusable for the run.
type storeError struct {
	op  string
	err error
}

func (e *storeError) Error() string {
	return "store unavailable: " + e.op + ": " + e.err.Error()
}

func (e *storeError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.err}
}

func storeUnavailable(op string, err error) error {
	return &storeError{op: op, err: err}
}

// Pipeline runs ingestion jobs. It is safe to run several jobs at once; the
// only shared state is the resolver's cache.
type Pipeline struct {
	store      Store
	resolver   *spatial.Resolver
	providers  *outsource.Registry
	fanOut     int
	sink       MetricsWriter
	notFound   *NotFoundLog
	collectors *Collectors
	flattener  flatten.Options
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProviders enables outsourced lookups for jobs that name a provider.
func WithProviders(r *outsource.Registry) Option {
	return func(p *Pipeline) { p.providers = r }
}

// WithFanOut sets the outsourced lookup concurrency.
func WithFanOut(n int) Option {
	return func(p *Pipeline) { p.fanOut = outsource.ClampConcurrency(n) }
}

func WithMetricsSink(w MetricsWriter) Option {
	return func(p *Pipeline) { p.sink = w }
}

func WithNotFoundLog(l *NotFoundLog) Option {
	return func(p *Pipeline) { p.notFound = l }
}

func WithCollectors(c *Collectors) Option {
	return func(p *Pipeline) { p.collectors = c }
}

// WithClock replaces time.Now for metrics timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline. Without options it writes metrics and the
// not-found log to their default paths under .log/.
func New(st Store, resolver *spatial.Resolver, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:     st,
		resolver:  resolver,
		fanOut:    outsource.DefaultConcurrency,
		flattener: flatten.Options{MaxDepth: flatten.DefaultMaxDepth, Separator: flatten.DefaultSeparator},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sink == nil {
		p.sink = NewMetricsSink(DefaultMetricsPath)
	}
	if p.notFound == nil {
		p.notFound = NewNotFoundLog(DefaultNotFoundPath)
	}
	return p
}

// RunFile opens job.File and runs it.
func (p *Pipeline) RunFile(ctx context.Context, job Job) (Metrics, error) {
	if err := job.Validate(); err != nil {
		return Metrics{}, err
	}
	src, err := source.Open(job.File, job.BatchSize, job.Source)
	if err != nil {
		return Metrics{}, err
	}
	defer src.Close()
	return p.Run(ctx, job, src)
}

// Run ingests every batch from src.
//
// The returned metrics are complete even when err is non-nil. Batches
// persisted before a failure stay persisted.
func (p *Pipeline) Run(ctx context.Context, job Job, src source.Source) (m Metrics, err error) {
	if err := job.Validate(); err != nil {
		return Metrics{}, err
	}

	var provider outsource.Provider
	if job.Outsource != "" {
		if p.providers == nil {
			return Metrics{}, errors.Wrapf(ErrInvalidJob, "outsource provider %q is not configured", job.Outsource)
		}
		provider, err = p.providers.Provider(job.Outsource, job.Scope.AdminLevel)
		if err != nil {
			return Metrics{}, errors.Wrap(ErrInvalidJob, err.Error())
		}
	}

	m = Metrics{
		RunID:     uuid.NewString(),
		File:      job.File,
		FileSize:  src.Size(),
		StartTime: p.now(),
	}
	ctx = logging.ContextWithRunID(ctx, m.RunID)
	logger := logging.WithFields(ctx, "file", job.File)

	logger.Info("ingestion started",
		"file_size_bytes", m.FileSize,
		"source", job.Scope.Source,
		"admin_level", job.Scope.AdminLevel,
		"timezone", job.Timezone,
	)

	defer func() {
		m.finish(p.now(), err)
		if werr := p.sink.WriteMetrics(m); werr != nil {
			logger.Warn("failed to write metrics", "error", werr)
		}
		m.LogSummary(logger)
	}()

	for {
		batch, err := src.Next(ctx)
		if err == io.EOF {
			return m, nil
		}
		if err != nil {
			return m, errors.Wrap(err, "read batch")
		}

		start := p.now()
		bm, err := p.processBatch(ctx, logger, job, provider, batch)
		bm.Duration = p.now().Sub(start)
		m.add(bm)
		if p.collectors != nil {
			p.collectors.observeBatch(bm)
		}

		if err != nil {
			logger.Error("batch failed", "batch", batch.Number+1, "error", err)
			return m, err
		}
		args := []any{
			"batch", batch.Number + 1,
			"rows", bm.InputRows,
			"inserted", bm.InsertedRows,
			"duplicates", bm.DuplicateRows,
			"not_found", bm.NotFoundRows,
			"errors", bm.ErrorRows,
			"duration", bm.Duration,
		}
		if pct, ok := sourceProgress(src); ok {
			args = append(args, "progress_pct", pct)
		}
		logger.Info("batch processed", args...)
	}
}

// sourceProgress reports how much of the input src has consumed, for
// sources that track it.
func sourceProgress(src source.Source) (int, bool) {
	pr, ok := src.(interface{ Progress() int })
	if !ok || src.Size() <= 0 {
		return 0, false
	}
	return pr.Progress(), true
}

// pendingRow is a row whose period parsed and that awaits resolution.
type pendingRow struct {
	number int
	code   string
	period period.TimeRange
	data   map[string]any
}

func (p *Pipeline) processBatch(ctx context.Context, logger *slog.Logger, job Job, provider outsource.Provider, batch source.Batch) (BatchMetrics, error) {
	bm := BatchMetrics{
		Number:    batch.Number,
		InputRows: len(batch.Rows) + len(batch.Errors),
		ErrorRows: len(batch.Errors),
	}
	for _, re := range batch.Errors {
		logger.Warn("row could not be decoded", "line", re.Line, "error", re.Err)
	}

	// Temporal keys.
	pending := make([]pendingRow, 0, len(batch.Rows))
	var timeLines []string
	for i, row := range batch.Rows {
		number := batch.RowNumber(i)

		raw, err := temporalValue(ctx, job.Temporal, row, p.store)
		if err != nil {
			bm.ErrorRows++
			logger.Debug("temporal key unavailable", "row", number, "error", err)
			continue
		}
		r, err := period.Parse(raw, job.Timezone)
		if err != nil {
			bm.ErrorRows++
			timeLines = append(timeLines, TimeLine(job.File, number, raw))
			logger.Debug("period not recognised", "row", number, "time", raw, "error", err)
			continue
		}

		pending = append(pending, pendingRow{
			number: number,
			code:   strings.TrimSpace(stringify(row[job.GeoCodeKey])),
			period: r,
			data:   row,
		})
	}
	bm.ProcessedRows = len(pending)
	p.appendNotFound(logger, timeLines)

	// Spatial prefetch.
	codes := make([]string, len(pending))
	for i, pr := range pending {
		codes[i] = pr.code
	}
	idx, err := p.resolver.Prefetch(ctx, job.Scope, codes)
	if err != nil {
		return bm, storeUnavailable("prefetch", err)
	}
	defer idx.Release()

	// Flatten and resolve in row order.
	ids := make([]int64, len(pending))
	var unresolved []int
	for i := range pending {
		pending[i].data = p.flattener.Flatten(pending[i].data)

		id, err := p.resolver.Resolve(ctx, idx, pending[i].code, pending[i].period.Start)
		if err != nil {
			unresolved = append(unresolved, i)
			continue
		}
		ids[i] = id
	}

	if len(unresolved) > 0 && provider != nil {
		unresolved, err = p.outsource(ctx, logger, job, provider, idx, pending, unresolved, ids)
		if err != nil {
			return bm, err
		}
	}

	var spatialLines []string
	missing := make(map[int]bool, len(unresolved))
	for _, i := range unresolved {
		missing[i] = true
		spatialLines = append(spatialLines, SpatialLine(job.File, pending[i].number, pending[i].code))
	}
	bm.NotFoundRows = len(unresolved)
	p.appendNotFound(logger, spatialLines)

	// Persist.
	obs := make([]store.Observation, 0, len(pending)-len(unresolved))
	for i, pr := range pending {
		if missing[i] {
			continue
		}
		o, err := store.NewObservation(ids[i], pr.period, pr.data, job.File)
		if err != nil {
			bm.ErrorRows++
			logger.Warn("row could not be encoded", "row", pr.number, "error", err)
			continue
		}
		obs = append(obs, o)
	}
	if len(obs) == 0 {
		return bm, nil
	}

	inserted, err := p.store.InsertObservations(ctx, obs)
	if err != nil {
		return bm, storeUnavailable("insert", err)
	}
	bm.InsertedRows = inserted
	bm.DuplicateRows = int64(len(obs)) - inserted
	return bm, nil
}

// outsource resolves still-unknown codes through provider, persists the
// entities and remembers their ids. It returns the rows that remain
// unresolved.
func (p *Pipeline) outsource(ctx context.Context, logger *slog.Logger, job Job, provider outsource.Provider, idx *spatial.BatchIndex, pending []pendingRow, unresolved []int, ids []int64) ([]int, error) {
	var codes []string
	seen := make(map[string]bool)
	for _, i := range unresolved {
		c := pending[i].code
		if c != "" && !seen[c] {
			seen[c] = true
			codes = append(codes, c)
		}
	}
	if len(codes) == 0 {
		return unresolved, nil
	}

	found, err := outsource.ResolveAll(ctx, provider, codes, p.fanOut)
	if err != nil {
		return unresolved, err
	}

	resolved := make(map[string]int64, len(found))
	for code, e := range found {
		e.GeoCode = code
		e.Source = job.Scope.Source
		e.AdminLevel = job.Scope.AdminLevel
		id, err := p.store.SaveSpatial(ctx, e)
		if err != nil {
			return unresolved, storeUnavailable("save spatial", err)
		}
		p.resolver.Remember(idx, code, id)
		resolved[code] = id
	}
	logger.Info("outsourced lookups done",
		"provider", provider.Name(),
		"requested", len(codes),
		"found", len(resolved),
	)

	remaining := unresolved[:0]
	for _, i := range unresolved {
		if id, ok := resolved[pending[i].code]; ok {
			ids[i] = id
			continue
		}
		remaining = append(remaining, i)
	}
	return remaining, nil
}

func (p *Pipeline) appendNotFound(logger *slog.Logger, lines []string) {
	if len(lines) == 0 {
		return
	}
	if _, err := p.notFound.Append(lines...); err != nil {
		logger.Warn("failed to write not-found log", "path", p.notFound.Path(), "error", err)
	}
}
