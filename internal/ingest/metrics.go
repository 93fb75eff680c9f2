package ingest

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// DefaultMetricsPath is where run metrics are appended as JSON lines.
const DefaultMetricsPath = ".log/performance_metrics.jsonl"

// Run outcomes.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Metrics summarizes one run. Counters are cumulative across batches.
type Metrics struct {
	RunID    string `json:"runId"`
	File     string `json:"file"`
	FileSize int64  `json:"fileSize"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`

	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	DurationMs int64     `json:"durationMs"`

	TotalRows     int   `json:"totalRows"`
	ProcessedRows int   `json:"processedRows"`
	InsertedRows  int64 `json:"insertedRows"`
	DuplicateRows int64 `json:"duplicateRows"`
	ErrorRows     int   `json:"errorRows"`
	NotFoundRows  int   `json:"notFoundRows"`
	BatchCount    int   `json:"batchCount"`

	TimePerRowMs       float64 `json:"timePerRowMs"`
	AverageBatchTimeMs float64 `json:"averageBatchTimeMs"`
	Throughput         float64 `json:"throughput"`

	batchTime time.Duration
}

// BatchMetrics covers a single batch.
type BatchMetrics struct {
	Number        int           `json:"batchNumber"`
	InputRows     int           `json:"inputRows"`
	ProcessedRows int           `json:"processedRows"`
	InsertedRows  int64         `json:"insertedRows"`
	DuplicateRows int64         `json:"duplicateRows"`
	ErrorRows     int           `json:"errorRows"`
	NotFoundRows  int           `json:"notFoundRows"`
	Duration      time.Duration `json:"-"`
}

func (m *Metrics) add(b BatchMetrics) {
	m.BatchCount++
	m.TotalRows += b.InputRows
	m.ProcessedRows += b.ProcessedRows
	m.InsertedRows += b.InsertedRows
	m.DuplicateRows += b.DuplicateRows
	m.ErrorRows += b.ErrorRows
	m.NotFoundRows += b.NotFoundRows
	m.batchTime += b.Duration
}

// finish stamps the end time and derives the rate fields.
func (m *Metrics) finish(end time.Time, runErr error) {
	m.EndTime = end
	m.DurationMs = end.Sub(m.StartTime).Milliseconds()

	m.Status = StatusCompleted
	if runErr != nil {
		m.Status = StatusFailed
		m.Error = runErr.Error()
	}

	if m.ProcessedRows > 0 {
		m.TimePerRowMs = float64(m.DurationMs) / float64(m.ProcessedRows)
	}
	if m.BatchCount > 0 {
		m.AverageBatchTimeMs = float64(m.batchTime.Milliseconds()) / float64(m.BatchCount)
	}
	if secs := end.Sub(m.StartTime).Seconds(); secs > 0 {
		m.Throughput = float64(m.ProcessedRows) / secs
	}
}

// LogSummary writes the run summary at info level. logger is expected to
// carry the file already.
func (m Metrics) LogSummary(logger *slog.Logger) {
	logger.Info("ingestion finished",
		"status", m.Status,
		"duration", time.Duration(m.DurationMs)*time.Millisecond,
		"total_rows", m.TotalRows,
		"processed_rows", m.ProcessedRows,
		"inserted_rows", m.InsertedRows,
		"duplicate_rows", m.DuplicateRows,
		"error_rows", m.ErrorRows,
		"not_found_rows", m.NotFoundRows,
		"time_per_row_ms", m.TimePerRowMs,
		"avg_batch_ms", m.AverageBatchTimeMs,
		"rows_per_sec", m.Throughput,
	)
}

// MetricsWriter receives the final metrics of every run.
type MetricsWriter interface {
	WriteMetrics(m Metrics) error
}

// MetricsSink appends one JSON line per run to a file.
type MetricsSink struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

func NewMetricsSink(path string) *MetricsSink {
	if path == "" {
		path = DefaultMetricsPath
	}
	return &MetricsSink{path: path, now: time.Now}
}

func (s *MetricsSink) Path() string { return s.path }

// WriteMetrics appends {"timestamp": ..., <metrics>} and a newline.
func (s *MetricsSink) WriteMetrics(m Metrics) error {
	line, err := json.Marshal(struct {
		Timestamp time.Time `json:"timestamp"`
		Metrics
	}{Timestamp: s.now().UTC(), Metrics: m})
	if err != nil {
		return errors.Wrap(err, "encode metrics")
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create metrics directory")
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open metrics file")
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "write metrics")
	}
	return f.Close()
}
