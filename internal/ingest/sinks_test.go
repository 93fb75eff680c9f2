package ingest

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// NotFoundLog
// =============================================================================

func TestNotFoundLog_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "not_found.log")
	l := NewNotFoundLog(path)

	a := SpatialLine("f.csv", 3, "123")
	b := TimeLine("f.csv", 4, "2023-13")

	n, err := l.Append(a, b, a)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = l.Append(b)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Equal(t, []string{a, b}, readLines(t, path))
}

func TestNotFoundLog_SkipsExistingEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not_found.log")
	existing := SpatialLine("f.csv", 1, "1")
	require.NoError(t, os.WriteFile(path, []byte(existing+"\n"), 0o644))

	l := NewNotFoundLog(path)
	n, err := l.Append(existing, SpatialLine("f.csv", 2, "2"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, readLines(t, path), 2)
}

func TestNotFoundLog_RetriesAfterFailedWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not_found.log")
	l := NewNotFoundLog(path)

	_, err := l.Append(SpatialLine("f.csv", 1, "1"))
	require.NoError(t, err)

	// A directory in place of the log makes the next open fail.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	line := SpatialLine("f.csv", 2, "2")
	_, err = l.Append(line)
	require.Error(t, err)

	require.NoError(t, os.Remove(path))
	n, err := l.Append(line)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{line}, readLines(t, path))
}

func TestNotFoundLog_LineFormats(t *testing.T) {
	assert.Equal(t,
		"Spatial index not found - file: pib.csv - row number: 12 - geo code: 3550308",
		SpatialLine("pib.csv", 12, "3550308"))
	assert.Equal(t,
		"Time index not found - file: pib.csv - row number: 5 - time: 20231",
		TimeLine("pib.csv", 5, "20231"))
}

// =============================================================================
// Metrics
// =============================================================================

func TestMetrics_Finish(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := Metrics{StartTime: start}
	m.add(BatchMetrics{InputRows: 5, ProcessedRows: 4, InsertedRows: 3, DuplicateRows: 1, ErrorRows: 1, Duration: 200 * time.Millisecond})
	m.add(BatchMetrics{InputRows: 5, ProcessedRows: 4, InsertedRows: 4, NotFoundRows: 0, Duration: 400 * time.Millisecond})
	m.finish(start.Add(2*time.Second), nil)

	assert.Equal(t, StatusCompleted, m.Status)
	assert.Equal(t, 10, m.TotalRows)
	assert.Equal(t, 8, m.ProcessedRows)
	assert.Equal(t, int64(7), m.InsertedRows)
	assert.Equal(t, int64(2000), m.DurationMs)
	assert.Equal(t, 2, m.BatchCount)
	assert.InDelta(t, 250.0, m.TimePerRowMs, 0.001)
	assert.InDelta(t, 300.0, m.AverageBatchTimeMs, 0.001)
	assert.InDelta(t, 4.0, m.Throughput, 0.001)
}

func TestMetrics_LogSummaryNamesFileOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil)).With("file", "pib.csv")

	m := Metrics{File: "pib.csv", Status: StatusCompleted, InsertedRows: 3}
	m.LogSummary(logger)

	out := buf.String()
	assert.Contains(t, out, "ingestion finished")
	assert.Equal(t, 1, strings.Count(out, "file="))
	assert.Contains(t, out, "inserted_rows=3")
}

func TestMetrics_FinishFailed(t *testing.T) {
	m := Metrics{StartTime: time.Now()}
	m.finish(m.StartTime, errors.New("boom"))

	assert.Equal(t, StatusFailed, m.Status)
	assert.Equal(t, "boom", m.Error)
	assert.Zero(t, m.TimePerRowMs)
	assert.Zero(t, m.Throughput)
}

func TestMetricsSink_WriteMetrics(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".log", "metrics.jsonl")
	sink := NewMetricsSink(path)
	sink.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, sink.WriteMetrics(Metrics{RunID: "a", Status: StatusCompleted, InsertedRows: 3}))
	require.NoError(t, sink.WriteMetrics(Metrics{RunID: "b", Status: StatusFailed, Error: "x"}))

	lines := readLines(t, path)
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "2024-05-01T00:00:00Z", first["timestamp"])
	assert.Equal(t, "a", first["runId"])
	assert.Equal(t, float64(3), first["insertedRows"])
	assert.NotContains(t, first, "error")

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "x", second["error"])
}
