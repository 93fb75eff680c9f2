// Package source reads observation rows from CSV, XLSX and JSON files in
// fixed-size batches.
//
// Sources are pulled: the caller asks for the next batch only after the
// previous one has been fully handled, so at most one batch is in memory.
package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

// Batch sizes by file type.
const (
	CSVBatchSize     = 15000
	XLSXBatchSize    = 2000
	DefaultBatchSize = 5000
)

// ErrUnsupported is returned by Open for an unknown file extension.
var ErrUnsupported = errors.New("unsupported file type")

// Row is one decoded record keyed by column name.
type Row = map[string]any

// RowError records a row the source could not decode.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return "line " + strconv.Itoa(e.Line) + ": " + e.Err.Error()
}

// Batch is one pull from a Source. Number is zero-based and Size is the
// configured batch size. Undecodable rows still take a slot in the batch.
type Batch struct {
	Number int
	Size   int
	Rows   []Row
	// RowNumbers holds the 1-based data row (header excluded) of each entry
	// in Rows.
	RowNumbers []int
	Errors     []RowError
}

// RowNumber returns the data row number of Rows[i]. Without RowNumbers it
// assumes every slot before i decoded.
func (b Batch) RowNumber(i int) int {
	if i < len(b.RowNumbers) {
		return b.RowNumbers[i]
	}
	return b.Number*b.Size + i + 1
}

// Source yields batches until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (Batch, error)
	Close() error
	// Size is the input size in bytes, or 0 when unknown.
	Size() int64
}

// BatchSizeFor returns the default batch size for a file extension.
func BatchSizeFor(ext string) int {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "csv":
		return CSVBatchSize
	case "xlsx":
		return XLSXBatchSize
	default:
		return DefaultBatchSize
	}
}

// Options tunes format-specific readers.
type Options struct {
	// Sheet selects an XLSX sheet by name. Empty means the first sheet.
	Sheet string
	// Path is the JSONPath selecting records in a JSON document.
	Path string
}

// Open picks a reader by extension. batchSize <= 0 uses BatchSizeFor.
func Open(path string, batchSize int, opts Options) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if batchSize <= 0 {
		batchSize = BatchSizeFor(ext)
	}

	switch ext {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "open csv")
		}
		var size int64
		if st, err := f.Stat(); err == nil {
			size = st.Size()
		}
		return NewCSV(f, size, batchSize)
	case ".xlsx":
		return OpenXLSX(path, opts.Sheet, batchSize)
	case ".xls":
		// excelize reads OOXML only, not the legacy BIFF format.
		return nil, errors.Wrap(ErrUnsupported, `".xls" (save the workbook as .xlsx)`)
	case ".json":
		return OpenJSON(path, opts.Path, batchSize)
	default:
		return nil, errors.Wrapf(ErrUnsupported, "%q", ext)
	}
}

// slice serves batches from rows already in memory.
type slice struct {
	rows      []Row
	batchSize int
	next      int
	number    int
}

// FromRows returns a Source over rows. Used for inline API payloads.
func FromRows(rows []Row, batchSize int) Source {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &slice{rows: rows, batchSize: batchSize}
}

func (s *slice) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if s.next >= len(s.rows) {
		return Batch{}, io.EOF
	}
	end := min(s.next+s.batchSize, len(s.rows))
	b := Batch{Number: s.number, Size: s.batchSize, Rows: s.rows[s.next:end]}
	for i := s.next; i < end; i++ {
		b.RowNumbers = append(b.RowNumbers, i+1)
	}
	s.next = end
	s.number++
	return b, nil
}

func (s *slice) Close() error { return nil }
func (s *slice) Size() int64  { return 0 }
