package source

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/go-faster/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// countingReader tracks bytes consumed from the raw file for progress
// reporting.
type countingReader struct {
	reader    io.Reader
	bytesRead int64
	total     int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.bytesRead += int64(n)
	return n, err
}

// progress returns 0-100, or 0 when the total is unknown.
func (r *countingReader) progress() int {
	if r.total <= 0 {
		return 0
	}
	return int(r.bytesRead * 100 / r.total)
}

// CSV reads comma-separated rows. The first record is the header.
type CSV struct {
	closer    io.Closer
	counter   *countingReader
	reader    *csv.Reader
	header    []string
	batchSize int
	number    int
	line      int
	done      bool
}

// NewCSV wraps r. A UTF-8 BOM is stripped and invalid UTF-8 is replaced
// before parsing. If r is an io.Closer it is closed by Close.
func NewCSV(r io.Reader, size int64, batchSize int) (*CSV, error) {
	if batchSize <= 0 {
		batchSize = CSVBatchSize
	}
	counter := &countingReader{reader: r, total: size}
	decoded := transform.NewReader(counter, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	c := &CSV{counter: counter, reader: cr, batchSize: batchSize}
	if closer, ok := r.(io.Closer); ok {
		c.closer = closer
	}

	header, err := cr.Read()
	if err == io.EOF {
		c.done = true
		return c, nil
	}
	if err != nil {
		c.Close()
		return nil, errors.Wrap(err, "read csv header")
	}
	c.line = 1
	c.header = make([]string, len(header))
	for i, h := range header {
		c.header[i] = strings.TrimSpace(h)
	}
	return c, nil
}

// Header returns the trimmed column names.
func (c *CSV) Header() []string {
	return c.header
}

// Progress returns how much of the file has been consumed, 0-100.
func (c *CSV) Progress() int {
	return c.counter.progress()
}

func (c *CSV) Next(ctx context.Context) (Batch, error) {
	if c.done {
		return Batch{}, io.EOF
	}

	b := Batch{Number: c.number, Size: c.batchSize, Rows: make([]Row, 0, min(c.batchSize, 1024))}
	for len(b.Rows)+len(b.Errors) < c.batchSize {
		if err := ctx.Err(); err != nil {
			return Batch{}, err
		}

		record, err := c.reader.Read()
		if err == io.EOF {
			c.done = true
			break
		}
		c.line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				b.Errors = append(b.Errors, RowError{Line: c.line, Err: err})
				continue
			}
			return Batch{}, errors.Wrap(err, "read csv")
		}
		if len(record) != len(c.header) {
			b.Errors = append(b.Errors, RowError{
				Line: c.line,
				Err:  errors.Errorf("expected %d fields, got %d", len(c.header), len(record)),
			})
			continue
		}

		row := make(Row, len(c.header))
		for i, name := range c.header {
			row[name] = strings.TrimSpace(record[i])
		}
		b.Rows = append(b.Rows, row)
		b.RowNumbers = append(b.RowNumbers, c.line-1)
	}

	if len(b.Rows) == 0 && len(b.Errors) == 0 {
		return Batch{}, io.EOF
	}
	c.number++
	return b, nil
}

func (c *CSV) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func (c *CSV) Size() int64 {
	return c.counter.total
}
