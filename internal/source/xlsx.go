package source

import (
	"context"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/xuri/excelize/v2"
)

// XLSX streams rows from one worksheet. The first row is the header.
type XLSX struct {
	file      *excelize.File
	rows      *excelize.Rows
	header    []string
	size      int64
	batchSize int
	number    int
	line      int
	done      bool
}

// OpenXLSX opens path and positions on sheet, or the first sheet when sheet
// is empty.
func OpenXLSX(path, sheet string, batchSize int) (*XLSX, error) {
	if batchSize <= 0 {
		batchSize = XLSXBatchSize
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "open xlsx")
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, errors.New("xlsx has no sheets")
	}
	if sheet == "" {
		sheet = sheets[0]
	} else if !slices.Contains(sheets, sheet) {
		_ = f.Close()
		return nil, errors.Errorf("xlsx has no sheet %q", sheet)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "read sheet %q", sheet)
	}

	x := &XLSX{file: f, rows: rows, batchSize: batchSize}
	if st, err := os.Stat(path); err == nil {
		x.size = st.Size()
	}

	if !rows.Next() {
		x.done = true
		return x, nil
	}
	header, err := rows.Columns()
	if err != nil {
		x.Close()
		return nil, errors.Wrap(err, "read xlsx header")
	}
	x.line = 1
	for _, h := range header {
		x.header = append(x.header, strings.TrimSpace(h))
	}
	return x, nil
}

func (x *XLSX) Next(ctx context.Context) (Batch, error) {
	if x.done {
		return Batch{}, io.EOF
	}

	b := Batch{Number: x.number, Size: x.batchSize}
	for len(b.Rows)+len(b.Errors) < x.batchSize {
		if err := ctx.Err(); err != nil {
			return Batch{}, err
		}
		if !x.rows.Next() {
			x.done = true
			if err := x.rows.Error(); err != nil {
				return Batch{}, errors.Wrap(err, "read xlsx")
			}
			break
		}
		x.line++

		cells, err := x.rows.Columns()
		if err != nil {
			b.Errors = append(b.Errors, RowError{Line: x.line, Err: err})
			continue
		}
		// Trailing empty cells are omitted by excelize.
		if len(cells) > len(x.header) {
			b.Errors = append(b.Errors, RowError{
				Line: x.line,
				Err:  errors.Errorf("expected at most %d cells, got %d", len(x.header), len(cells)),
			})
			continue
		}
		if len(cells) == 0 {
			continue
		}

		row := make(Row, len(x.header))
		for i, name := range x.header {
			if i < len(cells) {
				row[name] = strings.TrimSpace(cells[i])
			} else {
				row[name] = ""
			}
		}
		b.Rows = append(b.Rows, row)
		b.RowNumbers = append(b.RowNumbers, x.line-1)
	}

	if len(b.Rows) == 0 && len(b.Errors) == 0 {
		return Batch{}, io.EOF
	}
	x.number++
	return b, nil
}

func (x *XLSX) Close() error {
	if x.rows != nil {
		_ = x.rows.Close()
	}
	return x.file.Close()
}

func (x *XLSX) Size() int64 {
	return x.size
}
