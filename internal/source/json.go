package source

import (
	"context"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// DefaultJSONPath selects every element of a top-level array.
const DefaultJSONPath = "$[*]"

// JSON serves records selected from a JSON document by a JSONPath
// expression. The document is parsed once when opened.
type JSON struct {
	records   []any
	size      int64
	batchSize int
	next      int
	number    int
}

// OpenJSON reads and parses path. An empty expr uses DefaultJSONPath.
func OpenJSON(path, expr string, batchSize int) (*JSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read json")
	}
	j, err := ParseJSON(data, expr, batchSize)
	if err != nil {
		return nil, err
	}
	j.size = int64(len(data))
	return j, nil
}

// ParseJSON selects records from data.
func ParseJSON(data []byte, expr string, batchSize int) (*JSON, error) {
	if expr == "" {
		expr = DefaultJSONPath
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	x, err := jp.ParseString(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid jsonpath %q", expr)
	}
	doc, err := oj.Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "parse json")
	}

	records := x.Get(doc)
	// "$.data" style selectors return the array itself.
	if len(records) == 1 {
		if arr, ok := records[0].([]any); ok {
			records = arr
		}
	}
	return &JSON{records: records, size: int64(len(data)), batchSize: batchSize}, nil
}

func (j *JSON) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if j.next >= len(j.records) {
		return Batch{}, io.EOF
	}

	end := min(j.next+j.batchSize, len(j.records))
	b := Batch{Number: j.number, Size: j.batchSize}
	for i := j.next; i < end; i++ {
		obj, ok := j.records[i].(map[string]any)
		if !ok {
			b.Errors = append(b.Errors, RowError{
				Line: i + 1,
				Err:  errors.Errorf("record is %T, not an object", j.records[i]),
			})
			continue
		}
		b.Rows = append(b.Rows, obj)
		b.RowNumbers = append(b.RowNumbers, i+1)
	}
	j.next = end
	j.number++
	return b, nil
}

func (j *JSON) Close() error {
	j.records = nil
	return nil
}

func (j *JSON) Size() int64 {
	return j.size
}
