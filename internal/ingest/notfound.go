package ingest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-faster/errors"
)

// DefaultNotFoundPath is where unresolved rows are recorded.
const DefaultNotFoundPath = ".log/index_not_found.log"

// NotFoundLog is an append-only record of rows whose spatial or temporal
// index could not be found. A line already in the file is never written
// twice, so re-running a job does not grow the log.
type NotFoundLog struct {
	path string

	mu     sync.Mutex
	seen   map[string]struct{}
	loaded bool
}

func NewNotFoundLog(path string) *NotFoundLog {
	if path == "" {
		path = DefaultNotFoundPath
	}
	return &NotFoundLog{path: path, seen: make(map[string]struct{})}
}

func (l *NotFoundLog) Path() string { return l.path }

// SpatialLine formats an unresolved geo code entry.
func SpatialLine(file string, row int, code string) string {
	return fmt.Sprintf("Spatial index not found - file: %s - row number: %d - geo code: %s", file, row, code)
}

// TimeLine formats an unparseable period entry.
func TimeLine(file string, row int, value string) string {
	return fmt.Sprintf("Time index not found - file: %s - row number: %d - time: %s", file, row, value)
}

// Append writes lines in order, skipping any already recorded. It returns
// how many were written.
func (l *NotFoundLog) Append(lines ...string) (int, error) {
	if len(lines) == 0 {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(); err != nil {
		return 0, err
	}

	var b strings.Builder
	fresh := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, dup := l.seen[line]; dup {
			continue
		}
		if _, dup := fresh[line]; dup {
			continue
		}
		fresh[line] = struct{}{}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, errors.Wrap(err, "open not-found log")
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return 0, errors.Wrap(err, "write not-found log")
	}
	// Only lines that reached the file count as recorded.
	for line := range fresh {
		l.seen[line] = struct{}{}
	}
	return len(fresh), f.Close()
}

// load reads existing entries once and creates the directory.
func (l *NotFoundLog) load() error {
	if l.loaded {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.Wrap(err, "create not-found log directory")
	}

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		l.loaded = true
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "open not-found log")
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		l.seen[sc.Text()] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(err, "read not-found log")
	}
	l.loaded = true
	return nil
}
