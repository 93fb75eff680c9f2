// Package flatten collapses nested records into a single level of keys.
package flatten

import "reflect"

const (
	// DefaultMaxDepth bounds recursion into nested objects.
	DefaultMaxDepth = 20

	// DefaultSeparator joins parent and child keys.
	DefaultSeparator = "_"
)

// Options controls how records are flattened.
type Options struct {
	MaxDepth  int
	Separator string
}

// Flatten returns a single-level copy of obj using the default options.
//
// Nested objects contribute keys of the form parent_child. Arrays and other
// non-object values are kept as leaves. Objects nested deeper than the max
// depth, and objects that reference one of their ancestors, are skipped
// without error.
func Flatten(obj map[string]any) map[string]any {
	return Options{}.Flatten(obj)
}

// Flatten applies o to obj. Zero fields fall back to the defaults.
func (o Options) Flatten(obj map[string]any) map[string]any {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.Separator == "" {
		o.Separator = DefaultSeparator
	}

	out := make(map[string]any, len(obj))
	w := walker{opts: o, onPath: make(map[uintptr]bool)}
	w.walk(out, obj, "", 0)
	return out
}

type walker struct {
	opts   Options
	onPath map[uintptr]bool
}

func (w *walker) walk(acc map[string]any, obj map[string]any, prefix string, depth int) {
	if depth > w.opts.MaxDepth {
		return
	}
	id := reflect.ValueOf(obj).Pointer()
	if w.onPath[id] {
		return
	}
	w.onPath[id] = true
	defer delete(w.onPath, id)

	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + w.opts.Separator + k
		}
		switch child := v.(type) {
		case map[string]any:
			w.walk(acc, child, key, depth+1)
		case map[string]string:
			w.walk(acc, widen(child), key, depth+1)
		default:
			acc[key] = v
		}
	}
}

func widen(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
