package flatten

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "flat record unchanged",
			in:   map[string]any{"a": "1", "b": 2},
			want: map[string]any{"a": "1", "b": 2},
		},
		{
			name: "nested keys joined with underscore",
			in: map[string]any{
				"city": map[string]any{
					"name": "São Carlos",
					"ibge": map[string]any{"code": "3548906"},
				},
				"cases": 4,
			},
			want: map[string]any{
				"city_name":      "São Carlos",
				"city_ibge_code": "3548906",
				"cases":          4,
			},
		},
		{
			name: "arrays are leaves",
			in: map[string]any{
				"tags": []any{"a", map[string]any{"b": 1}},
			},
			want: map[string]any{
				"tags": []any{"a", map[string]any{"b": 1}},
			},
		},
		{
			name: "nil values kept",
			in:   map[string]any{"x": nil},
			want: map[string]any{"x": nil},
		},
		{
			name: "string maps recurse",
			in:   map[string]any{"row": map[string]string{"uf": "SP"}},
			want: map[string]any{"row_uf": "SP"},
		},
		{
			name: "empty nested object contributes nothing",
			in:   map[string]any{"meta": map[string]any{}, "a": 1},
			want: map[string]any{"a": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Flatten(tt.in))
		})
	}
}

func TestFlatten_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"a": map[string]any{"b": 1}}
	Flatten(in)
	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1}}, in)
}

func TestFlatten_DepthGuard(t *testing.T) {
	// Build {"k": {"k": ... {"leaf": depth} ...}} thirty levels deep.
	root := map[string]any{}
	cur := root
	for i := 0; i < 30; i++ {
		next := map[string]any{"leaf": i}
		cur["k"] = next
		cur = next
	}

	got := Flatten(root)

	// Objects at depth 1..20 are walked; each contributes one leaf.
	assert.Len(t, got, DefaultMaxDepth)
	deepest := strings.TrimSuffix(strings.Repeat("k_", DefaultMaxDepth), "_") + "_leaf"
	assert.Equal(t, DefaultMaxDepth-1, got[deepest])
}

func TestFlatten_CustomOptions(t *testing.T) {
	in := map[string]any{"a": map[string]any{"b": map[string]any{"c": 1}}, "x": 2}

	got := Options{MaxDepth: 1, Separator: "."}.Flatten(in)

	assert.Equal(t, map[string]any{"x": 2}, got)

	got = Options{MaxDepth: 2, Separator: "."}.Flatten(in)
	assert.Equal(t, map[string]any{"x": 2, "a.b.c": 1}, got)
}

func TestFlatten_CircularReference(t *testing.T) {
	root := map[string]any{"id": 1}
	child := map[string]any{"name": "child", "parent": root}
	root["child"] = child

	got := Flatten(root)

	assert.Equal(t, map[string]any{"id": 1, "child_name": "child"}, got)
}
