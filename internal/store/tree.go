package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SplitPath parses a slash separated path. The empty path is the root.
func SplitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	segs := strings.Split(trimmed, "/")
	for _, seg := range segs {
		if seg == "" || strings.ContainsAny(seg, ".#$[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs, nil
}

// JoinPath is the inverse of SplitPath.
func JoinPath(segs []string) string {
	return strings.Join(segs, "/")
}

// Overlaps reports whether a change at one path can affect the other, i.e.
// one is an ancestor of (or equal to) the other.
func Overlaps(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Normalize converts an arbitrary Go value into the JSON-shaped form held by
// the tree, dropping nil members and empty maps.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return prune(out), nil
}

func prune(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		child = prune(child)
		if child == nil {
			delete(m, k)
			continue
		}
		m[k] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Tree is an in-memory JSON tree. It is not safe for concurrent use.
type Tree struct {
	root any
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// Get returns a deep copy of the value at segs, or nil.
func (t *Tree) Get(segs []string) any {
	return deepCopy(lookup(t.root, segs))
}

// Set stores an already normalized value at segs; nil deletes.
func (t *Tree) Set(segs []string, v any) {
	t.root = setIn(t.root, segs, deepCopy(v))
}

func lookup(node any, segs []string) any {
	for _, seg := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[seg]
	}
	return node
}

func setIn(node any, segs []string, v any) any {
	if len(segs) == 0 {
		return v
	}
	m, ok := node.(map[string]any)
	if !ok {
		if v == nil {
			return node
		}
		// a leaf is replaced by the subtree written beneath it
		m = make(map[string]any)
	}
	child := setIn(m[segs[0]], segs[1:], v)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}

// Flatten splits a normalized value into leaves keyed by relative path.
// A leaf value at the top level is keyed by "".
func Flatten(v any) map[string]any {
	leaves := make(map[string]any)
	flattenInto(leaves, nil, v)
	return leaves
}

func flattenInto(leaves map[string]any, prefix []string, v any) {
	switch t := v.(type) {
	case nil:
	case map[string]any:
		for k, child := range t {
			flattenInto(leaves, append(append([]string(nil), prefix...), k), child)
		}
	default:
		leaves[JoinPath(prefix)] = t
	}
}

// Expand rebuilds a value from leaves produced by Flatten.
func Expand(leaves map[string]any) any {
	keys := make([]string, 0, len(leaves))
	for k := range leaves {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := NewTree()
	for _, k := range keys {
		segs, err := SplitPath(k)
		if err != nil {
			continue
		}
		t.Set(segs, leaves[k])
	}
	return t.root
}
