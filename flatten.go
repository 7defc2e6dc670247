/*
Package salesman – dotted-path flattening and nested path access.
*/
package salesman

import (
	"sort"
	"strconv"
	"strings"
)

// LeafFunc decides whether traversal stops at value. When stop is true, leaf
// is written at path in place of value, so a predicate can detect and
// transform a leaf in the same pass.
type LeafFunc func(value any, path string) (leaf any, stop bool)

// Flatten converts a nested structure into a flat map keyed by dotted paths.
// Maps and slices are descended into (slice indices become path segments)
// until isLeaf stops. A nil isLeaf stops at anything that is not a map or slice.
func Flatten(node any, isLeaf LeafFunc) map[string]any {
	if isLeaf == nil {
		isLeaf = defaultLeaf
	}
	out := map[string]any{}
	flattenInto(out, node, "", isLeaf)
	return out
}

func defaultLeaf(value any, _ string) (any, bool) {
	return value, !canNest(value)
}

func flattenInto(out map[string]any, node any, prefix string, isLeaf LeafFunc) {
	for _, e := range children(node) {
		path := e.key
		if prefix != "" {
			path = prefix + "." + e.key
		}
		if leaf, stop := isLeaf(e.value, path); stop {
			out[path] = leaf
			continue
		}
		if !canNest(e.value) {
			// predicate refused to stop on a scalar: nothing to descend into
			out[path] = e.value
			continue
		}
		flattenInto(out, e.value, path, isLeaf)
	}
}

type child struct {
	key   string
	value any
}

// children lists the entries of a map (sorted by key) or slice (by index).
func children(node any) []child {
	switch n := node.(type) {
	case map[string]any:
		keys := sortedKeys(n)
		out := make([]child, len(keys))
		for i, k := range keys {
			out[i] = child{k, n[k]}
		}
		return out
	case []any:
		out := make([]child, len(n))
		for i, v := range n {
			out[i] = child{strconv.Itoa(i), v}
		}
		return out
	}
	return nil
}

func canNest(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func isMap(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

// Unflatten rebuilds a nested map from a flat dotted-path map.
func Unflatten(flat map[string]any) map[string]any {
	out := map[string]any{}
	for _, k := range sortedKeys(flat) {
		SetPath(out, k, flat[k])
	}
	return out
}

// LookupPath reads a dotted path through nested maps and slices. The boolean
// is false when any segment is absent or an intermediate value is nil.
func LookupPath(obj any, path string) (any, bool) {
	cur := obj
	for _, seg := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// GetPath is LookupPath with a default for absent paths.
func GetPath(obj any, path string, def any) any {
	if v, ok := LookupPath(obj, path); ok {
		return v
	}
	return def
}

// SetPath writes value at a dotted path, creating intermediate maps as
// needed. Intermediate values that are not maps are replaced.
func SetPath(obj map[string]any, path string, value any) {
	segs := strings.Split(path, ".")
	cur := obj
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[segs[len(segs)-1]] = value
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
