package observable

import (
	"sort"
	"strconv"
)

// Paths enumerates every reachable key path in v, depth-first, emitting a
// parent path before descending into its children. Map keys are visited in
// sorted order and list elements by index.
func Paths(v any) [][]string {
	var out [][]string
	walkPaths(unwrap(v), nil, &out)
	return out
}

func walkPaths(node any, prefix []string, out *[][]string) {
	visit := func(key string, child any) {
		path := joinPath(prefix, key)
		*out = append(*out, path)
		walkPaths(child, path, out)
	}

	switch t := node.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			visit(k, t[k])
		}
	case []any:
		for i, child := range t {
			visit(strconv.Itoa(i), child)
		}
	}
}

// HasPath reports whether path is exactly one of the paths of v.
func HasPath(v any, path []string) bool {
	if len(path) == 0 {
		return false
	}
	node := unwrap(v)
	for _, key := range path {
		var ok bool
		node, ok = childOf(node, key)
		if !ok {
			return false
		}
	}
	return true
}

// Includes reports whether some path of v contains every candidate key, in
// any order.
func Includes(v any, candidates []string) bool {
	if len(candidates) == 0 {
		return false
	}
	for _, path := range Paths(v) {
		if containsAll(path, candidates) {
			return true
		}
	}
	return false
}

func containsAll(path, candidates []string) bool {
	seen := make(map[string]struct{}, len(path))
	for _, key := range path {
		seen[key] = struct{}{}
	}
	for _, c := range candidates {
		if _, ok := seen[c]; !ok {
			return false
		}
	}
	return true
}

func unwrap(v any) any {
	if w, ok := v.(*Value); ok {
		return w.Raw()
	}
	return Normalize(v)
}
