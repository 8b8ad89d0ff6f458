// Package observable wraps nested map/slice data so that every write, at any
// depth, is reported as a path-qualified change.
//
// A Value is a lightweight handle made of the owning store and the path from
// the root. Reads of composite children return new handles on demand; nothing
// is pre-walked. Writes mutate the underlying data in place and then deliver
// exactly one Change to the store's callback.
package observable

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/conneroisu/wisp/internal/errors"
)

// Kind distinguishes the two composite shapes.
type Kind int

const (
	KindMap Kind = iota
	KindList
)

// String returns the name of the kind
func (k Kind) String() string {
	if k == KindList {
		return "list"
	}
	return "map"
}

// Change describes one observed write.
type Change struct {
	Path []string
	New  any
	Old  any
}

// Dotted returns the change path joined with dots.
func (c Change) Dotted() string {
	return strings.Join(c.Path, ".")
}

// ChangeFunc receives every change. An error it returns is handed back to
// the caller of the write.
type ChangeFunc func(Change) error

type store struct {
	root     any
	onChange ChangeFunc
}

// Value is an observable handle on a composite node.
type Value struct {
	st   *store
	path []string
}

// Observe wraps target, which must be a composite value, and reports every
// write through the returned handle (or any handle derived from it) to
// onChange.
func Observe(target any, onChange ChangeFunc) (*Value, error) {
	root := Normalize(target)
	if !IsComposite(root) {
		return nil, errors.NewConfigurationError(
			errors.ErrCodeNotComposite,
			fmt.Sprintf("cannot observe non-composite value of type %T", target),
		)
	}
	if onChange == nil {
		onChange = func(Change) error { return nil }
	}
	return &Value{st: &store{root: root, onChange: onChange}}, nil
}

// IsComposite reports whether v is a map[string]any or a []any.
func IsComposite(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// Normalize converts arbitrary Go maps with string keys and slices into the
// map[string]any / []any shapes the store works with. Other values are
// returned unchanged.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range t {
			t[k] = Normalize(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = Normalize(child)
		}
		return t
	case *Value:
		return t.Raw()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

// Path returns a copy of the handle's path from the root.
func (v *Value) Path() []string {
	return append([]string(nil), v.path...)
}

// Raw returns the underlying composite this handle currently points at, or
// nil if the path no longer resolves.
func (v *Value) Raw() any {
	node, _ := v.resolve()
	return node
}

// Kind reports whether the handle points at a map or a list.
func (v *Value) Kind() Kind {
	if _, ok := v.Raw().([]any); ok {
		return KindList
	}
	return KindMap
}

// Len returns the number of entries in the node.
func (v *Value) Len() int {
	switch t := v.Raw().(type) {
	case map[string]any:
		return len(t)
	case []any:
		return len(t)
	}
	return 0
}

// Keys returns the node's keys: sorted map keys, or decimal list indices.
func (v *Value) Keys() []string {
	switch t := v.Raw().(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	case []any:
		keys := make([]string, len(t))
		for i := range t {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	}
	return nil
}

// Get reads key. A composite child is returned as a new *Value whose path
// extends this one; a leaf is returned as is; a missing key yields nil.
func (v *Value) Get(key string) any {
	node, ok := v.resolve()
	if !ok {
		return nil
	}
	child, ok := childOf(node, key)
	if !ok {
		return nil
	}
	if IsComposite(child) {
		return v.child(key)
	}
	return child
}

// Index reads element i of a list node.
func (v *Value) Index(i int) any {
	return v.Get(strconv.Itoa(i))
}

// Lookup reads a nested path relative to this handle.
func (v *Value) Lookup(path ...string) (any, bool) {
	node, ok := v.resolve()
	if !ok {
		return nil, false
	}
	for _, key := range path {
		node, ok = childOf(node, key)
		if !ok {
			return nil, false
		}
	}
	if IsComposite(node) {
		return &Value{st: v.st, path: joinPath(v.path, path...)}, true
	}
	return node, true
}

// Set writes key and reports the change. Writing a new map key is legal and
// reports a nil old value. For lists, key must be an existing index or the
// current length (which appends).
func (v *Value) Set(key string, value any) error {
	node, ok := v.resolve()
	if !ok {
		return v.pathError()
	}
	value = Normalize(value)

	switch t := node.(type) {
	case map[string]any:
		old := t[key]
		t[key] = value
		return v.emit(key, value, old)
	case []any:
		i, err := listIndex(key, len(t)+1)
		if err != nil {
			return err
		}
		if i == len(t) {
			return v.Append(value)
		}
		old := t[i]
		t[i] = value
		return v.emit(key, value, old)
	}
	return v.pathError()
}

// SetPath writes a dotted path relative to this handle. Every intermediate
// segment must already exist.
func (v *Value) SetPath(dotted string, value any) error {
	segments := SplitPath(dotted)
	if len(segments) == 0 {
		return errors.NewConfigurationError(errors.ErrCodeInvalidPath, "empty path")
	}
	parent := v
	if len(segments) > 1 {
		got, ok := v.Lookup(segments[:len(segments)-1]...)
		child, isValue := got.(*Value)
		if !ok || !isValue {
			return errors.NewConfigurationError(
				errors.ErrCodeUnknownPath,
				"no composite at "+strings.Join(joinPath(v.path, segments[:len(segments)-1]...), "."),
			)
		}
		parent = child
	}
	return parent.Set(segments[len(segments)-1], value)
}

// Append adds value to the end of a list node. The change path ends with
// the new element's index.
func (v *Value) Append(value any) error {
	node, ok := v.resolve()
	if !ok {
		return v.pathError()
	}
	list, isList := node.([]any)
	if !isList {
		return errors.NewConfigurationError(errors.ErrCodeInvalidPath,
			"append on non-list at "+v.dotted())
	}
	value = Normalize(value)
	index := len(list)
	v.replace(append(list, value))
	return v.emit(strconv.Itoa(index), value, nil)
}

// Delete removes key from a map node, or removes element key from a list
// node, and reports a change with a nil new value.
func (v *Value) Delete(key string) error {
	node, ok := v.resolve()
	if !ok {
		return v.pathError()
	}
	switch t := node.(type) {
	case map[string]any:
		old, exists := t[key]
		if !exists {
			return nil
		}
		delete(t, key)
		return v.emit(key, nil, old)
	case []any:
		i, err := listIndex(key, len(t))
		if err != nil {
			return err
		}
		old := t[i]
		next := append(append(make([]any, 0, len(t)-1), t[:i]...), t[i+1:]...)
		v.replace(next)
		return v.emit(key, nil, old)
	}
	return v.pathError()
}

func (v *Value) child(key string) *Value {
	return &Value{st: v.st, path: joinPath(v.path, key)}
}

func (v *Value) emit(key string, value, old any) error {
	return v.st.onChange(Change{
		Path: joinPath(v.path, key),
		New:  value,
		Old:  old,
	})
}

func (v *Value) resolve() (any, bool) {
	node := v.st.root
	for _, key := range v.path {
		var ok bool
		node, ok = childOf(node, key)
		if !ok {
			return nil, false
		}
	}
	return node, IsComposite(node)
}

// replace swaps the node this handle points at without reporting a change;
// used when a list grows or shrinks and its slice header moves.
func (v *Value) replace(node any) {
	if len(v.path) == 0 {
		v.st.root = node
		return
	}
	parent := &Value{st: v.st, path: v.path[:len(v.path)-1]}
	container, _ := parent.resolve()
	key := v.path[len(v.path)-1]
	switch t := container.(type) {
	case map[string]any:
		t[key] = node
	case []any:
		if i, err := strconv.Atoi(key); err == nil && i >= 0 && i < len(t) {
			t[i] = node
		}
	}
}

func (v *Value) dotted() string {
	if len(v.path) == 0 {
		return "<root>"
	}
	return strings.Join(v.path, ".")
}

func (v *Value) pathError() error {
	return errors.NewConfigurationError(errors.ErrCodeUnknownPath,
		"path no longer resolves to a composite: "+v.dotted())
}

func childOf(node any, key string) (any, bool) {
	switch t := node.(type) {
	case map[string]any:
		child, ok := t[key]
		return child, ok
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(t) {
			return nil, false
		}
		return t[i], true
	}
	return nil, false
}

func listIndex(key string, limit int) (int, error) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= limit {
		return 0, errors.NewConfigurationError(errors.ErrCodeInvalidPath,
			fmt.Sprintf("list index %q out of range", key))
	}
	return i, nil
}

func joinPath(base []string, keys ...string) []string {
	out := make([]string, 0, len(base)+len(keys))
	out = append(out, base...)
	return append(out, keys...)
}

// SplitPath splits a dotted path, dropping empty segments.
func SplitPath(dotted string) []string {
	var out []string
	for _, s := range strings.Split(dotted, ".") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
