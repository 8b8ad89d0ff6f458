package tmpl

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/conneroisu/wisp/internal/errors"
)

type node interface {
	exec(w *strings.Builder, s scope) error
}

// scope is the environment an expression sees. Blocks copy it on entry so
// that loop variables and lets do not leak outward.
type scope map[string]any

func (s scope) child() scope {
	c := make(scope, len(s)+2)
	for k, v := range s {
		c[k] = v
	}
	return c
}

type textNode struct {
	text string
}

func (n *textNode) exec(w *strings.Builder, _ scope) error {
	w.WriteString(n.text)
	return nil
}

type outputNode struct {
	prog *vm.Program
	at   token
}

func (n *outputNode) exec(w *strings.Builder, s scope) error {
	v, err := run(n.prog, s, n.at)
	if err != nil {
		return err
	}
	w.WriteString(Stringify(v))
	return nil
}

type evalNode struct {
	prog *vm.Program
	at   token
}

func (n *evalNode) exec(_ *strings.Builder, s scope) error {
	_, err := run(n.prog, s, n.at)
	return err
}

type letNode struct {
	name string
	prog *vm.Program
	at   token
}

func (n *letNode) exec(_ *strings.Builder, s scope) error {
	v, err := run(n.prog, s, n.at)
	if err != nil {
		return err
	}
	s[n.name] = v
	return nil
}

type branch struct {
	cond *vm.Program
	body []node
	at   token
}

type ifNode struct {
	branches  []branch
	otherwise []node
}

func (n *ifNode) exec(w *strings.Builder, s scope) error {
	for _, b := range n.branches {
		v, err := run(b.cond, s, b.at)
		if err != nil {
			return err
		}
		if Truthy(v) {
			return execAll(b.body, w, s.child())
		}
	}
	return execAll(n.otherwise, w, s.child())
}

type forNode struct {
	key   string
	value string
	iter  *vm.Program
	body  []node
	at    token
}

func (n *forNode) exec(w *strings.Builder, s scope) error {
	v, err := run(n.iter, s, n.at)
	if err != nil {
		return err
	}
	pairs, err := iterate(v)
	if err != nil {
		return errors.NewCompilationError(errors.ErrCodeEvaluation, err.Error(), nil).
			WithLocation("", n.at.line, n.at.column)
	}

	inner := s.child()
	for _, p := range pairs {
		if n.key != "" {
			inner[n.key] = p[0]
		}
		inner[n.value] = p[1]
		if err := execAll(n.body, w, inner); err != nil {
			return err
		}
	}
	return nil
}

func execAll(nodes []node, w *strings.Builder, s scope) error {
	for _, n := range nodes {
		if err := n.exec(w, s); err != nil {
			return err
		}
	}
	return nil
}

func run(prog *vm.Program, s scope, at token) (any, error) {
	v, err := expr.Run(prog, map[string]any(s))
	if err != nil {
		return nil, errors.NewCompilationError(errors.ErrCodeEvaluation,
			"evaluation failed", err).WithLocation("", at.line, at.column)
	}
	return v, nil
}

// iterate turns a range target into ordered key/value pairs. Maps iterate by
// sorted key, integers count from zero.
func iterate(v any) ([][2]any, error) {
	if v == nil {
		return nil, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([][2]any, rv.Len())
		for i := range out {
			out[i] = [2]any{i, rv.Index(i).Interface()}
		}
		return out, nil

	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		out := make([][2]any, len(keys))
		for i, k := range keys {
			out[i] = [2]any{k.Interface(), rv.MapIndex(k).Interface()}
		}
		return out, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := int(rv.Int())
		out := make([][2]any, 0, max(n, 0))
		for i := 0; i < n; i++ {
			out = append(out, [2]any{i, i})
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot range over %T", v)
}

// Truthy reports the truth value of v: nil, false, zero numbers, empty
// strings and empty collections are false.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface, reflect.Func:
		return !rv.IsNil()
	}
	return true
}

// Stringify renders a value the way <%= %> prints it.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	return fmt.Sprint(v)
}
