package loader

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/conneroisu/wisp/internal/component"
	"github.com/conneroisu/wisp/internal/dom"
	"github.com/conneroisu/wisp/internal/errors"
	"github.com/conneroisu/wisp/internal/observable"
	"github.com/conneroisu/wisp/internal/tmpl"
)

// Declarative is the component built from a definition file. Each instance
// observes its own copy of the definition's data.
type Declarative struct {
	component.Base
	def *Definition
}

func (c *Declarative) Data() any {
	if c.def.Data == nil {
		return nil
	}
	return clone(c.def.Data)
}

func (c *Declarative) Template() string { return c.def.Template }

func (c *Declarative) Styles() string { return c.def.Styles }

func (c *Declarative) Props() map[string]any {
	if len(c.def.Props) == 0 {
		return nil
	}
	return map[string]any{"props": c.def.Props}
}

// Partial implements component.PartialResolver.
func (c *Declarative) Partial(name string) (string, bool) {
	text, ok := c.def.Partials[name]
	return text, ok
}

// ResolveMethod implements component.MethodResolver.
func (c *Declarative) ResolveMethod(name string) (func(*dom.Event) error, bool) {
	actions, ok := c.def.Methods[name]
	if !ok {
		return nil, false
	}
	return func(e *dom.Event) error {
		return c.run(actions, eventVars(e))
	}, true
}

// Created registers the definition's watchers.
func (c *Declarative) Created() {
	for path, actions := range c.def.Watch {
		actions := actions
		// Paths were checked against the data at load time.
		_ = c.Watch(path, func(path string, value, old any) error {
			return c.run(actions, map[string]any{
				"type":  "watch",
				"path":  path,
				"value": value,
				"old":   old,
			})
		})
	}
}

func eventVars(e *dom.Event) map[string]any {
	if e == nil {
		return map[string]any{}
	}
	return map[string]any{
		"type":   e.Type,
		"value":  e.Value,
		"detail": e.Detail,
	}
}

// run applies actions in order. Every write re-renders before the next
// action reads data.
func (c *Declarative) run(actions []Action, event map[string]any) error {
	state := c.State()
	if state == nil {
		return errors.NewConfigurationError(errors.ErrCodeNoData, "component has no data").
			WithComponent(c.def.Tag)
	}

	for i := range actions {
		a := &actions[i]
		env := map[string]any{
			"data":  state.Raw(),
			"attrs": dom.Attrs(c.Element()),
			"props": c.def.Props,
			"event": event,
		}

		if a.when != nil {
			ok, err := eval(a.when, env)
			if err != nil {
				return c.actionError(a, err)
			}
			if !tmpl.Truthy(ok) {
				continue
			}
		}

		var value any
		if a.value != nil {
			var err error
			if value, err = eval(a.value, env); err != nil {
				return c.actionError(a, err)
			}
		}

		if err := apply(state, a, value); err != nil {
			return c.actionError(a, err)
		}
	}
	return nil
}

func eval(program *vm.Program, env map[string]any) (any, error) {
	return expr.Run(program, env)
}

func apply(state *observable.Value, a *Action, value any) error {
	target := a.Target()
	switch a.Op() {
	case "set":
		return state.SetPath(target, value)
	case "append":
		list, err := container(state, observable.SplitPath(target))
		if err != nil {
			return err
		}
		return list.Append(value)
	}

	// delete: with a value, remove that key or index from the container at
	// target; without one, remove target itself.
	segments := observable.SplitPath(target)
	if a.value != nil {
		parent, err := container(state, segments)
		if err != nil {
			return err
		}
		return parent.Delete(fmt.Sprint(value))
	}
	parent, err := container(state, segments[:len(segments)-1])
	if err != nil {
		return err
	}
	return parent.Delete(segments[len(segments)-1])
}

func container(state *observable.Value, path []string) (*observable.Value, error) {
	if len(path) == 0 {
		return state, nil
	}
	got, ok := state.Lookup(path...)
	v, isValue := got.(*observable.Value)
	if !ok || !isValue {
		return nil, errors.NewConfigurationError(errors.ErrCodeUnknownPath,
			"no composite at "+strings.Join(path, "."))
	}
	return v, nil
}

func (c *Declarative) actionError(a *Action, err error) error {
	if we, ok := err.(*errors.WispError); ok {
		if we.Component == "" {
			we.WithComponent(c.def.Tag)
		}
		if we.FilePath == "" {
			we.FilePath = c.def.Path
		}
		return we
	}
	return errors.NewCompilationError(errors.ErrCodeEvaluation,
		a.Op()+" "+a.Target()+" failed", err).
		WithComponent(c.def.Tag).
		WithLocation(c.def.Path, 0, 0)
}

// clone deep-copies normalized data so instances never share state.
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = clone(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = clone(child)
		}
		return out
	}
	return v
}
