// Package component runs custom elements: it observes each instance's data,
// renders its template into the element (or its shadow root), binds
// declarative event attributes, and re-renders on every observed write.
package component

import (
	"context"

	"golang.org/x/net/html"

	"github.com/conneroisu/wisp/internal/dom"
	"github.com/conneroisu/wisp/internal/errors"
	"github.com/conneroisu/wisp/internal/observable"
)

// Component is satisfied by any struct that embeds Base.
type Component interface {
	base() *Base
}

func (b *Base) base() *Base { return b }

// Optional hooks a component may implement.
type (
	// DataProvider declares the initial data to observe.
	DataProvider interface{ Data() any }
	// TemplateProvider declares the template source.
	TemplateProvider interface{ Template() string }
	// StylesProvider declares CSS injected after the markup on every render.
	StylesProvider interface{ Styles() string }
	// PropsProvider adds extra names to the template environment.
	PropsProvider interface{ Props() map[string]any }
	// CreatedHook runs once the data is observed, before the first render.
	CreatedHook interface{ Created() }
	// RenderedHook runs after the first render.
	RenderedHook interface{ Rendered() }
	// DestroyedHook runs after the element leaves the document.
	DestroyedHook interface{ Destroyed() }
	// MethodResolver supplies event handlers by name, ahead of exported
	// methods.
	MethodResolver interface {
		ResolveMethod(name string) (func(*dom.Event) error, bool)
	}
	// PartialResolver supplies include() targets by name, ahead of
	// exported methods.
	PartialResolver interface {
		Partial(name string) (string, bool)
	}
)

// WatchFunc observes one data path. It receives the dotted path, the new
// value and the previous value.
type WatchFunc func(path string, value, old any) error

// Base provides the runtime-facing half of a component. Embed it.
//
// Example:
//
//	type counter struct {
//	    component.Base
//	}
//
//	func (c *counter) Data() any         { return map[string]any{"n": 0} }
//	func (c *counter) Template() string  { return `<button on:click="Inc"><%= data.n %></button>` }
//	func (c *counter) Inc() error        { return c.State().Set("n", c.State().Get("n").(int)+1) }
type Base struct {
	inst *instance
}

// State returns the observed data, or nil when the component declares none.
func (b *Base) State() *observable.Value {
	if b.inst == nil {
		return nil
	}
	return b.inst.state
}

// Watch registers fn for writes to the exact dotted path. The path must
// exist in the current data.
func (b *Base) Watch(path string, fn WatchFunc) error {
	if b.inst == nil {
		return errors.NewConfigurationError(errors.ErrCodeNoData, "component is not mounted")
	}
	return b.inst.watch(path, fn)
}

// Element returns the host element.
func (b *Base) Element() *html.Node {
	if b.inst == nil {
		return nil
	}
	return b.inst.host
}

// Root returns the node the component renders into: its shadow root or the
// host element itself.
func (b *Base) Root() *html.Node {
	if b.inst == nil {
		return nil
	}
	return b.inst.root
}

// Document returns the document the component lives in.
func (b *Base) Document() *dom.Document {
	if b.inst == nil {
		return nil
	}
	return b.inst.rt.doc
}

// Attr returns a host attribute, or "" when it is absent.
func (b *Base) Attr(name string) string {
	if b.inst == nil {
		return ""
	}
	v, _ := dom.GetAttr(b.inst.host, name)
	return v
}

// Context is canceled when the component is destroyed.
func (b *Base) Context() context.Context {
	if b.inst == nil {
		return context.Background()
	}
	return b.inst.ctx
}

// Phase reports the lifecycle phase.
func (b *Base) Phase() Phase {
	if b.inst == nil {
		return PhaseUnmounted
	}
	return b.inst.phase
}

// Dispatch schedules fn on the runtime's event loop and is safe to call from
// any goroutine. fn is dropped if the component is destroyed first.
func (b *Base) Dispatch(fn func()) bool {
	if b.inst == nil || fn == nil {
		return false
	}
	in := b.inst
	return in.rt.loop.Post(func() {
		if in.phase == PhaseDestroyed || in.ctx.Err() != nil {
			return
		}
		fn()
	})
}

// SetData replaces the observed data and re-renders a rendered component.
func (b *Base) SetData(v any) error {
	if b.inst == nil {
		return errors.NewConfigurationError(errors.ErrCodeNoData, "component is not mounted")
	}
	return b.inst.setData(v)
}

// Render re-renders the component immediately.
func (b *Base) Render() error {
	if b.inst == nil {
		return errors.NewConfigurationError(errors.ErrCodeNoData, "component is not mounted")
	}
	return b.inst.render()
}
