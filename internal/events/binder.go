// Package events binds declarative event attributes such as
// on:click="save" to handler methods, and tears those bindings down by
// replacing bound elements with listener-free clones.
package events

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/wisp/internal/dom"
	"github.com/conneroisu/wisp/internal/errors"
	"github.com/conneroisu/wisp/internal/logging"
)

// DefaultPrefix marks event attributes.
const DefaultPrefix = "on:"

// Dispatcher invokes a named handler with the event that triggered it.
type Dispatcher interface {
	Invoke(method string, e *dom.Event) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(method string, e *dom.Event) error

// Invoke calls f.
func (f DispatcherFunc) Invoke(method string, e *dom.Event) error {
	return f(method, e)
}

// Binding is one (element, event, method) association.
type Binding struct {
	Node   *html.Node
	Event  string
	Method string
}

// Binder attaches and detaches event bindings on a document.
type Binder struct {
	doc      *dom.Document
	prefix   string
	logger   logging.Logger
	boundary func(*html.Node) bool
	bindings map[*html.Node][]Binding
	attached map[*html.Node][]registration
}

// registration is a listener this binder added, so Unbind can remove it
// without touching listeners registered by anyone else on the same node.
type registration struct {
	node *html.Node
	id   dom.ListenerID
}

// Option configures a Binder.
type Option func(*Binder)

// WithPrefix changes the attribute prefix.
func WithPrefix(prefix string) Option {
	return func(b *Binder) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithLogger sets the logger used for dispatch failures.
func WithLogger(logger logging.Logger) Option {
	return func(b *Binder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithBoundary stops the bind walk from descending into elements for which
// fn returns true, typically nested component hosts. The boundary element's
// own attributes are still bound by the enclosing walk. When the bind root
// itself is a boundary, its attributes are left to that enclosing walk.
func WithBoundary(fn func(*html.Node) bool) Option {
	return func(b *Binder) {
		b.boundary = fn
	}
}

// NewBinder creates a binder for doc.
func NewBinder(doc *dom.Document, opts ...Option) *Binder {
	b := &Binder{
		doc:      doc,
		prefix:   DefaultPrefix,
		logger:   logging.NewNop(),
		boundary: func(*html.Node) bool { return false },
		bindings: make(map[*html.Node][]Binding),
		attached: make(map[*html.Node][]registration),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithComponent("events")
	return b
}

// Prefix returns the attribute prefix in use.
func (b *Binder) Prefix() string {
	return b.prefix
}

// Bind walks root depth-first, root included, and registers one listener
// per prefixed attribute. A root that is a boundary element (a component
// host rendering into itself) contributes no bindings of its own. Each
// listener stops propagation and invokes the named method on target.
// Binding a root that is already bound unbinds it first.
func (b *Binder) Bind(root *html.Node, target Dispatcher) ([]Binding, error) {
	if len(b.bindings[root]) > 0 {
		if err := b.Unbind(root); err != nil {
			return nil, err
		}
	}

	var found []Binding
	dom.Walk(root, func(n *html.Node) bool {
		if n == root {
			if n.Type == html.ElementNode && !b.boundary(n) {
				found = append(found, b.scan(n)...)
			}
			return true
		}
		if n.Type != html.ElementNode {
			return true
		}
		found = append(found, b.scan(n)...)
		return !b.boundary(n)
	})

	regs := make([]registration, 0, len(found))
	for _, binding := range found {
		regs = append(regs, registration{node: binding.Node, id: b.attach(binding, target)})
	}
	if len(found) > 0 {
		b.bindings[root] = found
		b.attached[root] = regs
	}
	return found, nil
}

func (b *Binder) scan(n *html.Node) []Binding {
	var out []Binding
	for _, a := range n.Attr {
		if !strings.HasPrefix(a.Key, b.prefix) {
			continue
		}
		event := strings.TrimPrefix(a.Key, b.prefix)
		method := strings.TrimSpace(a.Val)
		if event == "" || method == "" {
			continue
		}
		out = append(out, Binding{Node: n, Event: event, Method: method})
	}
	return out
}

func (b *Binder) attach(binding Binding, target Dispatcher) dom.ListenerID {
	return b.doc.AddEventListener(binding.Node, binding.Event, func(e *dom.Event) {
		e.StopPropagation()
		err := target.Invoke(binding.Method, e)
		switch {
		case err == nil:
		case errors.HasErrorCode(err, errors.ErrCodeBindingMiss):
			b.logger.Debug(context.Background(), "No handler for event binding",
				"event", binding.Event, "method", binding.Method)
		default:
			b.logger.Error(context.Background(), err, "Event handler failed",
				"event", binding.Event, "method", binding.Method)
		}
	})
}

// Bindings returns the bindings currently registered under root.
func (b *Binder) Bindings(root *html.Node) []Binding {
	return append([]Binding(nil), b.bindings[root]...)
}

// Unbind tears down every binding registered under root. Bound elements
// other than root are replaced in place by deep clones, deepest first; root
// keeps its identity and only loses the listeners this binder gave it.
// Stale references to replaced elements no longer dispatch to any handler.
func (b *Binder) Unbind(root *html.Node) error {
	bound := b.bindings[root]
	regs := b.attached[root]
	delete(b.bindings, root)
	delete(b.attached, root)
	if len(bound) == 0 {
		return nil
	}

	for _, r := range regs {
		b.doc.RemoveEventListener(r.node, r.id)
	}

	seen := make(map[*html.Node]bool, len(bound))
	var nodes []*html.Node
	for _, binding := range bound {
		if !seen[binding.Node] {
			seen[binding.Node] = true
			nodes = append(nodes, binding.Node)
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return depth(nodes[i]) > depth(nodes[j])
	})

	for _, n := range nodes {
		if n == root || n.Parent == nil {
			continue
		}
		if err := b.doc.ReplaceChild(n.Parent, b.doc.CloneNode(n, true), n); err != nil {
			return err
		}
	}
	return nil
}

func depth(n *html.Node) int {
	d := 0
	for p := n.Parent; p != nil; p = p.Parent {
		d++
	}
	return d
}
