package component

import (
	"context"

	"golang.org/x/net/html"

	"github.com/conneroisu/wisp/internal/dom"
	"github.com/conneroisu/wisp/internal/errors"
	"github.com/conneroisu/wisp/internal/events"
	"github.com/conneroisu/wisp/internal/logging"
	"github.com/conneroisu/wisp/internal/tmpl"
)

// DefaultMaxRenderPasses bounds how often one render may repeat because
// data changed while it ran.
const DefaultMaxRenderPasses = 8

// Runtime upgrades custom elements in one document and drives their
// lifecycles. It implements dom.Upgrader and is owned by the goroutine that
// runs its Loop.
type Runtime struct {
	doc             *dom.Document
	registry        *Registry
	binder          *events.Binder
	loop            *Loop
	logger          logging.Logger
	collector       *errors.ErrorCollector
	ctx             context.Context
	instances       map[*html.Node]*instance
	prefix          string
	maxIncludeDepth int
	maxRenderPasses int
	onRender        func(host *html.Node)
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithRegistry shares a registry between runtimes.
func WithRegistry(r *Registry) Option {
	return func(rt *Runtime) { rt.registry = r }
}

// WithLogger sets the runtime logger.
func WithLogger(logger logging.Logger) Option {
	return func(rt *Runtime) { rt.logger = logger }
}

// WithLoop sets the event loop.
func WithLoop(l *Loop) Option {
	return func(rt *Runtime) { rt.loop = l }
}

// WithEventPrefix changes the declarative event attribute prefix.
func WithEventPrefix(prefix string) Option {
	return func(rt *Runtime) { rt.prefix = prefix }
}

// WithMaxIncludeDepth bounds include() nesting.
func WithMaxIncludeDepth(n int) Option {
	return func(rt *Runtime) { rt.maxIncludeDepth = n }
}

// WithMaxRenderPasses bounds repeated render passes.
func WithMaxRenderPasses(n int) Option {
	return func(rt *Runtime) { rt.maxRenderPasses = n }
}

// WithErrorCollector records asynchronous failures as diagnostics.
func WithErrorCollector(c *errors.ErrorCollector) Option {
	return func(rt *Runtime) { rt.collector = c }
}

// WithContext sets the parent of every instance context.
func WithContext(ctx context.Context) Option {
	return func(rt *Runtime) { rt.ctx = ctx }
}

// WithRenderHook calls fn on the loop after every completed render pass.
func WithRenderHook(fn func(host *html.Node)) Option {
	return func(rt *Runtime) { rt.onRender = fn }
}

// NewRuntime creates a runtime for doc and installs it as the document's
// upgrader.
func NewRuntime(doc *dom.Document, opts ...Option) *Runtime {
	rt := &Runtime{
		doc:             doc,
		logger:          logging.NewNop(),
		ctx:             context.Background(),
		instances:       make(map[*html.Node]*instance),
		prefix:          events.DefaultPrefix,
		maxIncludeDepth: tmpl.DefaultMaxIncludeDepth,
		maxRenderPasses: DefaultMaxRenderPasses,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.registry == nil {
		rt.registry = NewRegistry()
	}
	if rt.loop == nil {
		rt.loop = NewLoop(0)
	}
	if rt.maxRenderPasses <= 0 {
		rt.maxRenderPasses = DefaultMaxRenderPasses
	}
	rt.logger = rt.logger.WithComponent("runtime")
	rt.binder = events.NewBinder(doc,
		events.WithPrefix(rt.prefix),
		events.WithLogger(rt.logger),
		events.WithBoundary(rt.isHost),
	)
	doc.SetUpgrader(rt)
	return rt
}

// Define registers a component type on the runtime's registry.
func (rt *Runtime) Define(tag string, factory Factory, opts ...DefineOption) error {
	return rt.registry.Define(tag, factory, opts...)
}

// Document returns the runtime's document.
func (rt *Runtime) Document() *dom.Document { return rt.doc }

// Registry returns the definition registry.
func (rt *Runtime) Registry() *Registry { return rt.registry }

// Loop returns the event loop.
func (rt *Runtime) Loop() *Loop { return rt.loop }

// Binder returns the event binder.
func (rt *Runtime) Binder() *events.Binder { return rt.binder }

// Mount creates an element and appends it to parent, which upgrades it when
// parent is connected.
func (rt *Runtime) Mount(parent *html.Node, tag string, attrs map[string]string) (*html.Node, error) {
	el := rt.doc.CreateElement(tag)
	for k, v := range attrs {
		dom.SetAttr(el, k, v)
	}
	if err := rt.doc.AppendChild(parent, el); err != nil {
		return el, err
	}
	return el, nil
}

// Instance returns the component upgraded from host.
func (rt *Runtime) Instance(host *html.Node) (Component, bool) {
	in, ok := rt.instances[host]
	if !ok {
		return nil, false
	}
	return in.comp, true
}

// Instances returns the number of live component instances.
func (rt *Runtime) Instances() int {
	return len(rt.instances)
}

// Connected implements dom.Upgrader.
func (rt *Runtime) Connected(n *html.Node) (bool, error) {
	if _, live := rt.instances[n]; live {
		return true, nil
	}
	def, ok := rt.registry.Get(n.Data)
	if !ok {
		return false, nil
	}

	in := newInstance(rt, def, n)
	rt.instances[n] = in
	rt.logger.Debug(rt.ctx, "Component connected", "tag", def.Tag)
	return true, in.attach(rt.ctx)
}

// Disconnected implements dom.Upgrader.
func (rt *Runtime) Disconnected(n *html.Node) {
	in, ok := rt.instances[n]
	if !ok {
		return
	}
	delete(rt.instances, n)
	in.detach()
	rt.logger.Debug(rt.ctx, "Component disconnected", "tag", in.def.Tag)
}

// Close destroys every live instance and stops the loop.
func (rt *Runtime) Close() {
	for n, in := range rt.instances {
		delete(rt.instances, n)
		in.detach()
	}
	rt.loop.Close()
}

func (rt *Runtime) isHost(n *html.Node) bool {
	if _, ok := rt.instances[n]; ok {
		return true
	}
	_, ok := rt.registry.Get(n.Data)
	return ok
}

func (rt *Runtime) report(err error) {
	if rt.collector != nil {
		rt.collector.Add(errors.DiagnosticFromError(err, errors.ErrorSeverityError))
	}
}
