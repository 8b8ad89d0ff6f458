package component

import (
	"context"
	"fmt"

	"golang.org/x/net/html"

	"github.com/conneroisu/wisp/internal/dom"
	"github.com/conneroisu/wisp/internal/errors"
	"github.com/conneroisu/wisp/internal/logging"
	"github.com/conneroisu/wisp/internal/observable"
	"github.com/conneroisu/wisp/internal/tmpl"
)

// Phase is a component's lifecycle phase.
type Phase int

const (
	PhaseUnmounted Phase = iota
	PhaseMounted
	PhaseRendering
	PhaseRendered
	PhaseDestroyed
)

// String returns the name of the phase
func (p Phase) String() string {
	switch p {
	case PhaseUnmounted:
		return "unmounted"
	case PhaseMounted:
		return "mounted"
	case PhaseRendering:
		return "rendering"
	case PhaseRendered:
		return "rendered"
	case PhaseDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

type instance struct {
	rt       *Runtime
	def      *Definition
	comp     Component
	host     *html.Node
	root     *html.Node
	state    *observable.Value
	watchers map[string][]WatchFunc
	phase    Phase
	pending  bool
	queued   []func() error
	renders  int
	ctx      context.Context
	cancel   context.CancelFunc
	logger   logging.Logger
}

func newInstance(rt *Runtime, def *Definition, host *html.Node) *instance {
	in := &instance{
		rt:       rt,
		def:      def,
		comp:     def.Factory(),
		host:     host,
		watchers: make(map[string][]WatchFunc),
		logger:   rt.logger.With("tag", def.Tag),
	}
	in.comp.base().inst = in
	return in
}

// attach runs the connect half of the lifecycle: observe, Created, first
// render, Rendered.
func (in *instance) attach(parent context.Context) error {
	in.ctx, in.cancel = context.WithCancel(parent)
	in.phase = PhaseMounted
	in.root = in.host

	if in.def.Shadow {
		shadow := in.rt.doc.ShadowRoot(in.host)
		if shadow == nil {
			var err error
			if shadow, err = in.rt.doc.AttachShadow(in.host); err != nil {
				return errors.Wrap(err, errors.ErrorTypeInternal, errors.ErrCodeInternalError,
					"attach shadow root").WithComponent(in.def.Tag)
			}
		}
		in.root = shadow
	}

	if dp, ok := in.comp.(DataProvider); ok {
		if raw := dp.Data(); raw != nil {
			if err := in.observe(raw); err != nil {
				return err
			}
		}
	}

	if h, ok := in.comp.(CreatedHook); ok {
		h.Created()
	}
	if in.phase == PhaseDestroyed {
		return nil
	}

	if err := in.render(); err != nil {
		return err
	}

	if h, ok := in.comp.(RenderedHook); ok {
		h.Rendered()
	}
	return nil
}

// detach runs the disconnect half: unbind, cancel, Destroyed. Terminal.
func (in *instance) detach() {
	if in.phase == PhaseDestroyed {
		return
	}
	if err := in.rt.binder.Unbind(in.root); err != nil {
		in.logger.Warn(in.ctx, err, "Unbind on destroy failed")
	}
	in.phase = PhaseDestroyed
	if in.cancel != nil {
		in.cancel()
	}
	if h, ok := in.comp.(DestroyedHook); ok {
		h.Destroyed()
	}
}

func (in *instance) observe(raw any) error {
	state, err := observable.Observe(raw, in.onChange)
	if err != nil {
		return in.located(err)
	}
	in.state = state
	return nil
}

func (in *instance) setData(raw any) error {
	if err := in.observe(raw); err != nil {
		return err
	}
	if in.phase == PhaseRendered {
		return in.render()
	}
	if in.phase == PhaseRendering {
		in.pending = true
	}
	return nil
}

// onChange is the store callback: re-render a rendered component, then run
// the watchers for the exact path written. Writes landing mid-render queue
// their watchers until the pending pass has produced the new DOM.
func (in *instance) onChange(c observable.Change) error {
	path := c.Dotted()
	switch in.phase {
	case PhaseDestroyed:
		return nil
	case PhaseRendering:
		in.pending = true
		if len(in.watchers[path]) > 0 {
			in.queued = append(in.queued, func() error {
				return in.runWatchers(path, c.New, c.Old)
			})
		}
		return nil
	case PhaseRendered:
		if err := in.render(); err != nil {
			return err
		}
	}
	return in.runWatchers(path, c.New, c.Old)
}

func (in *instance) runWatchers(path string, value, old any) error {
	for _, fn := range in.watchers[path] {
		if err := fn(path, value, old); err != nil {
			return err
		}
	}
	return nil
}

// flushWatchers runs the watchers queued during the last render. A watcher
// may write again and render again; its own queue drains here too.
func (in *instance) flushWatchers() error {
	for len(in.queued) > 0 && in.phase != PhaseDestroyed {
		next := in.queued[0]
		in.queued = in.queued[1:]
		if err := next(); err != nil {
			in.queued = nil
			return err
		}
	}
	in.queued = nil
	return nil
}

func (in *instance) watch(path string, fn WatchFunc) error {
	if fn == nil {
		return errors.NewConfigurationError(errors.ErrCodeConfigInvalid,
			"watch handler is nil").WithComponent(in.def.Tag)
	}
	if in.state == nil {
		return errors.NewConfigurationError(errors.ErrCodeNoData,
			"cannot watch "+path+": component has no data").WithComponent(in.def.Tag)
	}
	segments := observable.SplitPath(path)
	if !observable.HasPath(in.state, segments) {
		return errors.NewConfigurationError(errors.ErrCodeUnknownPath,
			"cannot watch unknown data path: "+path).
			WithComponent(in.def.Tag).
			WithContext("path", path)
	}
	dotted := joinDotted(segments)
	in.watchers[dotted] = append(in.watchers[dotted], fn)
	return nil
}

// render recomputes the body and replaces the root's content. Writes made
// while rendering are folded into one more pass, up to the configured limit.
func (in *instance) render() error {
	if in.phase == PhaseRendering {
		in.pending = true
		return nil
	}
	if in.phase == PhaseDestroyed {
		return nil
	}

	previous := in.phase
	for pass := 1; ; pass++ {
		if pass > in.rt.maxRenderPasses {
			in.phase = previous
			in.queued = nil
			return errors.NewInternalError(errors.ErrCodeRenderLoop,
				fmt.Sprintf("data kept changing during render after %d passes", in.rt.maxRenderPasses), nil).
				WithComponent(in.def.Tag)
		}

		in.phase = PhaseRendering
		in.pending = false
		if err := in.renderOnce(); err != nil {
			if in.phase != PhaseDestroyed {
				in.phase = previous
			}
			in.queued = nil
			return err
		}
		if in.phase == PhaseDestroyed {
			in.queued = nil
			return nil
		}
		in.phase = PhaseRendered
		previous = PhaseRendered
		if !in.pending {
			return in.flushWatchers()
		}
	}
}

func (in *instance) renderOnce() error {
	op := logging.StartOperation(in.logger, "render")

	body, err := in.body()
	if err != nil {
		op.EndWithError(in.ctx, err)
		return err
	}

	doc := in.rt.doc
	if err := in.rt.binder.Unbind(in.root); err != nil {
		return err
	}
	if err := doc.ClearChildren(in.root); err != nil {
		return err
	}
	if err := doc.SetInnerHTML(in.root, body); err != nil {
		return in.located(err)
	}
	if sp, ok := in.comp.(StylesProvider); ok {
		if css := sp.Styles(); css != "" {
			style := doc.CreateElement("style")
			style.AppendChild(doc.CreateText(css))
			if err := doc.AppendChild(in.root, style); err != nil {
				return err
			}
		}
	}
	if _, err := in.rt.binder.Bind(in.root, in); err != nil {
		return err
	}

	in.renders++
	op.End(in.ctx, "pass", in.renders)
	if in.rt.onRender != nil {
		in.rt.onRender(in.host)
	}
	return nil
}

// body expands includes, compiles and executes the template.
func (in *instance) body() (string, error) {
	tp, ok := in.comp.(TemplateProvider)
	if !ok {
		return "", nil
	}
	source := tp.Template()
	if source == "" {
		return "", nil
	}

	expanded, err := tmpl.Expand(source, in, in.rt.maxIncludeDepth)
	if err != nil {
		return "", in.located(err)
	}
	t, err := tmpl.Compile(expanded)
	if err != nil {
		return "", in.located(err)
	}
	out, err := t.Execute(in.env())
	if err != nil {
		return "", in.located(err)
	}
	return out, nil
}

// located tags err with this component unless a nested component already
// claimed it.
func (in *instance) located(err error) error {
	we, ok := err.(*errors.WispError)
	if !ok {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.ErrCodeInternalError, err.Error()).
			WithComponent(in.def.Tag)
	}
	if we.Component == "" {
		we.WithComponent(in.def.Tag)
		if we.FilePath == "" && in.def.Source != "" {
			we.FilePath = in.def.Source
		}
	}
	return we
}

// Include resolves include() markers: PartialResolver first, then an
// exported method returning string.
func (in *instance) Include(name string) (string, bool) {
	if pr, ok := in.comp.(PartialResolver); ok {
		if text, ok := pr.Partial(name); ok {
			return text, true
		}
	}
	return callPartial(in.comp, name)
}

// Invoke implements events.Dispatcher.
func (in *instance) Invoke(method string, e *dom.Event) error {
	if in.phase == PhaseDestroyed {
		return nil
	}
	var err error
	fn, resolved := in.resolve(method)
	if resolved {
		err = fn(e)
	} else {
		err = callHandler(in.comp, method, e)
	}
	if err != nil && !errors.HasErrorCode(err, errors.ErrCodeBindingMiss) {
		in.rt.report(in.located(err))
	}
	return err
}

func (in *instance) resolve(method string) (func(*dom.Event) error, bool) {
	if mr, ok := in.comp.(MethodResolver); ok {
		return mr.ResolveMethod(method)
	}
	return nil, false
}

func (in *instance) env() map[string]any {
	env := make(map[string]any)
	for name, fn := range exportedMethods(in.comp) {
		env[name] = fn
	}
	if pp, ok := in.comp.(PropsProvider); ok {
		for k, v := range pp.Props() {
			env[k] = v
		}
	}
	env["attrs"] = dom.Attrs(in.host)
	if in.state != nil {
		env["data"] = in.state.Raw()
	} else {
		env["data"] = map[string]any{}
	}
	return env
}

func joinDotted(segments []string) string {
	return observable.Change{Path: segments}.Dotted()
}
