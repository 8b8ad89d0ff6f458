package component

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/conneroisu/wisp/internal/dom"
	"github.com/conneroisu/wisp/internal/errors"
	"github.com/conneroisu/wisp/internal/observable"
)

type counter struct {
	Base
	created   int
	rendered  int
	destroyed int
}

func (c *counter) Data() any {
	return map[string]any{
		"count":   0,
		"profile": map[string]any{"name": "Ana"},
	}
}

func (c *counter) Template() string {
	return `<button on:click="Inc">Count: <%= data.count %></button><span on:click="Missing">?</span>`
}

func (c *counter) Styles() string { return "button{color:red}" }
func (c *counter) Created()       { c.created++ }
func (c *counter) Rendered()      { c.rendered++ }
func (c *counter) Destroyed()     { c.destroyed++ }

func (c *counter) Inc() error {
	n, _ := c.State().Get("count").(int)
	return c.State().Set("count", n+1)
}

func newTestRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt := NewRuntime(dom.NewDocument(), opts...)
	t.Cleanup(rt.Close)
	return rt
}

func mountCounter(t *testing.T) (*Runtime, *html.Node, *counter) {
	t.Helper()
	rt := newTestRuntime(t)
	require.NoError(t, rt.Define("x-counter", func() Component { return &counter{} }))
	host, err := rt.Mount(rt.Document().Body(), "x-counter", nil)
	require.NoError(t, err)
	comp, ok := rt.Instance(host)
	require.True(t, ok)
	return rt, host, comp.(*counter)
}

func click(doc *dom.Document, n *html.Node) bool {
	return doc.Dispatch(n, dom.NewEvent("click"))
}

func TestDefineRequiresTag(t *testing.T) {
	rt := newTestRuntime(t)
	err := rt.Define("  ", func() Component { return &counter{} })
	assert.True(t, errors.IsConfiguration(err))
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeMissingTag))

	require.NoError(t, rt.Define("x-a", func() Component { return &counter{} }))
	err = rt.Define("X-A", func() Component { return &counter{} })
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeDuplicateTag))

	err = rt.Define("x-b", nil)
	assert.True(t, errors.IsConfiguration(err))
}

func TestMountRendersAndRunsHooks(t *testing.T) {
	rt, host, c := mountCounter(t)

	assert.Equal(t,
		`<button on:click="Inc">Count: 0</button><span on:click="Missing">?</span><style>button{color:red}</style>`,
		rt.Document().InnerHTML(host))
	assert.Equal(t, PhaseRendered, c.Phase())
	assert.Equal(t, 1, c.created)
	assert.Equal(t, 1, c.rendered)
	assert.Same(t, host, c.Element())
	assert.Same(t, host, c.Root())
	assert.Len(t, rt.Binder().Bindings(host), 2)
}

func TestWriteRerendersAndRebinds(t *testing.T) {
	rt, host, c := mountCounter(t)
	doc := rt.Document()

	stale := dom.FindTag(host, "button")[0]
	require.True(t, click(doc, stale))
	assert.Contains(t, doc.InnerHTML(host), "Count: 1")

	fresh := dom.FindTag(host, "button")[0]
	assert.NotSame(t, stale, fresh)
	assert.Equal(t, 1, doc.ListenerCount(fresh, "click"))

	// The pre-render node no longer dispatches anything.
	assert.False(t, click(doc, stale))
	assert.Contains(t, doc.InnerHTML(host), "Count: 1")

	require.True(t, click(doc, fresh))
	assert.Contains(t, doc.InnerHTML(host), "Count: 2")
	assert.Equal(t, 1, c.rendered, "Rendered runs once, after the first render")
}

func TestMissingHandlerIsIgnored(t *testing.T) {
	rt, host, _ := mountCounter(t)
	span := dom.FindTag(host, "span")[0]
	assert.NotPanics(t, func() { click(rt.Document(), span) })
	assert.Contains(t, rt.Document().InnerHTML(host), "Count: 0")
}

func TestWatch(t *testing.T) {
	_, _, c := mountCounter(t)

	var calls []string
	require.NoError(t, c.Watch("count", func(path string, value, old any) error {
		calls = append(calls, fmt.Sprintf("%s %v %v", path, value, old))
		return nil
	}))
	require.NoError(t, c.Watch("profile.name", func(path string, value, old any) error {
		calls = append(calls, fmt.Sprintf("%s %v %v", path, value, old))
		return nil
	}))

	require.NoError(t, c.Inc())
	profile, ok := c.State().Get("profile").(*observable.Value)
	require.True(t, ok)
	require.NoError(t, profile.Set("name", "Bea"))

	assert.Equal(t, []string{"count 1 0", "profile.name Bea Ana"}, calls)
}

func TestWatchUnknownPathFailsAtRegistration(t *testing.T) {
	_, _, c := mountCounter(t)

	err := c.Watch("profile.age", func(string, any, any) error { return nil })
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeUnknownPath))

	err = c.Watch("name", func(string, any, any) error { return nil })
	assert.True(t, errors.IsConfiguration(err), "only exact paths are watchable")
}

type stateless struct{ Base }

func (s *stateless) Template() string { return "<p>static</p>" }

func TestWatchWithoutDataFails(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Define("x-static", func() Component { return &stateless{} }))
	host, err := rt.Mount(rt.Document().Body(), "x-static", nil)
	require.NoError(t, err)

	comp, _ := rt.Instance(host)
	err = comp.(*stateless).Watch("x", func(string, any, any) error { return nil })
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeNoData))
	assert.Nil(t, comp.(*stateless).State())
}

func TestDetachUnbindsAndDestroys(t *testing.T) {
	rt, host, c := mountCounter(t)
	doc := rt.Document()
	button := dom.FindTag(host, "button")[0]

	require.NoError(t, doc.RemoveChild(doc.Body(), host))
	assert.Equal(t, PhaseDestroyed, c.Phase())
	assert.Equal(t, 1, c.destroyed)
	assert.Error(t, c.Context().Err())
	assert.Equal(t, 0, rt.Instances())
	assert.False(t, click(doc, button))

	// Writes after destroy no longer render.
	require.NoError(t, c.State().Set("count", 99))
	assert.NotContains(t, doc.InnerHTML(host), "99")

	ran := false
	c.Dispatch(func() { ran = true })
	rt.Loop().Drain()
	assert.False(t, ran)
	assert.Equal(t, 1, c.destroyed)
}

type shadowed struct{ Base }

func (s *shadowed) Data() any        { return map[string]any{"title": "T"} }
func (s *shadowed) Template() string { return `<h1><%= data.title %></h1>` }
func (s *shadowed) Styles() string   { return "h1{margin:0}" }

func TestShadowRoot(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Define("x-shadow", func() Component { return &shadowed{} }, WithShadowRoot()))
	host, err := rt.Mount(rt.Document().Body(), "x-shadow", nil)
	require.NoError(t, err)

	comp, _ := rt.Instance(host)
	root := comp.(*shadowed).Root()
	assert.NotSame(t, host, root)
	assert.Same(t, root, rt.Document().ShadowRoot(host))
	assert.Nil(t, host.FirstChild, "light DOM stays empty")
	assert.Equal(t,
		`<x-shadow><template shadowrootmode="open"><h1>T</h1><style>h1{margin:0}</style></template></x-shadow>`,
		rt.Document().OuterHTML(host))
}

type page struct{ Base }

func (p *page) Data() any        { return map[string]any{"title": "Hi"} }
func (p *page) Template() string { return `<%= include("Header") %><main><%= include("Unknown") %></main>` }
func (p *page) Header() string   { return `<h1><%= data.title %></h1>` }

func TestIncludeUsesMethods(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Define("x-page", func() Component { return &page{} }))
	host, err := rt.Mount(rt.Document().Body(), "x-page", nil)
	require.NoError(t, err)

	out := rt.Document().InnerHTML(host)
	assert.Equal(t, `<h1>Hi</h1><main>&lt;%= include(&#34;Unknown&#34;) %&gt;</main>`, out)
}

type looping struct{ Base }

func (l *looping) Template() string { return `<%= include("Again") %>` }
func (l *looping) Again() string    { return `x<%= include("Again") %>` }

func TestIncludeCycleAbortsMount(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Define("x-loop", func() Component { return &looping{} }))
	_, err := rt.Mount(rt.Document().Body(), "x-loop", nil)
	require.Error(t, err)
	assert.True(t, errors.IsExpansion(err))
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeIncludeCycle))
}

type broken struct{ Base }

func (b *broken) Template() string { return `<p><%= data.x </p>` }

func TestCompilationErrorSurfacesWithComponent(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Define("x-broken", func() Component { return &broken{} }))
	_, err := rt.Mount(rt.Document().Body(), "x-broken", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCompilation(err))
	assert.Contains(t, err.Error(), "component:x-broken")
}

type restless struct{ Base }

func (r *restless) Data() any        { return map[string]any{"n": 0} }
func (r *restless) Template() string { return `<%= Bump() %>` }
func (r *restless) Bump() string {
	n, _ := r.State().Get("n").(int)
	_ = r.State().Set("n", n+1)
	return ""
}

func TestWritesDuringRenderAreBounded(t *testing.T) {
	rt := newTestRuntime(t, WithMaxRenderPasses(3))
	require.NoError(t, rt.Define("x-restless", func() Component { return &restless{} }))
	_, err := rt.Mount(rt.Document().Body(), "x-restless", nil)
	require.Error(t, err)
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeRenderLoop))
}

type child struct{ Base }

func (c *child) Data() any        { return map[string]any{"clicks": 0} }
func (c *child) Template() string { return `<button on:click="Hit"><%= data.clicks %></button>` }
func (c *child) Hit() error {
	n, _ := c.State().Get("clicks").(int)
	return c.State().Set("clicks", n+1)
}

type parent struct {
	Base
	hits int
}

func (p *parent) Data() any { return map[string]any{"label": "p"} }
func (p *parent) Template() string {
	return `<div on:click="Outer"><%= data.label %><x-child></x-child></div>`
}
func (p *parent) Outer() { p.hits++ }

func TestNestedComponentsOwnTheirBindings(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Define("x-child", func() Component { return &child{} }))
	require.NoError(t, rt.Define("x-parent", func() Component { return &parent{} }))

	host, err := rt.Mount(rt.Document().Body(), "x-parent", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, rt.Instances())
	assert.Len(t, rt.Binder().Bindings(host), 1, "the child's button is bound by the child")

	doc := rt.Document()
	button := dom.FindTag(host, "button")[0]
	require.True(t, click(doc, button))
	assert.Equal(t, "1", dom.TextContent(dom.FindTag(host, "button")[0]))

	comp, _ := rt.Instance(host)
	assert.Equal(t, 0, comp.(*parent).hits, "propagation stops at the child's handler")

	// A parent re-render replaces the child with a fresh instance.
	require.NoError(t, comp.(*parent).State().Set("label", "q"))
	assert.Equal(t, 2, rt.Instances())
	assert.Equal(t, "0", dom.TextContent(dom.FindTag(host, "button")[0]))
	assert.True(t, strings.HasPrefix(dom.TextContent(host), "q"))
}

type picker struct{ Base }

func (p *picker) Data() any        { return map[string]any{"n": 0} }
func (p *picker) Template() string { return `<span><%= data.n %></span>` }

type chooser struct {
	Base
	picks int
}

func (c *chooser) Template() string {
	return `<section><x-picker on:click="Pick"></x-picker></section>`
}
func (c *chooser) Pick() { c.picks++ }

func TestHostAttributesBelongToEnclosingTemplate(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Define("x-picker", func() Component { return &picker{} }))
	require.NoError(t, rt.Define("x-chooser", func() Component { return &chooser{} }))

	host, err := rt.Mount(rt.Document().Body(), "x-chooser", nil)
	require.NoError(t, err)
	doc := rt.Document()
	outer, _ := rt.Instance(host)

	inner := dom.FindTag(host, "x-picker")[0]
	assert.Equal(t, 1, doc.ListenerCount(inner, "click"))
	assert.Empty(t, rt.Binder().Bindings(inner))

	require.True(t, click(doc, inner))
	assert.Equal(t, 1, outer.(*chooser).picks)

	// An inner re-render must not strip the enclosing template's listener.
	comp, ok := rt.Instance(inner)
	require.True(t, ok)
	require.NoError(t, comp.(*picker).State().Set("n", 1))
	assert.Equal(t, "1", dom.TextContent(inner))
	assert.Equal(t, 1, doc.ListenerCount(inner, "click"))

	require.True(t, click(doc, inner))
	assert.Equal(t, 2, outer.(*chooser).picks)
}

type props struct{ Base }

func (p *props) Props() map[string]any { return map[string]any{"greeting": "hello"} }
func (p *props) Template() string {
	return `<%= greeting %> <%= attrs.name %> <%= Shout("x") %>`
}
func (p *props) Shout(s string) string { return strings.ToUpper(s) + "!" }

func TestTemplateEnvironment(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Define("x-props", func() Component { return &props{} }))
	host, err := rt.Mount(rt.Document().Body(), "x-props", map[string]string{"name": "bo"})
	require.NoError(t, err)
	assert.Equal(t, "hello bo X!", rt.Document().InnerHTML(host))
}

type resolver struct {
	Base
	got string
}

func (r *resolver) Template() string { return `<a on:click="go">go</a>` }
func (r *resolver) ResolveMethod(name string) (func(*dom.Event) error, bool) {
	return func(e *dom.Event) error {
		r.got = name + ":" + e.Type
		return nil
	}, name == "go"
}

func TestMethodResolver(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Define("x-resolver", func() Component { return &resolver{} }))
	host, err := rt.Mount(rt.Document().Body(), "x-resolver", nil)
	require.NoError(t, err)

	click(rt.Document(), dom.FindTag(host, "a")[0])
	comp, _ := rt.Instance(host)
	assert.Equal(t, "go:click", comp.(*resolver).got)
}

type late struct{ Base }

func (l *late) Template() string { return `<%= data.items == nil ? 0 : len(data.items) %> items` }

func TestSetDataAndDispatch(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Define("x-late", func() Component { return &late{} }))
	host, err := rt.Mount(rt.Document().Body(), "x-late", nil)
	require.NoError(t, err)
	assert.Equal(t, "0 items", rt.Document().InnerHTML(host))

	comp, _ := rt.Instance(host)
	l := comp.(*late)

	done := make(chan struct{})
	go func() {
		l.Dispatch(func() {
			_ = l.SetData(map[string]any{"items": []any{1, 2, 3}})
		})
		close(done)
	}()
	<-done
	assert.Equal(t, "0 items", rt.Document().InnerHTML(host), "nothing runs until the loop does")
	assert.Equal(t, 1, rt.Loop().Drain())
	assert.Equal(t, "3 items", rt.Document().InnerHTML(host))
}

type picky struct{ Base }

func (p *picky) Template() string  { return `<a on:click="Wrong">x</a>` }
func (p *picky) Wrong(n int) error { return nil }

func TestBadHandlerSignatureIsReported(t *testing.T) {
	collector := errors.NewErrorCollector()
	rt := newTestRuntime(t, WithErrorCollector(collector))
	require.NoError(t, rt.Define("x-picky", func() Component { return &picky{} }))
	host, err := rt.Mount(rt.Document().Body(), "x-picky", nil)
	require.NoError(t, err)

	click(rt.Document(), dom.FindTag(host, "a")[0])
	diags := collector.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, errors.ErrCodeBadHandler, diags[0].Code)
	assert.Equal(t, "x-picky", diags[0].Component)
}

func TestRenderHook(t *testing.T) {
	var rendered []*html.Node
	rt := newTestRuntime(t, WithRenderHook(func(host *html.Node) {
		rendered = append(rendered, host)
	}))
	require.NoError(t, rt.Define("x-counter", func() Component { return &counter{} }))
	host, err := rt.Mount(rt.Document().Body(), "x-counter", nil)
	require.NoError(t, err)
	require.Len(t, rendered, 1)
	assert.Same(t, host, rendered[0])

	require.True(t, click(rt.Document(), dom.FindTag(host, "button")[0]))
	assert.Len(t, rendered, 2)
}

type seeder struct {
	Base
	seen []string
}

func (s *seeder) Data() any        { return map[string]any{"count": 0} }
func (s *seeder) Template() string { return `<b><%= data.count %></b>` }
func (s *seeder) Created() {
	_ = s.Watch("count", func(string, any, any) error {
		s.seen = append(s.seen, s.Document().InnerHTML(s.Root()))
		return nil
	})
}

func TestWatchersWaitForPendingRender(t *testing.T) {
	var s *seeder
	seeded := false
	rt := newTestRuntime(t, WithRenderHook(func(*html.Node) {
		if !seeded {
			seeded = true
			require.NoError(t, s.State().Set("count", 5))
			assert.Empty(t, s.seen, "watcher ran before the pending pass")
		}
	}))
	require.NoError(t, rt.Define("x-seeder", func() Component { s = &seeder{}; return s }))
	_, err := rt.Mount(rt.Document().Body(), "x-seeder", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"<b>5</b>"}, s.seen)

	require.NoError(t, s.State().Set("count", 6))
	assert.Equal(t, []string{"<b>5</b>", "<b>6</b>"}, s.seen)
}
