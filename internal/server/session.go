package server

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/conneroisu/wisp/internal/component"
	"github.com/conneroisu/wisp/internal/config"
	"github.com/conneroisu/wisp/internal/dom"
	"github.com/conneroisu/wisp/internal/errors"
	"github.com/conneroisu/wisp/internal/logging"
)

// IDAttr marks elements with listeners in mirrored markup. Browser events
// name their target by this id.
const IDAttr = "data-wisp-id"

// EventMessage is a DOM event forwarded by the browser.
type EventMessage struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Event string `json:"event"`
	Value string `json:"value,omitempty"`
	Rev   int    `json:"rev,omitempty"`
}

type sessionOptions struct {
	runtime   config.RuntimeConfig
	logger    logging.Logger
	collector *errors.ErrorCollector
}

// Session is one mirrored document. Everything touching the document runs
// on the session loop.
type Session struct {
	ID  string
	Tag string

	doc    *dom.Document
	rt     *component.Runtime
	loop   *component.Loop
	host   *html.Node
	ctx    context.Context
	cancel context.CancelFunc
	logger logging.Logger

	// loop-owned
	ids      map[string]*html.Node
	rev      int
	flushing bool

	mu       sync.Mutex
	markup   string
	current  int
	clients  map[*Client]struct{}
	lastSeen time.Time
}

func newSession(reg *component.Registry, tag string, attrs map[string]string, opts sessionOptions) (*Session, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       uuid.NewString(),
		Tag:      tag,
		doc:      dom.NewDocument(),
		loop:     component.NewLoop(0),
		ctx:      ctx,
		cancel:   cancel,
		clients:  make(map[*Client]struct{}),
		lastSeen: time.Now(),
	}
	s.logger = opts.logger.With("session", s.ID)

	rtOpts := []component.Option{
		component.WithRegistry(reg),
		component.WithLoop(s.loop),
		component.WithLogger(s.logger),
		component.WithContext(ctx),
		component.WithRenderHook(s.scheduleFlush),
	}
	if opts.collector != nil {
		rtOpts = append(rtOpts, component.WithErrorCollector(opts.collector))
	}
	if opts.runtime.EventPrefix != "" {
		rtOpts = append(rtOpts, component.WithEventPrefix(opts.runtime.EventPrefix))
	}
	if opts.runtime.MaxIncludeDepth > 0 {
		rtOpts = append(rtOpts, component.WithMaxIncludeDepth(opts.runtime.MaxIncludeDepth))
	}
	if opts.runtime.MaxRenderPasses > 0 {
		rtOpts = append(rtOpts, component.WithMaxRenderPasses(opts.runtime.MaxRenderPasses))
	}
	s.rt = component.NewRuntime(s.doc, rtOpts...)

	go func() { _ = s.loop.Run(ctx) }()

	err := s.loop.Call(ctx, func() error {
		// the snapshot below covers renders made while mounting
		s.flushing = true
		host, err := s.rt.Mount(s.doc.Body(), tag, attrs)
		s.host = host
		s.flushing = false
		s.snapshot()
		return err
	})
	return s, err
}

// scheduleFlush runs on the loop after each render pass. Passes that
// happen in the same callback share one flush.
func (s *Session) scheduleFlush(*html.Node) {
	if s.flushing {
		return
	}
	s.flushing = true
	go s.loop.Post(s.flush)
}

func (s *Session) flush() {
	s.flushing = false
	markup := s.snapshot()
	s.push(UpdateMessage{
		Type:      MessageRender,
		Target:    s.ID,
		Content:   markup,
		Rev:       s.rev,
		Timestamp: time.Now(),
	})
}

// snapshot serializes the body with ids on every listening element and
// remembers which node each id names.
func (s *Session) snapshot() string {
	s.rev++
	ids := make(map[string]*html.Node)
	clone := s.doc.ComposedClone(s.doc.Body(), func(orig, c *html.Node) {
		if s.doc.HasListeners(orig) {
			id := strconv.Itoa(len(ids) + 1)
			ids[id] = orig
			dom.SetAttr(c, IDAttr, id)
		}
	})
	s.ids = ids
	markup := dom.RenderChildren(clone)

	s.mu.Lock()
	s.markup = markup
	s.current = s.rev
	s.mu.Unlock()
	return markup
}

// Snapshot returns the latest mirrored markup and its revision.
func (s *Session) Snapshot() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markup, s.current
}

// HandleEvent dispatches a browser event on the loop. Events aimed at an
// older revision or at a node that is gone are dropped.
func (s *Session) HandleEvent(m EventMessage) bool {
	return s.loop.Post(func() {
		if m.Rev != 0 && m.Rev != s.rev {
			s.logger.Debug(s.ctx, "Dropping stale event", "rev", m.Rev, "current", s.rev)
			return
		}
		target, ok := s.ids[m.ID]
		if !ok || !s.doc.IsConnected(target) {
			return
		}
		e := dom.NewEvent(m.Event)
		e.Value = m.Value
		s.doc.Dispatch(target, e)
	})
}

// Call runs fn on the session loop.
func (s *Session) Call(ctx context.Context, fn func(doc *dom.Document, host *html.Node) error) error {
	return s.loop.Call(ctx, func() error { return fn(s.doc, s.host) })
}

func (s *Session) attach(c *Client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.lastSeen = time.Now()
	markup, rev := s.markup, s.current
	s.mu.Unlock()

	c.enqueue(UpdateMessage{
		Type:      MessageRender,
		Target:    s.ID,
		Content:   markup,
		Rev:       rev,
		Timestamp: time.Now(),
	})
}

// detach removes c and reports how many clients remain.
func (s *Session) detach(c *Client) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
	s.lastSeen = time.Now()
	return len(s.clients)
}

func (s *Session) push(msg UpdateMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.enqueue(msg)
	}
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) > 0 {
		return 0
	}
	return now.Sub(s.lastSeen)
}

// Close destroys the session's components and stops its loop.
func (s *Session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.loop.Call(ctx, func() error {
		s.rt.Close()
		return nil
	})
	s.loop.Close()
	s.cancel()
}
