package component

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/wisp/internal/errors"
)

// Factory creates a fresh component instance for one element.
type Factory func() Component

// Definition describes a custom element type.
type Definition struct {
	Tag       string
	Factory   Factory
	Shadow    bool
	Source    string
	DefinedAt time.Time
}

// DefineOption configures a Definition.
type DefineOption func(*Definition)

// WithShadowRoot renders instances into a shadow root instead of the
// element body.
func WithShadowRoot() DefineOption {
	return func(d *Definition) { d.Shadow = true }
}

// WithSource records the file a definition was loaded from.
func WithSource(path string) DefineOption {
	return func(d *Definition) { d.Source = path }
}

// RegistryEvent represents a change in the registry
type RegistryEvent struct {
	Type       EventType
	Definition *Definition
	Timestamp  time.Time
}

// EventType represents the type of registry event
type EventType int

const (
	EventTypeAdded EventType = iota
	EventTypeUpdated
	EventTypeRemoved
)

// String returns the name of the event type
func (t EventType) String() string {
	switch t {
	case EventTypeAdded:
		return "added"
	case EventTypeUpdated:
		return "updated"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Registry holds custom element definitions by tag. It is safe for
// concurrent use and may be shared by several runtimes.
type Registry struct {
	definitions map[string]*Definition
	mutex       sync.RWMutex
	watchers    []chan RegistryEvent
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]*Definition),
		watchers:    make([]chan RegistryEvent, 0),
	}
}

// Define registers a new tag. An empty tag or nil factory is a
// configuration error, as is a tag that is already defined.
func (r *Registry) Define(tag string, factory Factory, opts ...DefineOption) error {
	def, err := newDefinition(tag, factory, opts)
	if err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.definitions[def.Tag]; exists {
		return errors.NewConfigurationError(errors.ErrCodeDuplicateTag,
			"tag already defined: "+def.Tag).WithComponent(def.Tag)
	}
	r.definitions[def.Tag] = def
	r.notify(EventTypeAdded, def)
	return nil
}

// Replace adds or updates a definition. Used for hot reload.
func (r *Registry) Replace(tag string, factory Factory, opts ...DefineOption) error {
	def, err := newDefinition(tag, factory, opts)
	if err != nil {
		return err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	eventType := EventTypeAdded
	if _, exists := r.definitions[def.Tag]; exists {
		eventType = EventTypeUpdated
	}
	r.definitions[def.Tag] = def
	r.notify(eventType, def)
	return nil
}

func newDefinition(tag string, factory Factory, opts []DefineOption) (*Definition, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return nil, errors.NewConfigurationError(errors.ErrCodeMissingTag,
			"component definition requires a tag name")
	}
	if factory == nil {
		return nil, errors.NewConfigurationError(errors.ErrCodeConfigInvalid,
			"component definition requires a factory").WithComponent(tag)
	}

	def := &Definition{Tag: tag, Factory: factory, DefinedAt: time.Now()}
	for _, opt := range opts {
		opt(def)
	}
	return def, nil
}

// Get retrieves a definition by tag
func (r *Registry) Get(tag string) (*Definition, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	def, exists := r.definitions[tag]
	return def, exists
}

// Tags returns every defined tag, sorted
func (r *Registry) Tags() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	tags := make([]string, 0, len(r.definitions))
	for tag := range r.definitions {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Remove removes a definition. Live instances are unaffected.
func (r *Registry) Remove(tag string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	def, exists := r.definitions[tag]
	if !exists {
		return
	}
	delete(r.definitions, tag)
	r.notify(EventTypeRemoved, def)
}

// Watch returns a channel that receives registry events
func (r *Registry) Watch() <-chan RegistryEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan RegistryEvent, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch removes a watcher channel and closes it
func (r *Registry) UnWatch(ch <-chan RegistryEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// Count returns the number of definitions
func (r *Registry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.definitions)
}

// notify must be called with the lock held
func (r *Registry) notify(eventType EventType, def *Definition) {
	event := RegistryEvent{
		Type:       eventType,
		Definition: def,
		Timestamp:  time.Now(),
	}
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}
