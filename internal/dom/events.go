package dom

import "golang.org/x/net/html"

// Event is a DOM event travelling from its target up through ancestors.
type Event struct {
	Type          string
	Target        *html.Node
	CurrentTarget *html.Node
	Value         string // current value of form controls
	Detail        map[string]any

	stopped          bool
	defaultPrevented bool
}

// NewEvent creates an event of the given type.
func NewEvent(eventType string) *Event {
	return &Event{Type: eventType}
}

// StopPropagation keeps the event from reaching further ancestors.
func (e *Event) StopPropagation() { e.stopped = true }

// PreventDefault marks the event as handled.
func (e *Event) PreventDefault() { e.defaultPrevented = true }

// PropagationStopped reports whether StopPropagation was called.
func (e *Event) PropagationStopped() bool { return e.stopped }

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// Listener handles an event.
type Listener func(*Event)

// ListenerID identifies one registration made by AddEventListener.
type ListenerID uint64

type listener struct {
	id    ListenerID
	event string
	fn    Listener
}

// AddEventListener registers fn for events of type event on n.
func (d *Document) AddEventListener(n *html.Node, event string, fn Listener) ListenerID {
	d.lastID++
	d.listeners[n] = append(d.listeners[n], listener{id: d.lastID, event: event, fn: fn})
	return d.lastID
}

// RemoveEventListener drops the registration id from n and reports whether
// it was there. Other listeners on n are kept.
func (d *Document) RemoveEventListener(n *html.Node, id ListenerID) bool {
	registered := d.listeners[n]
	for i, l := range registered {
		if l.id != id {
			continue
		}
		kept := append(registered[:i:i], registered[i+1:]...)
		if len(kept) == 0 {
			delete(d.listeners, n)
		} else {
			d.listeners[n] = kept
		}
		return true
	}
	return false
}

// RemoveListeners drops every listener registered on n.
func (d *Document) RemoveListeners(n *html.Node) {
	delete(d.listeners, n)
}

// HasListeners reports whether n has any listener.
func (d *Document) HasListeners(n *html.Node) bool {
	return len(d.listeners[n]) > 0
}

// ListenerCount returns the number of listeners on n for event.
func (d *Document) ListenerCount(n *html.Node, event string) int {
	count := 0
	for _, l := range d.listeners[n] {
		if l.event == event {
			count++
		}
	}
	return count
}

// Dispatch delivers e to target and then to each ancestor, crossing shadow
// roots to their hosts, until a listener stops propagation. It reports
// whether any listener ran.
func (d *Document) Dispatch(target *html.Node, e *Event) bool {
	e.Target = target
	handled := false

	for n := target; n != nil; n = d.parentOf(n) {
		registered := d.listeners[n]
		if len(registered) == 0 {
			continue
		}
		e.CurrentTarget = n
		// Listeners added while dispatching wait for the next event.
		snapshot := append([]listener(nil), registered...)
		for _, l := range snapshot {
			if l.event != e.Type {
				continue
			}
			l.fn(e)
			handled = true
		}
		if e.stopped {
			break
		}
	}
	e.CurrentTarget = nil
	return handled
}

func (d *Document) parentOf(n *html.Node) *html.Node {
	if n.Parent != nil {
		return n.Parent
	}
	return d.hosts[n]
}
