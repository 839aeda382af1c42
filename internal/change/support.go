package change

import "sync"

// Event describes a change to a named property of Source.
type Event struct {
	Source   any
	Property string
	Old      any
	New      any
}

// Listener receives change events. Implementations must be comparable
// (typically pointer types) so they can be registered and removed.
type Listener interface {
	PropertyChange(evt Event)
}

// Support is a thread-safe listener set for a single event source.
// The zero value is not usable; create one with NewSupport.
type Support struct {
	source any

	mu        sync.RWMutex
	listeners map[Listener]struct{}
}

// NewSupport creates a Support that stamps events with source.
func NewSupport(source any) *Support {
	return &Support{
		source:    source,
		listeners: make(map[Listener]struct{}),
	}
}

// Add registers l. Adding the same listener twice has no effect.
func (s *Support) Add(l Listener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.listeners[l] = struct{}{}
	s.mu.Unlock()
}

// Remove unregisters l. Removing an unknown listener is a no-op.
func (s *Support) Remove(l Listener) {
	s.mu.Lock()
	delete(s.listeners, l)
	s.mu.Unlock()
}

// Len returns the number of registered listeners.
func (s *Support) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Fire broadcasts a change of property from old to new. Listeners are
// snapshotted before delivery, so a listener may add or remove listeners
// (including itself) while being notified. Delivery order is unspecified.
func (s *Support) Fire(property string, old, new any) {
	evt := Event{Source: s.source, Property: property, Old: old, New: new}
	for _, l := range s.snapshot() {
		l.PropertyChange(evt)
	}
}

func (s *Support) snapshot() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Listener, 0, len(s.listeners))
	for l := range s.listeners {
		out = append(out, l)
	}
	return out
}

// Recorder is a Listener that keeps every event it receives. It is useful
// for hosts that poll for changes and in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// PropertyChange implements Listener.
func (r *Recorder) PropertyChange(evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Forward is a Listener that re-fires every event it receives on a target
// Support, preserving the property name and values.
type Forward struct {
	Target *Support
}

// PropertyChange implements Listener.
func (f *Forward) PropertyChange(evt Event) {
	if f.Target != nil {
		f.Target.Fire(evt.Property, evt.Old, evt.New)
	}
}
