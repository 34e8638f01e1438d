// ABOUTME: Bridge interface with no-op and recording implementations
// ABOUTME: Post failures are the caller's to log; they never stop a conversation

package hostbridge

import "sync"

// Bridge delivers events to the host page.
type Bridge interface {
	Post(ev Event) error
}

// Noop discards every event.
type Noop struct{}

// Post does nothing.
func (Noop) Post(Event) error { return nil }

// Recorder keeps every posted event in order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent Posts record the event and return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Post records ev.
func (r *Recorder) Post(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

var (
	_ Bridge = Noop{}
	_ Bridge = (*Recorder)(nil)
	_ Bridge = (*hubBridge)(nil)
)
