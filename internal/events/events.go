// Package events carries typed domain events from the ledger, the permission
// registry, the document store, the admin gateway and the bridge endpoints to
// whoever listens: the journal, the websocket feed and metrics.
package events

import (
	"sync"
)

// Event is implemented by every domain event.
type Event interface {
	EventName() string
}

// Sink receives the events of one successful operation, in emission order.
// Implementations must not block.
type Sink interface {
	Publish(evts ...Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(evts ...Event)

func (f SinkFunc) Publish(evts ...Event) { f(evts...) }

// Nop discards everything.
var Nop Sink = SinkFunc(func(...Event) {})

// Fanout publishes to every sink in order.
type Fanout []Sink

func (f Fanout) Publish(evts ...Event) {
	for _, s := range f {
		if s != nil {
			s.Publish(evts...)
		}
	}
}

// Batch buffers the events of an operation until it commits.
type Batch struct {
	evts []Event
}

func (b *Batch) Add(e Event) {
	b.evts = append(b.evts, e)
}

// Flush hands the buffered events to sink and resets the batch.
func (b *Batch) Flush(sink Sink) {
	if len(b.evts) == 0 || sink == nil {
		b.evts = nil
		return
	}
	evts := b.evts
	b.evts = nil
	sink.Publish(evts...)
}

// Recorder is an in-memory Sink used by tests and the journal's memory mode.
type Recorder struct {
	mu   sync.Mutex
	evts []Event
}

func (r *Recorder) Publish(evts ...Event) {
	r.mu.Lock()
	r.evts = append(r.evts, evts...)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.evts))
	copy(out, r.evts)
	return out
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.evts = nil
	r.mu.Unlock()
}
