package events

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Envelope is the JSON wire form of an event. Type names the kind and
// Payload holds the kind-specific fields.
type Envelope struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
}

// NewEnvelope wraps ev for delivery.
func NewEnvelope(ev Event, senderID string) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return Envelope{
		Type:     ev.Kind.String(),
		Payload:  payload,
		SenderID: senderID,
	}, nil
}

// Event decodes the payload according to the envelope type.
func (e Envelope) Event() (Event, error) {
	kind, err := ParseKind(e.Type)
	if err != nil {
		return Event{}, err
	}
	var ev Event
	if err := json.Unmarshal(e.Payload, &ev); err != nil {
		return Event{}, fmt.Errorf("error unmarshalling %s payload: %w", e.Type, err)
	}
	ev.Kind = kind
	return ev, nil
}

// Recorder keeps the most recent events in a bounded ring.
type Recorder struct {
	mu   sync.Mutex
	ring []Event
	next int
	full bool
	stop func()
}

// NewRecorder subscribes to every kind on bus and retains the last limit
// events.
func NewRecorder(bus *Bus, limit int) *Recorder {
	if limit < 1 {
		limit = 1
	}
	r := &Recorder{ring: make([]Event, limit)}
	r.stop = bus.SubscribeAll(r.record)
	return r
}

func (r *Recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring[r.next] = ev
	r.next = (r.next + 1) % len(r.ring)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns the retained events, oldest first.
func (r *Recorder) Recent() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Event(nil), r.ring[:r.next]...)
	}
	out := make([]Event, 0, len(r.ring))
	out = append(out, r.ring[r.next:]...)
	return append(out, r.ring[:r.next]...)
}

// Stop unsubscribes the recorder.
func (r *Recorder) Stop() {
	r.stop()
}
