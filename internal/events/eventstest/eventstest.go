// Package eventstest provides helpers for tests that publish or consume events.
package eventstest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/ariefcatur/go-saga-commerce/internal/events"
	"go.uber.org/zap"
)

// Recorder is a subscriber that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

// NewBus returns a memory bus plus a publisher connection and a recorder subscribed to types.
func NewBus(t *testing.T, source string, types ...string) (*events.MemoryBus, *events.Publisher, *Recorder) {
	t.Helper()
	bus := events.NewMemoryBus(zap.NewNop())
	pub := events.NewPublisher(bus.Connect(), source, zap.NewNop())
	rec := &Recorder{}
	conn := bus.Connect()
	for _, typ := range types {
		if err := conn.Subscribe(context.Background(), typ, rec.handle); err != nil {
			t.Fatalf("subscribe %s: %v", typ, err)
		}
	}
	return bus, pub, rec
}

func (r *Recorder) handle(_ context.Context, payload []byte) error {
	var ev events.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

// OfType returns the recorded events with the given type, in arrival order.
func (r *Recorder) OfType(typ string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// FailingChannel rejects every publish with Err.
type FailingChannel struct {
	Err error
}

func (f FailingChannel) Publish(context.Context, string, []byte) error { return f.Err }
func (f FailingChannel) Subscribe(context.Context, string, events.MessageHandler) error {
	return f.Err
}
func (f FailingChannel) Unsubscribe(context.Context, string) error { return nil }
func (f FailingChannel) Close() error                              { return nil }
