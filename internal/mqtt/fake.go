package mqtt

import (
	"context"
	"sync"

	"github.com/thatsimonsguy/zone-heater/internal/command"
)

// Message is a recorded publish.
type Message struct {
	Path  string
	Value string
}

// FakeTransport records publishes for test assertions.
type FakeTransport struct {
	mu sync.Mutex

	// Published contains every successful publish in order.
	Published []Message

	// Keepalives counts successful keepalives.
	Keepalives int

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// KeepaliveError, if set, will be returned by Keepalive.
	KeepaliveError error

	// Stalled makes Publish and Keepalive hang until their context is done, like a
	// broker link that is open but no longer acknowledging.
	Stalled bool

	events chan command.Event
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{events: make(chan command.Event, eventBuffer)}
}

func (f *FakeTransport) Publish(ctx context.Context, path, value string) error {
	if err := f.stall(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}
	f.Published = append(f.Published, Message{Path: path, Value: value})
	return nil
}

func (f *FakeTransport) Keepalive(ctx context.Context) error {
	if err := f.stall(ctx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.KeepaliveError != nil {
		return f.KeepaliveError
	}
	f.Keepalives++
	return nil
}

func (f *FakeTransport) stall(ctx context.Context) error {
	f.mu.Lock()
	stalled := f.Stalled
	f.mu.Unlock()

	if !stalled {
		return ctx.Err()
	}
	<-ctx.Done()
	return ctx.Err()
}

// SetStalled toggles Stalled under the lock.
func (f *FakeTransport) SetStalled(stalled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stalled = stalled
}

// Inject queues an inbound command.
func (f *FakeTransport) Inject(ev command.Event) {
	f.events <- ev
}

func (f *FakeTransport) Events() <-chan command.Event {
	return f.events
}

// Messages returns a copy of the recorded publishes.
func (f *FakeTransport) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Message(nil), f.Published...)
}

// Values returns the recorded values for one path.
func (f *FakeTransport) Values(path string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for _, m := range f.Published {
		if m.Path == path {
			out = append(out, m.Value)
		}
	}
	return out
}

func (f *FakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Published = nil
	f.Keepalives = 0
	f.PublishError = nil
	f.KeepaliveError = nil
	f.Stalled = false
}
