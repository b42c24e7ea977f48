package mqtt

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/webhouse/internal/protocol"
)

// Mirrored is one telemetry update seen by FakePublisher.
type Mirrored struct {
	At        time.Time
	Telemetry protocol.Telemetry
}

// FakePublisher records published messages for test assertions.
// It is safe for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	telemetry      []Mirrored
	payloads       [][]byte
	systemEvents   []SystemEvent
	systemPayloads [][]byte

	// MirrorError, if set, will be returned by Mirror.
	MirrorError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	closed    bool
	connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Mirror records the telemetry update.
func (f *FakePublisher) Mirror(_ context.Context, at time.Time, t protocol.Telemetry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.MirrorError != nil {
		return f.MirrorError
	}
	payload, err := FormatPayload(at, t)
	if err != nil {
		return err
	}
	f.telemetry = append(f.telemetry, Mirrored{At: at, Telemetry: t})
	f.payloads = append(f.payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// SetConnected controls the return value of IsConnected.
func (f *FakePublisher) SetConnected(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = v
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Closed reports whether Close was called.
func (f *FakePublisher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Telemetry returns a copy of the recorded telemetry updates.
func (f *FakePublisher) Telemetry() []Mirrored {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Mirrored(nil), f.telemetry...)
}

// Payloads returns a copy of the telemetry payloads.
func (f *FakePublisher) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

// SystemEvents returns a copy of the recorded system events.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns a copy of the system event payloads.
func (f *FakePublisher) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}

// Reset clears recorded messages and injected errors.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.telemetry = nil
	f.payloads = nil
	f.systemEvents = nil
	f.systemPayloads = nil
	f.closed = false
	f.connected = false
	f.MirrorError = nil
	f.PublishSystemError = nil
}
