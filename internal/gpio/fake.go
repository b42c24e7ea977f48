package gpio

import (
	"context"
	"sync"
)

// FakeOutput is a test double recording writes.
type FakeOutput struct {
	mu sync.Mutex

	value  int
	writes []int
	closed bool

	// SetError, if set, is returned by SetValue.
	SetError error

	// ValueError, if set, is returned by Value.
	ValueError error
}

// NewFakeOutput creates a FakeOutput at level 0.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// NewFakeOutputAt creates a FakeOutput already driven to v, as if set
// before the process started. No write is recorded.
func NewFakeOutputAt(v int) *FakeOutput {
	return &FakeOutput{value: v}
}

// Value returns the last written level.
func (f *FakeOutput) Value() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ValueError != nil {
		return 0, f.ValueError
	}
	return f.value, nil
}

// SetValue records v.
func (f *FakeOutput) SetValue(v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.value = v
	f.writes = append(f.writes, v)
	return nil
}

// Close marks the output closed and drives it low.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = 0
	f.closed = true
	return nil
}

// Writes returns a copy of all successful writes in order.
func (f *FakeOutput) Writes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.writes))
	copy(out, f.writes)
	return out
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// FakeEdge is a test double for an edge input. Edges are injected with Fire.
type FakeEdge struct {
	edges  chan struct{}
	errs   chan error
	waits  chan struct{}
	mu     sync.Mutex
	closed bool
}

// NewFakeEdge creates a FakeEdge.
func NewFakeEdge() *FakeEdge {
	return &FakeEdge{
		edges: make(chan struct{}),
		errs:  make(chan error),
		waits: make(chan struct{}, 64),
	}
}

// WaitEdge blocks until Fire, FailNext or ctx cancellation.
func (f *FakeEdge) WaitEdge(ctx context.Context) error {
	select {
	case f.waits <- struct{}{}:
	default:
	}

	select {
	case <-f.edges:
		return nil
	case err := <-f.errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fire delivers one edge to a blocked WaitEdge. It blocks until a waiter takes it.
func (f *FakeEdge) Fire(ctx context.Context) error {
	select {
	case f.edges <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FailNext makes a blocked WaitEdge return err.
func (f *FakeEdge) FailNext(ctx context.Context, err error) error {
	select {
	case f.errs <- err:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Waiting returns a channel that receives each time WaitEdge is entered.
func (f *FakeEdge) Waiting() <-chan struct{} {
	return f.waits
}

// Close marks the input closed.
func (f *FakeEdge) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeEdge) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
