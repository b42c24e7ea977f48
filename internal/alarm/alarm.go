// Package alarm watches the PIR motion detector and latches a triggered flag
// while armed.
package alarm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/webhouse/internal/gpio"
	"github.com/sweeney/webhouse/internal/logger"
)

// ErrStart is returned when the monitor goroutine cannot be started.
var ErrStart = errors.New("alarm: cannot start monitor")

// Options holds the monitor timings.
type Options struct {
	// IdlePoll is how often a disarmed monitor re-checks the armed flag.
	IdlePoll time.Duration

	// Debounce is the quiet time after each detected edge.
	Debounce time.Duration

	// Retry is the back-off after a failed edge wait.
	Retry time.Duration
}

// DefaultOptions returns the timings used on the board.
func DefaultOptions() Options {
	return Options{
		IdlePoll: 100 * time.Millisecond,
		Debounce: 2 * time.Second,
		Retry:    time.Second,
	}
}

// Monitor owns the armed and triggered flags. Both are guarded by mu, which
// is never held across an edge wait or a sleep.
type Monitor struct {
	pin  gpio.EdgeWaiter
	opts Options

	mu        sync.Mutex
	armed     bool
	triggered bool
	started   bool

	edges    atomic.Uint64
	triggers atomic.Uint64

	done chan struct{}

	// sleep waits d or until ctx is done; false means ctx is done.
	sleep func(ctx context.Context, d time.Duration) bool
}

// New creates a disarmed monitor on pin.
func New(pin gpio.EdgeWaiter, opts Options) *Monitor {
	return &Monitor{
		pin:   pin,
		opts:  opts,
		done:  make(chan struct{}),
		sleep: sleepCtx,
	}
}

// Arm clears any previous trigger and starts watching for motion.
func (m *Monitor) Arm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggered = false
	m.armed = true
}

// Disarm stops watching. A pending trigger is kept until Reset or Arm.
func (m *Monitor) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = false
}

// Armed reports whether the monitor is armed.
func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// IsTriggered reports whether motion was seen while armed.
func (m *Monitor) IsTriggered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggered
}

// Reset clears the triggered flag.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggered = false
}

// Edges returns the number of edges seen while armed.
func (m *Monitor) Edges() uint64 {
	return m.edges.Load()
}

// Triggers returns how many times the triggered flag was raised.
func (m *Monitor) Triggers() uint64 {
	return m.triggers.Load()
}

// Start runs the monitor in its own goroutine. It may be called once.
func (m *Monitor) Start(ctx context.Context) error {
	if m.pin == nil {
		return ErrStart
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrStart
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		m.Run(ctx)
	}()
	return nil
}

// Wait blocks until a goroutine launched by Start has returned.
// It returns immediately if Start was never called successfully.
func (m *Monitor) Wait() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}
}

// Run watches for motion until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	logger.Debugf(ctx, "alarm: monitor started")
	defer logger.Debugf(ctx, "alarm: monitor stopped")

	for ctx.Err() == nil {
		if !m.Armed() {
			if !m.sleep(ctx, m.opts.IdlePoll) {
				return
			}
			continue
		}

		if err := m.pin.WaitEdge(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf(ctx, "alarm: edge wait failed, retrying in %v: %v", m.opts.Retry, err)
			if !m.sleep(ctx, m.opts.Retry) {
				return
			}
			continue
		}

		if m.raise() {
			logger.Infof(ctx, "alarm: motion detected")
		}

		if !m.sleep(ctx, m.opts.Debounce) {
			return
		}
	}
}

// raise latches the trigger if the monitor is still armed. The armed check
// happens here, after the edge, so a disarm during the wait wins.
func (m *Monitor) raise() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.armed {
		return false
	}
	m.edges.Add(1)
	if m.triggered {
		return false
	}
	m.triggered = true
	m.triggers.Add(1)
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
