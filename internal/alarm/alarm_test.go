package alarm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/webhouse/internal/gpio"
)

var testOpts = Options{
	IdlePoll: 100 * time.Millisecond,
	Debounce: 2 * time.Second,
	Retry:    time.Second,
}

// steppedMonitor returns a monitor whose sleeps are reported on the returned
// channel instead of actually waiting.
func steppedMonitor(pin gpio.EdgeWaiter) (*Monitor, <-chan time.Duration) {
	m := New(pin, testOpts)
	slept := make(chan time.Duration)
	m.sleep = func(ctx context.Context, d time.Duration) bool {
		select {
		case slept <- d:
			return true
		case <-ctx.Done():
			return false
		}
	}
	return m, slept
}

func nextSleep(t *testing.T, slept <-chan time.Duration) time.Duration {
	t.Helper()
	select {
	case d := <-slept:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for monitor to sleep")
		return 0
	}
}

func waitForEdgeWait(t *testing.T, pin *gpio.FakeEdge) {
	t.Helper()
	select {
	case <-pin.Waiting():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for monitor to wait on edge")
	}
}

func TestFlags(t *testing.T) {
	m := New(gpio.NewFakeEdge(), testOpts)

	assert.False(t, m.Armed())
	assert.False(t, m.IsTriggered())

	m.Arm()
	assert.True(t, m.Armed())

	m.mu.Lock()
	m.triggered = true
	m.mu.Unlock()

	m.Disarm()
	assert.False(t, m.Armed())
	assert.True(t, m.IsTriggered(), "disarm keeps the trigger")

	m.Arm()
	assert.False(t, m.IsTriggered(), "arm clears the trigger")

	m.mu.Lock()
	m.triggered = true
	m.mu.Unlock()
	m.Reset()
	assert.False(t, m.IsTriggered())
}

func TestDisarmedPollsIdle(t *testing.T) {
	m, slept := steppedMonitor(gpio.NewFakeEdge())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go m.Run(ctx)

	assert.Equal(t, testOpts.IdlePoll, nextSleep(t, slept))
	assert.Equal(t, testOpts.IdlePoll, nextSleep(t, slept))
}

func TestEdgeWhileArmedTriggers(t *testing.T) {
	pin := gpio.NewFakeEdge()
	m, slept := steppedMonitor(pin)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Arm()
	go m.Run(ctx)

	waitForEdgeWait(t, pin)
	require.NoError(t, pin.Fire(ctx))

	assert.Equal(t, testOpts.Debounce, nextSleep(t, slept))
	assert.True(t, m.IsTriggered())
	assert.Equal(t, uint64(1), m.Triggers())

	// A second edge while still triggered does not raise again.
	waitForEdgeWait(t, pin)
	require.NoError(t, pin.Fire(ctx))
	assert.Equal(t, testOpts.Debounce, nextSleep(t, slept))
	assert.Equal(t, uint64(2), m.Edges())
	assert.Equal(t, uint64(1), m.Triggers())
}

func TestDisarmDuringWaitDoesNotTrigger(t *testing.T) {
	pin := gpio.NewFakeEdge()
	m, slept := steppedMonitor(pin)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Arm()
	go m.Run(ctx)

	waitForEdgeWait(t, pin)
	m.Disarm()
	require.NoError(t, pin.Fire(ctx))

	assert.Equal(t, testOpts.Debounce, nextSleep(t, slept))
	assert.False(t, m.IsTriggered())
	assert.Equal(t, uint64(0), m.Edges())

	// Back to idle polling.
	assert.Equal(t, testOpts.IdlePoll, nextSleep(t, slept))
}

func TestWaitErrorRetries(t *testing.T) {
	pin := gpio.NewFakeEdge()
	m, slept := steppedMonitor(pin)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Arm()
	go m.Run(ctx)

	waitForEdgeWait(t, pin)
	require.NoError(t, pin.FailNext(ctx, errors.New("poll failed")))

	assert.Equal(t, testOpts.Retry, nextSleep(t, slept))
	assert.False(t, m.IsTriggered())

	// Still alive and waiting again.
	waitForEdgeWait(t, pin)
	require.NoError(t, pin.Fire(ctx))
	assert.Equal(t, testOpts.Debounce, nextSleep(t, slept))
	assert.True(t, m.IsTriggered())
}

func TestStartOnceAndWait(t *testing.T) {
	pin := gpio.NewFakeEdge()
	m := New(pin, testOpts)
	ctx, cancel := context.WithCancel(context.Background())

	m.Arm()
	require.NoError(t, m.Start(ctx))
	require.ErrorIs(t, m.Start(ctx), ErrStart)

	waitForEdgeWait(t, pin)
	cancel()

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop on cancel")
	}
}

func TestStartWithoutPin(t *testing.T) {
	m := New(nil, testOpts)
	require.ErrorIs(t, m.Start(context.Background()), ErrStart)
	m.Wait()
}
