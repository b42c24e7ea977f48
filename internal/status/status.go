// Package status provides a thread-safe status tracker for the webhouse daemon.
// It is written by the session loop and read by HTTP handlers, the metrics
// collector and MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/webhouse/internal/house"
	"github.com/sweeney/webhouse/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	Listen          string
	HTTPAddr        string
	Broker          string
	SessionMs       int64
	DebounceTicks   int
	SampleMs        int64
	AlarmDebounceMs int64
}

// Counters are monotonically increasing session counters.
type Counters struct {
	FramesSent      uint64
	CommandsApplied uint64
	DecodeErrors    uint64
	DeviceErrors    uint64
	Connections     uint64
	Rejected        uint64
	AlarmTriggers   uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	House         house.State
	Ready         bool // at least one full state read completed
	Heating       logic.Counts
	Counters      Counters
	Client        string // remote address of the active client, empty if none
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update records the latest device state and heating counts.
// Called from the session loop on every tick.
func (t *Tracker) Update(state house.State, heating logic.Counts) {
	t.mu.Lock()
	t.snap.House = state
	t.snap.Heating = heating
	t.snap.Ready = true
	t.mu.Unlock()
}

// SetClient records the active client address ("" when none).
func (t *Tracker) SetClient(addr string) {
	t.mu.Lock()
	t.snap.Client = addr
	t.mu.Unlock()
}

// Count applies fn to the counters under the lock.
func (t *Tracker) Count(fn func(c *Counters)) {
	t.mu.Lock()
	fn(&t.snap.Counters)
	t.mu.Unlock()
}

// SetAlarmTriggers records the alarm trigger total.
func (t *Tracker) SetAlarmTriggers(n uint64) {
	t.mu.Lock()
	t.snap.Counters.AlarmTriggers = n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
