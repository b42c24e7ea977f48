// Package session runs the control loop serving one client at a time: it
// applies client commands, ticks the heating controller and reports changed
// telemetry back to the client.
package session

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sweeney/webhouse/internal/house"
	"github.com/sweeney/webhouse/internal/logger"
	"github.com/sweeney/webhouse/internal/logic"
	"github.com/sweeney/webhouse/internal/protocol"
	"github.com/sweeney/webhouse/internal/status"
	"github.com/sweeney/webhouse/internal/transport"
)

// Facade is the device state the loop drives.
type Facade interface {
	Set(q house.Quantity, v int) error
	Get(q house.Quantity) (int, error)
	ReadState() (house.State, error)
}

// Mirror receives telemetry whenever a reported value changes, whether or
// not a client is connected.
type Mirror interface {
	Mirror(ctx context.Context, at time.Time, t protocol.Telemetry) error
}

// Defaults.
const (
	DefaultBufferSize  = 500
	DefaultStatusEvery = 50
)

// Config wires the loop.
type Config struct {
	House   Facade
	Heating *logic.Controller

	// Tracker, if set, receives device state and counters.
	Tracker *status.Tracker

	// AlarmTriggers, if set, reports the alarm trigger total for the tracker.
	AlarmTriggers func() uint64

	Mirrors []Mirror

	// BufferSize is the receive buffer size.
	BufferSize int

	// StatusEvery is how many ticks pass between full state reads for the tracker.
	StatusEvery int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Loop is the session loop. It is not safe for concurrent use; Run owns it.
type Loop struct {
	cfg Config
	buf []byte

	conn    transport.Conn
	pending logic.Flags

	heater      int
	heaterKnown bool

	led      bool
	ledKnown bool

	mirrored    protocol.Telemetry
	hasMirrored bool

	ticks    int
	lastErrs map[house.Quantity]string
}

// New creates a loop.
func New(cfg Config) *Loop {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.StatusEvery <= 0 {
		cfg.StatusEvery = DefaultStatusEvery
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loop{
		cfg:      cfg,
		buf:      make([]byte, cfg.BufferSize),
		lastErrs: make(map[house.Quantity]string),
	}
}

// Run serves until ctx is done. Each tick runs one control cycle; conns
// delivers newly accepted client connections.
func (l *Loop) Run(ctx context.Context, tick <-chan time.Time, conns <-chan transport.Conn) error {
	defer l.drop(ctx, "shutdown")

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-conns:
			l.accept(ctx, c)
		case <-tick:
			l.step(ctx)
		}
	}
}

// accept makes c the active connection, or rejects it if one is active.
func (l *Loop) accept(ctx context.Context, c transport.Conn) {
	if l.conn != nil {
		logger.Warnf(ctx, "session: rejecting %s, already serving %s", c.RemoteAddr(), l.conn.RemoteAddr())
		c.Close()
		l.count(func(n *status.Counters) { n.Rejected++ })
		return
	}

	logger.Infof(ctx, "session: client connected from %s", c.RemoteAddr())
	l.conn = c
	l.pending = logic.AllFlags
	l.count(func(n *status.Counters) { n.Connections++ })
	if l.cfg.Tracker != nil {
		l.cfg.Tracker.SetClient(c.RemoteAddr())
	}
}

func (l *Loop) drop(ctx context.Context, reason string) {
	if l.conn == nil {
		return
	}
	logger.Infof(ctx, "session: client %s disconnected (%s)", l.conn.RemoteAddr(), reason)
	if err := l.conn.Close(); err != nil {
		logger.Debugf(ctx, "session: close %s: %v", l.conn.RemoteAddr(), err)
	}
	l.conn = nil
	l.pending = logic.Flags{}
	if l.cfg.Tracker != nil {
		l.cfg.Tracker.SetClient("")
	}
}

// step runs one control cycle.
func (l *Loop) step(ctx context.Context) {
	l.ticks++
	applied := l.receive(ctx)

	measured, err := l.cfg.House.Get(house.MeasuredTemperature)
	l.noteErr(ctx, house.MeasuredTemperature, err)
	temperatureOK := err == nil

	target, err := l.cfg.House.Get(house.TargetTemperature)
	l.noteErr(ctx, house.TargetTemperature, err)

	triggeredV, err := l.cfg.House.Get(house.AlarmTriggered)
	l.noteErr(ctx, house.AlarmTriggered, err)
	triggered := triggeredV != 0

	l.syncLED(ctx, triggered)
	l.loadHeater(ctx)

	// Without a temperature the controller holds: measured == target resets
	// both counters, so the heater never switches on a stale reading.
	in := logic.Input{Measured: measured, Target: target, Triggered: triggered}
	if !temperatureOK {
		in.Measured = target
	}
	out := l.cfg.Heating.Tick(in)
	if !temperatureOK {
		out.Flags.Temperature = false
	}
	if out.Heater != logic.ActionNone {
		l.applyHeater(ctx, out.Heater, measured, target)
	}
	l.pending = l.pending.Or(out.Flags)

	if temperatureOK {
		l.mirror(ctx, measured, triggered)
	}
	if l.conn != nil {
		l.report(ctx, measured, triggered, temperatureOK)
	}

	if applied || (l.ticks-1)%l.cfg.StatusEvery == 0 {
		l.updateStatus()
	}
}

// receive polls the connection and applies a decoded command.
// It reports whether a command was applied.
func (l *Loop) receive(ctx context.Context) bool {
	if l.conn == nil {
		return false
	}

	n, err := l.conn.TryReceive(l.buf)
	if err != nil {
		switch {
		case errors.Is(err, transport.ErrPeerClosed):
			l.drop(ctx, "close requested")
		case errors.Is(err, io.EOF):
			l.drop(ctx, "eof")
		default:
			logger.Warnf(ctx, "session: receive error: %v", err)
			l.drop(ctx, "receive error")
		}
		return false
	}
	if n == 0 {
		return false
	}

	cmd, err := protocol.Decode(l.buf[:n])
	if err != nil {
		logger.Debugf(ctx, "session: ignoring input: %v", err)
		l.count(func(c *status.Counters) { c.DecodeErrors++ })
		return false
	}

	l.apply(ctx, cmd)
	return true
}

func (l *Loop) apply(ctx context.Context, cmd protocol.Command) {
	set := func(q house.Quantity, v int) {
		if err := l.cfg.House.Set(q, v); err != nil {
			logger.Warnf(ctx, "session: set %s=%d: %v", q, v, err)
			l.count(func(c *status.Counters) { c.DeviceErrors++ })
			return
		}
		logger.Debugf(ctx, "session: set %s=%d", q, v)
	}

	if cmd.TV != nil {
		v := 0
		if *cmd.TV {
			v = 1
		}
		set(house.TV, v)
	}
	if cmd.LampA != nil {
		set(house.LampA, *cmd.LampA)
	}
	if cmd.LampB != nil {
		set(house.LampB, *cmd.LampB)
	}
	if cmd.Target != nil {
		set(house.TargetTemperature, *cmd.Target)
	}
	l.count(func(c *status.Counters) { c.CommandsApplied++ })
}

func (l *Loop) applyHeater(ctx context.Context, a logic.Action, measured, target int) {
	pct := a.Percent()
	if err := l.cfg.House.Set(house.Heater, pct); err != nil {
		logger.Errorf(ctx, "heating: %s failed: %v", a, err)
		l.count(func(c *status.Counters) { c.DeviceErrors++ })
		return
	}
	if !l.heaterKnown || l.heater != pct {
		logger.Infof(ctx, "heating: heater %d%% (measured %d, target %d)", pct, measured, target)
	}
	l.heater = pct
	l.heaterKnown = true
}

// loadHeater reads the heater duty once; afterwards the loop tracks it.
func (l *Loop) loadHeater(ctx context.Context) {
	if l.heaterKnown {
		return
	}
	v, err := l.cfg.House.Get(house.Heater)
	l.noteErr(ctx, house.Heater, err)
	if err == nil {
		l.heater = v
		l.heaterKnown = true
	}
}

// syncLED mirrors the triggered flag on the test LED.
func (l *Loop) syncLED(ctx context.Context, triggered bool) {
	if l.ledKnown && l.led == triggered {
		return
	}
	v := 0
	if triggered {
		v = 1
	}
	err := l.cfg.House.Set(house.LED, v)
	l.noteErr(ctx, house.LED, err)
	if err == nil {
		l.led = triggered
		l.ledKnown = true
	}
}

// report sends pending telemetry to the client. The temperature stays
// pending while it cannot be read.
func (l *Loop) report(ctx context.Context, measured int, triggered, temperatureOK bool) {
	flags := l.pending
	if !temperatureOK {
		flags.Temperature = false
	}
	t := protocol.Telemetry{
		Flags:    flags,
		Measured: measured,
		Heater:   l.heater,
		Burglar:  triggered,
	}
	frame := protocol.Encode(t)
	if frame == nil {
		return
	}

	if err := l.conn.Send(frame); err != nil {
		logger.Warnf(ctx, "session: send failed: %v", err)
		l.drop(ctx, "send error")
		return
	}
	logger.Debugf(ctx, "session: sent %s", frame)
	l.count(func(c *status.Counters) { c.FramesSent++ })

	l.pending = logic.Flags{Temperature: l.pending.Temperature && !flags.Temperature}
	if flags.Temperature {
		l.cfg.Heating.MarkReported(measured)
	}
	if flags.Alarm && triggered {
		if err := l.cfg.House.Set(house.AlarmTriggered, 0); err != nil {
			logger.Warnf(ctx, "session: reset alarm: %v", err)
			return
		}
		l.cfg.Heating.AlarmCleared()
	}
}

// mirror hands changed values to every mirror.
func (l *Loop) mirror(ctx context.Context, measured int, triggered bool) {
	if len(l.cfg.Mirrors) == 0 {
		return
	}

	t := protocol.Telemetry{Measured: measured, Heater: l.heater, Burglar: triggered}
	if l.hasMirrored {
		t.Flags = logic.Flags{
			Temperature: t.Measured != l.mirrored.Measured,
			Heater:      t.Heater != l.mirrored.Heater,
			Alarm:       t.Burglar != l.mirrored.Burglar,
		}
	} else {
		t.Flags = logic.AllFlags
	}
	if !t.Flags.Any() {
		return
	}
	l.mirrored = t
	l.hasMirrored = true

	at := l.cfg.Now()
	for _, m := range l.cfg.Mirrors {
		if err := m.Mirror(ctx, at, t); err != nil {
			logger.Warnf(ctx, "session: mirror telemetry: %v", err)
		}
	}
}

func (l *Loop) updateStatus() {
	tr := l.cfg.Tracker
	if tr == nil {
		return
	}
	state, err := l.cfg.House.ReadState()
	if err != nil {
		logger.Debugf(context.Background(), "session: partial state read: %v", err)
	}
	tr.Update(state, l.cfg.Heating.Counts())
	if l.cfg.AlarmTriggers != nil {
		tr.SetAlarmTriggers(l.cfg.AlarmTriggers())
	}
}

func (l *Loop) count(fn func(c *status.Counters)) {
	if l.cfg.Tracker != nil {
		l.cfg.Tracker.Count(fn)
	}
}

// noteErr logs a device error once per distinct message, so a failing
// device does not flood the log every tick.
func (l *Loop) noteErr(ctx context.Context, q house.Quantity, err error) {
	if err == nil {
		if _, ok := l.lastErrs[q]; ok {
			logger.Infof(ctx, "session: %s recovered", q)
			delete(l.lastErrs, q)
		}
		return
	}

	l.count(func(c *status.Counters) { c.DeviceErrors++ })
	if l.lastErrs[q] == err.Error() {
		return
	}
	l.lastErrs[q] = err.Error()
	logger.Errorf(ctx, "session: %v", err)
}
