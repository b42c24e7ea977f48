// Package house maps the logical quantities of the webhouse (TV, lamps,
// heater, temperatures, alarm) onto the hardware collaborators that drive
// them.
package house

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/webhouse/internal/gpio"
	"github.com/sweeney/webhouse/internal/lm75"
	"github.com/sweeney/webhouse/internal/pwm"
)

// Alarm is the part of the motion alarm the house exposes as quantities.
type Alarm interface {
	Arm()
	Disarm()
	Armed() bool
	IsTriggered() bool
	Reset()
}

// Hardware bundles the collaborators behind each quantity.
type Hardware struct {
	TV     gpio.Output
	LED    gpio.Output
	LampA  pwm.Channel
	LampB  pwm.Channel
	Heater pwm.Channel
	Sensor lm75.Sensor
	Alarm  Alarm
}

// Options tunes the house.
type Options struct {
	// Period is the pwm period in nanoseconds. Must be at least 100.
	Period uint32

	// TemperatureOffset is subtracted from every raw sensor reading.
	TemperatureOffset int

	// SampleInterval is the minimum time between two sensor reads.
	SampleInterval time.Duration

	// Target is the initial target temperature.
	Target int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Defaults matching the webhouse board.
const (
	DefaultPeriod            = 10000000
	DefaultTemperatureOffset = 10
	DefaultSampleInterval    = time.Second
	DefaultTarget            = 20
)

// DefaultOptions returns the board defaults.
func DefaultOptions() Options {
	return Options{
		Period:            DefaultPeriod,
		TemperatureOffset: DefaultTemperatureOffset,
		SampleInterval:    DefaultSampleInterval,
		Target:            DefaultTarget,
	}
}

// House is the device state facade. It is safe for concurrent use.
type House struct {
	mu   sync.Mutex
	hw   Hardware
	opts Options

	target int

	// measured temperature cache
	sampled    bool
	sampledAt  time.Time
	measured   int
	measureErr error
	hasValue   bool
}

// Open initialises every pwm channel to its off duty and running, and drives
// the digital outputs low.
func Open(hw Hardware, opts Options) (*House, error) {
	if hw.TV == nil || hw.LED == nil || hw.LampA == nil || hw.LampB == nil ||
		hw.Heater == nil || hw.Sensor == nil || hw.Alarm == nil {
		return nil, ErrMissingHardware
	}
	if opts.Period < 100 {
		return nil, fmt.Errorf("%w: pwm period %d below 100ns", ErrInvalidValue, opts.Period)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	h := &House{hw: hw, opts: opts, target: opts.Target}

	for _, q := range []Quantity{LampA, LampB, Heater} {
		ch := h.channel(q)
		if err := ch.SetPeriod(opts.Period); err != nil {
			return nil, deviceErr(q, "open", err)
		}
		if err := ch.SetDuty(dutyFor(opts.Period, 0)); err != nil {
			return nil, deviceErr(q, "open", err)
		}
		if err := ch.SetRunning(true); err != nil {
			return nil, deviceErr(q, "open", err)
		}
	}
	if err := hw.TV.SetValue(0); err != nil {
		return nil, deviceErr(TV, "open", err)
	}
	if err := hw.LED.SetValue(0); err != nil {
		return nil, deviceErr(LED, "open", err)
	}

	return h, nil
}

// Peek reads every quantity without initialising the hardware first.
// Used for one-shot inspection; actuators keep whatever state they are in.
func Peek(hw Hardware, opts Options) (State, error) {
	if hw.TV == nil || hw.LED == nil || hw.LampA == nil || hw.LampB == nil ||
		hw.Heater == nil || hw.Sensor == nil || hw.Alarm == nil {
		return State{}, ErrMissingHardware
	}
	if opts.Period < 100 {
		return State{}, fmt.Errorf("%w: pwm period %d below 100ns", ErrInvalidValue, opts.Period)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	h := &House{hw: hw, opts: opts, target: opts.Target}
	return h.ReadState()
}

// Set writes v to q immediately.
func (h *House) Set(q Quantity, v int) error {
	if !q.valid() {
		return ErrUnknownQuantity
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch q {
	case TV:
		return deviceErr(q, "set", h.hw.TV.SetValue(boolInt(v != 0)))
	case LED:
		return deviceErr(q, "set", h.hw.LED.SetValue(boolInt(v != 0)))
	case LampA, LampB, Heater:
		return deviceErr(q, "set", h.channel(q).SetDuty(dutyFor(h.opts.Period, v)))
	case TargetTemperature:
		h.target = v
		return nil
	case MeasuredTemperature:
		return ErrReadOnly
	case AlarmArmed:
		if v != 0 {
			h.hw.Alarm.Arm()
		} else {
			h.hw.Alarm.Disarm()
		}
		return nil
	case AlarmTriggered:
		// Only the alarm itself raises the flag.
		if v != 0 {
			return fmt.Errorf("%w: %s can only be reset to 0", ErrInvalidValue, q)
		}
		h.hw.Alarm.Reset()
		return nil
	}
	return ErrUnknownQuantity
}

// Get reads q.
func (h *House) Get(q Quantity) (int, error) {
	if !q.valid() {
		return 0, ErrUnknownQuantity
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch q {
	case TV:
		v, err := h.hw.TV.Value()
		return v, deviceErr(q, "get", err)
	case LED:
		v, err := h.hw.LED.Value()
		return v, deviceErr(q, "get", err)
	case LampA, LampB, Heater:
		duty, err := h.channel(q).Duty()
		if err != nil {
			return 0, deviceErr(q, "get", err)
		}
		return percentFor(h.opts.Period, duty), nil
	case TargetTemperature:
		return h.target, nil
	case MeasuredTemperature:
		return h.measuredLocked()
	case AlarmArmed:
		return boolInt(h.hw.Alarm.Armed()), nil
	case AlarmTriggered:
		return boolInt(h.hw.Alarm.IsTriggered()), nil
	}
	return 0, ErrUnknownQuantity
}

// measuredLocked returns the cached temperature, sampling the sensor when
// the cache is empty or older than the sample interval. Failed reads count
// as samples so a broken sensor is not hammered.
func (h *House) measuredLocked() (int, error) {
	now := h.opts.Now()
	if !h.sampled || now.Sub(h.sampledAt) >= h.opts.SampleInterval {
		h.sampled = true
		h.sampledAt = now

		raw, err := h.hw.Sensor.ReadCelsius()
		if err != nil {
			h.measureErr = deviceErr(MeasuredTemperature, "get", err)
		} else {
			h.measured = raw - h.opts.TemperatureOffset
			h.hasValue = true
			h.measureErr = nil
		}
	}

	if h.measureErr != nil && !h.hasValue {
		return 0, h.measureErr
	}
	if h.measureErr != nil {
		// Stale value plus the error that kept it from refreshing.
		return h.measured, h.measureErr
	}
	return h.measured, nil
}

// Close drives every actuator to its safe state, stops pwm output and
// releases the digital outputs.
func (h *House) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for _, q := range []Quantity{LampA, LampB, Heater} {
		ch := h.channel(q)
		if err := ch.SetDuty(dutyFor(h.opts.Period, 0)); err != nil {
			errs = append(errs, deviceErr(q, "close", err))
		}
		if err := ch.SetRunning(false); err != nil {
			errs = append(errs, deviceErr(q, "close", err))
		}
	}
	for _, q := range []Quantity{TV, LED} {
		out := h.output(q)
		if err := out.SetValue(0); err != nil {
			errs = append(errs, deviceErr(q, "close", err))
		}
		if err := out.Close(); err != nil {
			errs = append(errs, deviceErr(q, "close", err))
		}
	}
	return errors.Join(errs...)
}

func (h *House) output(q Quantity) gpio.Output {
	if q == LED {
		return h.hw.LED
	}
	return h.hw.TV
}

func (h *House) channel(q Quantity) pwm.Channel {
	switch q {
	case LampA:
		return h.hw.LampA
	case LampB:
		return h.hw.LampB
	default:
		return h.hw.Heater
	}
}

// dutyFor maps a brightness percentage to an inverted duty: 0% is a full
// period, 100% is zero.
func dutyFor(period uint32, pct int) uint32 {
	pct = clampPercent(pct)
	return period - (period/100)*uint32(pct)
}

func percentFor(period, duty uint32) int {
	if duty > period {
		return 0
	}
	return clampPercent(int((period - duty) / (period / 100)))
}

func clampPercent(pct int) int {
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
