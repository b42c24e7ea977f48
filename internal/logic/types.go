// Package logic contains the pure heating control logic.
// This package has NO external dependencies (no GPIO, sysfs, network or time.Sleep).
// Every input arrives through Tick.
package logic

// Action is what the controller wants done to the heater this tick.
type Action int

const (
	ActionNone Action = iota
	ActionHeaterOn
	ActionHeaterOff
)

func (a Action) String() string {
	switch a {
	case ActionHeaterOn:
		return "HEATER_ON"
	case ActionHeaterOff:
		return "HEATER_OFF"
	default:
		return "NONE"
	}
}

// Percent returns the heater duty for the action. Only meaningful when a != ActionNone.
func (a Action) Percent() int {
	if a == ActionHeaterOn {
		return 100
	}
	return 0
}

// Flags marks which telemetry values changed.
type Flags struct {
	Temperature bool
	Heater      bool
	Alarm       bool
}

// Any reports whether any flag is set.
func (f Flags) Any() bool {
	return f.Temperature || f.Heater || f.Alarm
}

// Or merges two flag sets.
func (f Flags) Or(o Flags) Flags {
	return Flags{
		Temperature: f.Temperature || o.Temperature,
		Heater:      f.Heater || o.Heater,
		Alarm:       f.Alarm || o.Alarm,
	}
}

// AllFlags has every flag set.
var AllFlags = Flags{Temperature: true, Heater: true, Alarm: true}

// Input is one control cycle's sample.
type Input struct {
	Measured  int  // measured temperature, degrees
	Target    int  // target temperature, degrees
	Triggered bool // alarm triggered flag
}

// Output is the result of one control cycle.
type Output struct {
	Heater Action
	Flags  Flags
}

// Counts tracks heater switching since startup.
type Counts struct {
	HeaterOn  int
	HeaterOff int
}
