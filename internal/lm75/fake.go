package lm75

import "errors"

// FakeSensor is a test double returning scripted readings.
type FakeSensor struct {
	// Readings are returned in order; the last one repeats once exhausted.
	Readings []int

	// ReadError, if set, is returned by ReadCelsius.
	ReadError error

	// Reads counts calls to ReadCelsius, including failed ones.
	Reads int

	index int
}

// NewFakeSensor creates a FakeSensor with the given readings.
func NewFakeSensor(readings ...int) *FakeSensor {
	return &FakeSensor{Readings: readings}
}

// ReadCelsius returns the next scripted reading.
func (f *FakeSensor) ReadCelsius() (int, error) {
	f.Reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Readings) == 0 {
		return 0, errors.New("no readings configured")
	}

	v := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return v, nil
}
