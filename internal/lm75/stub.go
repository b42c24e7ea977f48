//go:build !linux

package lm75

import "errors"

// I2CSensor is not available on non-Linux platforms.
type I2CSensor struct{}

// NewI2CSensor returns a sensor whose reads always fail.
func NewI2CSensor(bus string, address int) *I2CSensor {
	return &I2CSensor{}
}

// ReadCelsius is not implemented on non-Linux platforms.
func (s *I2CSensor) ReadCelsius() (int, error) {
	return 0, errors.New("lm75: i2c not supported on this platform (requires Linux)")
}
