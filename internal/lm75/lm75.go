// Package lm75 reads an LM75 digital temperature sensor.
//
// The sensor must not be read more often than its conversion time (~300ms):
// back-to-back reads keep it from updating the temperature register. Callers
// are expected to rate limit.
package lm75

// Sensor reads the temperature in whole degrees Celsius.
type Sensor interface {
	ReadCelsius() (int, error)
}

// Defaults for the sensor on the webhouse board.
const (
	DefaultBus     = "/dev/i2c-1"
	DefaultAddress = 0x48
)

// Decode converts the two temperature register bytes to whole degrees.
// The register holds a 9-bit two's complement value in 0.5 degree steps,
// left aligned in msb:lsb. Half degrees are floored away.
func Decode(msb, lsb byte) int {
	halfDegrees := int16(uint16(msb)<<8|uint16(lsb)) >> 7
	return int(halfDegrees >> 1)
}
