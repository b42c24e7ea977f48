//go:build linux

package lm75

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// i2cSlave is the I2C_SLAVE ioctl request from linux/i2c-dev.h.
const i2cSlave = 0x0703

// I2CSensor reads an LM75 attached to a Linux i2c-dev bus.
type I2CSensor struct {
	bus     string
	address int
}

// NewI2CSensor returns a sensor on the given bus device and 7-bit address.
// The bus is opened on every read so a missing device surfaces per call.
func NewI2CSensor(bus string, address int) *I2CSensor {
	return &I2CSensor{bus: bus, address: address}
}

// ReadCelsius reads the temperature register.
func (s *I2CSensor) ReadCelsius() (int, error) {
	fd, err := unix.Open(s.bus, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", s.bus, err)
	}
	defer unix.Close(fd)

	if err := unix.IoctlSetInt(fd, i2cSlave, s.address); err != nil {
		return 0, fmt.Errorf("select i2c address %#x on %s: %w", s.address, s.bus, err)
	}

	// Point the register pointer at the temperature register.
	if _, err := unix.Write(fd, []byte{0x00}); err != nil {
		return 0, fmt.Errorf("write register pointer: %w", err)
	}

	buf := make([]byte, 2)
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, fmt.Errorf("read temperature: %w", err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("read temperature: short read (%d bytes)", n)
	}

	return Decode(buf[0], buf[1]), nil
}
