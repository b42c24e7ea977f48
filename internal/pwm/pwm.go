// Package pwm drives pwm outputs exposed through the kernel's pwm_test sysfs
// interface. Each channel is a directory holding period, duty and run files.
package pwm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Channel is a single pwm output.
type Channel interface {
	Period() (uint32, error)
	SetPeriod(ns uint32) error
	Duty() (uint32, error)
	SetDuty(ns uint32) error
	Running() (bool, error)
	SetRunning(run bool) error
}

// Attribute file names inside a channel directory.
const (
	filePeriod = "period"
	fileDuty   = "duty"
	fileRun    = "run"
)

// ErrMalformed is returned when an attribute file does not hold an unsigned integer.
var ErrMalformed = errors.New("pwm: malformed attribute value")

// SysfsChannel implements Channel on top of a filesystem, normally the real one.
type SysfsChannel struct {
	fs  afero.Fs
	dir string
}

// NewSysfsChannel returns a channel rooted at dir on fs.
// The directory is not touched until the first read or write.
func NewSysfsChannel(fs afero.Fs, dir string) *SysfsChannel {
	return &SysfsChannel{fs: fs, dir: filepath.Clean(dir)}
}

// Open returns a channel on the host filesystem.
func Open(dir string) *SysfsChannel {
	return NewSysfsChannel(afero.NewOsFs(), dir)
}

// Dir returns the channel directory.
func (c *SysfsChannel) Dir() string {
	return c.dir
}

// Period returns the period in nanoseconds.
func (c *SysfsChannel) Period() (uint32, error) {
	return c.readUint(filePeriod)
}

// SetPeriod sets the period in nanoseconds.
func (c *SysfsChannel) SetPeriod(ns uint32) error {
	return c.writeUint(filePeriod, ns)
}

// Duty returns the duty in nanoseconds.
func (c *SysfsChannel) Duty() (uint32, error) {
	return c.readUint(fileDuty)
}

// SetDuty sets the duty in nanoseconds.
func (c *SysfsChannel) SetDuty(ns uint32) error {
	return c.writeUint(fileDuty, ns)
}

// Running reports whether the output is enabled.
func (c *SysfsChannel) Running() (bool, error) {
	v, err := c.readUint(fileRun)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// SetRunning starts or stops the output.
func (c *SysfsChannel) SetRunning(run bool) error {
	var v uint32
	if run {
		v = 1
	}
	return c.writeUint(fileRun, v)
}

func (c *SysfsChannel) readUint(name string) (uint32, error) {
	path := filepath.Join(c.dir, name)
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}

	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q", ErrMalformed, path, strings.TrimSpace(string(data)))
	}
	return uint32(v), nil
}

// writeUint opens the attribute without O_CREATE: a missing file means the
// channel was not exported, which must surface as an error.
func (c *SysfsChannel) writeUint(name string, v uint32) error {
	path := filepath.Join(c.dir, name)
	f, err := c.fs.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	_, werr := f.WriteString(strconv.FormatUint(uint64(v), 10))
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("write %s: %w", path, werr)
	}
	if cerr != nil {
		return fmt.Errorf("close %s: %w", path, cerr)
	}
	return nil
}
