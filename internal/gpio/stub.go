//go:build !linux

package gpio

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errUnsupported
}

// RequestOutput is not implemented on non-Linux platforms.
func (c *Chip) RequestOutput(offset int) (*OutputLine, error) {
	return nil, errUnsupported
}

// RequestAsIs is not implemented on non-Linux platforms.
func (c *Chip) RequestAsIs(offset int) (*OutputLine, error) {
	return nil, errUnsupported
}

// RequestRisingEdge is not implemented on non-Linux platforms.
func (c *Chip) RequestRisingEdge(offset int) (*EdgeLine, error) {
	return nil, errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (c *Chip) Close() error {
	return nil
}

// OutputLine is not available on non-Linux platforms.
type OutputLine struct{}

func (o *OutputLine) Value() (int, error)  { return 0, errUnsupported }
func (o *OutputLine) SetValue(v int) error { return errUnsupported }
func (o *OutputLine) Close() error         { return nil }

// EdgeLine is not available on non-Linux platforms.
type EdgeLine struct{}

func (e *EdgeLine) WaitEdge(ctx context.Context) error { return errUnsupported }
func (e *EdgeLine) Close() error                       { return nil }
