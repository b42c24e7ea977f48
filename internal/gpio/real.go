//go:build linux

package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// Chip is an opened GPIO character device.
type Chip struct {
	chip *gpiocdev.Chip
}

// OpenChip opens the named chip, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &Chip{chip: chip}, nil
}

// RequestOutput requests offset as an output driven low.
func (c *Chip) RequestOutput(offset int) (*OutputLine, error) {
	line, err := c.chip.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output line %d: %w", offset, err)
	}
	return &OutputLine{line: line, offset: offset}, nil
}

// RequestAsIs requests offset without changing its direction or level, for
// reading what the line currently drives. Closing it does not write.
func (c *Chip) RequestAsIs(offset int) (*OutputLine, error) {
	line, err := c.chip.RequestLine(offset, gpiocdev.AsIs)
	if err != nil {
		return nil, fmt.Errorf("request line %d: %w", offset, err)
	}
	return &OutputLine{line: line, offset: offset, hold: true}, nil
}

// RequestRisingEdge requests offset as an input reporting rising edges.
func (c *Chip) RequestRisingEdge(offset int) (*EdgeLine, error) {
	e := &EdgeLine{offset: offset, events: make(chan struct{}, 1)}

	line, err := c.chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(e.handle),
	)
	if err != nil {
		return nil, fmt.Errorf("request edge line %d: %w", offset, err)
	}
	e.line = line
	return e, nil
}

// Close closes the chip. Lines requested from it stay valid until closed.
func (c *Chip) Close() error {
	if err := c.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

// OutputLine is a GPIO output.
type OutputLine struct {
	line   *gpiocdev.Line
	offset int

	// hold leaves the level untouched on Close.
	hold bool

	closeOnce sync.Once
	closeErr  error
}

// Value returns the driven level.
func (o *OutputLine) Value() (int, error) {
	v, err := o.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read line %d: %w", o.offset, err)
	}
	return v, nil
}

// SetValue drives the line.
func (o *OutputLine) SetValue(v int) error {
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("write line %d: %w", o.offset, err)
	}
	return nil
}

// Close releases the line, driving it low first unless it was requested
// as-is. Only the first call acts; later calls return its result.
func (o *OutputLine) Close() error {
	o.closeOnce.Do(func() {
		var errs []error
		if !o.hold {
			if err := o.line.SetValue(0); err != nil {
				errs = append(errs, fmt.Errorf("reset line %d: %w", o.offset, err))
			}
		}
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", o.offset, err))
		}
		o.closeErr = errors.Join(errs...)
	})
	return o.closeErr
}

// EdgeLine is an input line delivering rising edge events.
type EdgeLine struct {
	line   *gpiocdev.Line
	offset int
	events chan struct{}
}

// handle runs on the gpiocdev watcher goroutine and must not block.
func (e *EdgeLine) handle(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventRisingEdge {
		return
	}
	select {
	case e.events <- struct{}{}:
	default:
	}
}

// WaitEdge blocks until a rising edge arrives after the call.
// Edges that occurred before the call are discarded.
func (e *EdgeLine) WaitEdge(ctx context.Context) error {
	select {
	case <-e.events:
	default:
	}

	select {
	case <-e.events:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the line.
func (e *EdgeLine) Close() error {
	if err := e.line.Close(); err != nil {
		return fmt.Errorf("close line %d: %w", e.offset, err)
	}
	return nil
}
