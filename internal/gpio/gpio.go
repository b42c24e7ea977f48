// Package gpio drives GPIO lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fakes allow testing without hardware.
package gpio

import "context"

// Output is a digital output line.
type Output interface {
	// Value returns the current level, 0 or 1.
	Value() (int, error)

	// SetValue drives the line to v (0 or 1).
	SetValue(v int) error

	// Close releases the line.
	Close() error
}

// EdgeWaiter blocks until an input line sees an edge.
type EdgeWaiter interface {
	// WaitEdge blocks until the next edge or until ctx is done.
	// Returns ctx.Err() on cancellation.
	WaitEdge(ctx context.Context) error
}

// EdgeInput is an input line configured for edge detection.
type EdgeInput interface {
	EdgeWaiter

	// Close releases the line.
	Close() error
}

// Line offsets on the webhouse board (gpiochip0).
const (
	LineTV  = 60 // TV relay
	LineLED = 48 // test LED
	LinePIR = 30 // PIR motion detector, rising edge on motion
)
