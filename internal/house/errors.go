package house

import (
	"errors"
	"fmt"
)

var (
	// ErrReadOnly is returned when setting a quantity that can only be read.
	ErrReadOnly = errors.New("house: quantity is read-only")

	// ErrUnknownQuantity is returned for a Quantity outside the known set.
	ErrUnknownQuantity = errors.New("house: unknown quantity")

	// ErrInvalidValue is returned when a value cannot be applied to a quantity.
	ErrInvalidValue = errors.New("house: invalid value")

	// ErrMissingHardware is returned by Open when a collaborator is nil.
	ErrMissingHardware = errors.New("house: missing hardware")
)

// DeviceError reports a failed hardware operation on a quantity.
type DeviceError struct {
	Quantity Quantity
	Op       string // "open", "set", "get" or "close"
	Err      error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("house: %s %s: %v", e.Op, e.Quantity, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func deviceErr(q Quantity, op string, err error) error {
	if err == nil {
		return nil
	}
	return &DeviceError{Quantity: q, Op: op, Err: err}
}
