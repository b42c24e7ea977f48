package history

import "errors"

var (
	// ErrDisabled is returned by Connect when no URL is configured.
	ErrDisabled = errors.New("history: disabled in configuration")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("history: connection failed")

	// ErrNotConnected is returned by Mirror after Close.
	ErrNotConnected = errors.New("history: not connected")
)
