// Package protocol encodes and decodes the flat JSON messages exchanged with
// the webhouse client.
//
// Inbound commands:  {"TV":"ON","Lampe":"50","Leuchter":"0","TempSoll":"21"}
// Outbound frames:   {"TempIst":"21","Heizung":"100","Burglar":"0"}
//
// All values travel as decimal strings. A read may carry several commands
// back to back; only the last complete one counts.
package protocol

import (
	"errors"
	"fmt"
)

// Message keys.
const (
	KeyTV       = "TV"
	KeyLampA    = "Lampe"
	KeyLampB    = "Leuchter"
	KeyTarget   = "TempSoll"
	KeyMeasured = "TempIst"
	KeyHeater   = "Heizung"
	KeyBurglar  = "Burglar"
)

// TVOn is the only TV value that switches the TV on.
const TVOn = "ON"

// ErrNoCommand is returned when a buffer holds no decodable command.
var ErrNoCommand = errors.New("protocol: no valid command")

// DecodeError describes why a buffer could not be decoded. It matches
// ErrNoCommand with errors.Is.
type DecodeError struct {
	Len   int   // length of the rejected buffer
	Cause error // underlying parse error, may be nil
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol: no valid command in %d bytes: %v", e.Len, e.Cause)
	}
	return fmt.Sprintf("protocol: no valid command in %d bytes", e.Len)
}

func (e *DecodeError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrNoCommand, e.Cause}
	}
	return []error{ErrNoCommand}
}

// Command is a decoded client command. Nil fields were absent or unusable.
type Command struct {
	TV     *bool
	LampA  *int
	LampB  *int
	Target *int
}

// Empty reports whether the command changes nothing.
func (c Command) Empty() bool {
	return c.TV == nil && c.LampA == nil && c.LampB == nil && c.Target == nil
}
