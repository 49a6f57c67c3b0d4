package gps

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed marks a response line that does not match <tag>:<lat>,<lon>.
	// It never ends a session.
	ErrMalformed = errors.New("malformed gps response")

	// ErrConnectionLost marks a read/write failure or end of stream. It ends
	// the session.
	ErrConnectionLost = errors.New("gps connection lost")
)

// MalformedError describes why a response line was rejected.
type MalformedError struct {
	Line   string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed gps response %q: %s", e.Line, e.Reason)
}

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

// InjectionError wraps a LocationSink failure. Polling continues.
type InjectionError struct {
	Coord Coordinate
	Err   error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("inject %s failed: %v", e.Coord, e.Err)
}

func (e *InjectionError) Unwrap() error { return e.Err }

type connectionLostError struct {
	err error
}

func (e *connectionLostError) Error() string {
	return fmt.Sprintf("gps connection lost: %v", e.err)
}

func (e *connectionLostError) Unwrap() []error { return []error{ErrConnectionLost, e.err} }
