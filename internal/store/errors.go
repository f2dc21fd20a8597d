package store

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEvent matches every *InvalidEventError.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrClosed is returned by Listener.Next once the listener is closed.
	ErrClosed = errors.New("store: listener closed")
)

// InvalidEventError rejects an event that cannot be applied: its key cannot
// be resolved or its payload fails schema validation.
type InvalidEventError struct {
	Source string
	Key    Key
	Reason string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid event from %q for %s: %s", e.Source, e.Key, e.Reason)
}

func (e *InvalidEventError) Is(target error) bool { return target == ErrInvalidEvent }

func invalid(ev Event, format string, args ...any) error {
	return &InvalidEventError{Source: ev.Source, Key: ev.Key, Reason: fmt.Sprintf(format, args...)}
}
