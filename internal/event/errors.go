package event

import "errors"

// Domain errors for the event package. Check with errors.Is.
var (
	// ErrEventNotFound is returned when an event ID does not exist.
	ErrEventNotFound = errors.New("event: not found")

	// ErrBusClosed is returned when publishing to a closed Bus.
	ErrBusClosed = errors.New("event: bus closed")
)
