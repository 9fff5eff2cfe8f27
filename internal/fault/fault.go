// Package fault defines the hub's closed error taxonomy.
//
// Every error leaving the core carries one Kind. The transport layer maps
// kinds to status codes with StatusCode; nothing else in the hub looks at
// codes. Errors without a Kind are Internal.
package fault

import (
	"context"
	"errors"
	"net/http"
)

// Kind classifies a failure. It is a stable string suitable for wire use.
type Kind string

// The closed set of kinds.
const (
	NotFound       Kind = "not_found"
	BadRequest     Kind = "bad_request"
	Validation     Kind = "validation"
	Driver         Kind = "driver"
	Connection     Kind = "connection"
	Authentication Kind = "authentication"
	Internal       Kind = "internal"
)

// Code returns the HTTP-style status code for the kind.
func (k Kind) Code() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case BadRequest, Validation:
		return http.StatusBadRequest
	case Connection:
		return http.StatusServiceUnavailable
	case Authentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error.
type Error struct {
	Kind    Kind
	Message string

	// DriverID names the plugin responsible, when known.
	DriverID string

	// Details carries structured context, e.g. schema validation issues.
	Details any

	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.DriverID != "" {
		return "driver " + e.DriverID + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies err under kind, keeping it as the cause.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Invalid returns a Validation error carrying the validator's issue list.
func Invalid(msg string, details any) *Error {
	return &Error{Kind: Validation, Message: msg, Details: details}
}

// DriverFault returns a Driver error attributed to driverID.
func DriverFault(driverID string, err error, msg string) *Error {
	return &Error{Kind: Driver, Message: msg, DriverID: driverID, Err: err}
}

// KindOf returns the kind of err. Deadline and cancellation errors from a
// plugin call are Connection failures; anything unclassified is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Connection
	}
	return Internal
}

// StatusCode maps err to an HTTP status code.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return KindOf(err).Code()
}

// As returns the *Error in err's chain, or nil.
func As(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return nil
}

// WithDriver attaches driverID to a Driver-kind error that does not name
// one yet. Other errors are returned unchanged.
func WithDriver(err error, driverID string) error {
	fe := As(err)
	if fe == nil || fe.Kind != Driver || fe.DriverID != "" {
		return err
	}
	if fe == err {
		annotated := *fe
		annotated.DriverID = driverID
		return &annotated
	}
	return &Error{Kind: Driver, DriverID: driverID, Details: fe.Details, Err: err}
}

// Classify turns an error returned by a plugin call into a classified one.
// Already classified errors pass through, deadline errors become
// Connection, anything else becomes Internal.
func Classify(err error) error {
	if err == nil || As(err) != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(Connection, err, "driver call timed out")
	}
	return Wrap(Internal, err, "")
}
