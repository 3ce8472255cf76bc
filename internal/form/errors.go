package form

import "errors"

// ErrExchangeInFlight is returned by Submit under OverlapReject while an
// exchange is still unresolved.
var ErrExchangeInFlight = errors.New("exchange already in flight")

// ValidationError is returned when the submitted question is empty.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// TransportError wraps any failure of the remote call: network errors,
// non-2xx statuses, prompt rendering, or a panicking generator.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
