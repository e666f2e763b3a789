package station

import (
	"errors"
	"fmt"
)

// ErrEmptyPayload is returned when the station reports success without data.
var ErrEmptyPayload = errors.New("no data received")

// TransportError covers failed requests, unreadable bodies and malformed JSON.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError is a response with a status outside 2xx.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// ServerError is an envelope with success=false.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "station reported failure"
	}
	return e.Message
}

// ValidationError rejects a device address before any request is made.
type ValidationError struct {
	Address string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid device address %q: %s", e.Address, e.Reason)
}
