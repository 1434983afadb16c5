package apiclient

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is the sentinel for any 401 from an admin endpoint.
var ErrUnauthorized = errors.New("unauthorized")

// ErrExportTooLarge means the export payload went past the client's size
// limit; the partial body is discarded.
var ErrExportTooLarge = errors.New("export exceeds size limit")

type AuthError struct {
	Op      string
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: unauthorized: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: unauthorized", e.Op)
}

func (e *AuthError) Is(target error) bool {
	return target == ErrUnauthorized
}

// TransportError covers network failures, timeouts and non-401 error statuses.
// Status is zero when no response was received.
type TransportError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": request failed"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError is returned before any request is sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}

func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}
