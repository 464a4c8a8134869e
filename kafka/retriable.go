package kafka

import (
	"context"
	"errors"
	"net"
)

type retriableError struct {
	err error
}

func (e *retriableError) Error() string {
	return e.err.Error()
}

func (e *retriableError) Unwrap() error {
	return e.err
}

// Retriable marks err as a transient failure. A retriable error is still reported to the caller, the marker only
// lets the caller decide whether trying again is worthwhile.
func Retriable(err error) error {
	if err == nil {
		return nil
	}

	return &retriableError{err: err}
}

// IsRetriable reports whether err was marked retriable by an adaptor or is a timeout.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	var rErr *retriableError
	if errors.As(err, &rErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
