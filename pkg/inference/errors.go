package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// BackendError wraps a failure from an inference backend. Transient marks
// rate-limit and availability classes that are worth retrying; schema or
// request errors are permanent and fall through to the next tier directly.
type BackendError struct {
	Backend   string
	Transient bool
	Err       error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("inference: %s backend: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a retryable backend failure.
func IsTransient(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Transient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

func transientStatus(code int) bool {
	return code == 429 || code >= 500
}
