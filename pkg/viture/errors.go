package viture

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame = errors.New("viture: malformed frame")
	ErrTimeout        = errors.New("viture: transport timeout")
	ErrBusy           = errors.New("viture: capture already active")
	ErrClosed         = errors.New("viture: session closed")
)

// TransportError is any channel failure that is not a timeout: disconnect,
// permission, stale handle. It is fatal to the running session.
type TransportError struct {
	Op       string
	Endpoint uint8
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("viture: %s ep=0x%02x: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err means "no data within the deadline".
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// wrapError normalizes a raw transport error: timeouts become ErrTimeout,
// everything else becomes a *TransportError.
func wrapError(op string, ep uint8, err error) error {
	if err == nil {
		return nil
	}
	if IsTimeout(err) {
		if errors.Is(err, ErrTimeout) {
			return err
		}
		return fmt.Errorf("%w: %s ep=0x%02x: %v", ErrTimeout, op, ep, err)
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Endpoint: ep, Err: err}
}
