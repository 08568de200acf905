package common

import (
	"errors"
	"fmt"
)

// ErrTransport marks socket and network failures. The stream supervisor absorbs these.
var ErrTransport = errors.New("transport error")

// RemoteAPIError carries the error text returned by an exchange.
type RemoteAPIError struct {
	Exchange string
	Status   int
	Message  string
}

func (e *RemoteAPIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s api error (status %d): %s", e.Exchange, e.Status, e.Message)
	}
	return fmt.Sprintf("%s api error: %s", e.Exchange, e.Message)
}

// UnsupportedIntervalError is returned before any request when an interval has no native mapping.
type UnsupportedIntervalError struct {
	Exchange string
	Interval string
}

func (e *UnsupportedIntervalError) Error() string {
	return fmt.Sprintf("%s: unsupported interval %q", e.Exchange, e.Interval)
}

// IsRemoteAPIError reports whether err wraps a RemoteAPIError.
func IsRemoteAPIError(err error) bool {
	var re *RemoteAPIError
	return errors.As(err, &re)
}

// IsUnsupportedInterval reports whether err wraps an UnsupportedIntervalError.
func IsUnsupportedInterval(err error) bool {
	var ue *UnsupportedIntervalError
	return errors.As(err, &ue)
}
