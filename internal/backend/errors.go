package backend

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Sentinel errors forming the invoker's error taxonomy. Step wrappers match
// on these to convert failures into failed-step records.
var (
	// ErrTimeout indicates the backend call exceeded its deadline.
	ErrTimeout = errors.New("backend: deadline exceeded")

	// ErrTransport indicates a network or HTTP failure calling the backend.
	ErrTransport = errors.New("backend: transport failure")

	// ErrConfiguration indicates required credentials or config are absent.
	ErrConfiguration = errors.New("backend: not configured")

	// ErrRunFailed indicates an agent run ended in a failed or cancelled state.
	ErrRunFailed = errors.New("backend: run failed")
)

// IsTimeout reports whether err is a deadline expiry, either our sentinel
// or a context/network timeout surfaced by the underlying client.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "deadline exceeded")
}

// IsConfiguration reports whether err stems from missing credentials/config.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
