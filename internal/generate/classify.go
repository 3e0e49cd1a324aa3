package generate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

var errEmptyResponse = errors.New("backend returned empty text")

// StatusError is a non-2xx backend reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend status %d", e.Code)
	}
	return fmt.Sprintf("backend status %d: %s", e.Code, e.Body)
}

// classify maps a failed attempt onto the retry policy. Cancellation of the
// parent context wins over everything else.
func classify(parent context.Context, err error) Failure {
	if parent.Err() != nil {
		return FailureCancelled
	}
	if isTimeout(err) {
		return FailureTimeout
	}
	if isUnreachable(err) {
		return FailureUnreachable
	}
	return FailureServer
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isUnreachable(err error) bool {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH):
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
