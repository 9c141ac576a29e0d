package spapi

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for marketplace client failures. ErrAuth is the only one
// callers treat as fatal to a whole run; the rest degrade per operation.
var (
	ErrAuth        = errors.New("marketplace auth failed")
	ErrUnreachable = errors.New("marketplace unreachable")
	ErrTimeout     = errors.New("marketplace request timeout")
	ErrPlatform    = errors.New("marketplace error response")
)

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// truncate shortens an error-response body for logging.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
