package advisory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// TimeoutError is returned when the advisory service does not answer within
// the configured timeout.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("advisory timed out after %s: %v", e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// UnavailableError covers every non-timeout failure: transport errors,
// non-2xx statuses and responses that are not exactly {strategy, reason}.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("advisory unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Kind returns a short label for an advisory error, used in logs and metrics.
func Kind(err error) string {
	var te *TimeoutError
	var ue *UnavailableError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &te):
		return "timeout"
	case errors.As(err, &ue):
		return "unavailable"
	default:
		return "other"
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
