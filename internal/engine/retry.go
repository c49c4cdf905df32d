package engine

import (
	"context"
	"errors"
	"time"
)

// Transient statuses get exactly one scheduled retry of the same request.
// Anything else is terminal for the turn.
const (
	busyRetryDelay      = 2 * time.Second
	rateLimitRetryDelay = 5 * time.Second
)

// statusCoder is implemented by upstream errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// httpStatus extracts the status code from an upstream error chain, or 0.
func httpStatus(err error) int {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// retryDelay returns the backoff for a transient status, or false when the
// failure is terminal.
func retryDelay(err error) (time.Duration, bool) {
	switch httpStatus(err) {
	case 503:
		return busyRetryDelay, true
	case 429:
		return rateLimitRetryDelay, true
	}
	return 0, false
}

// sleepWithContext waits for d or for ctx cancellation, whichever first.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
