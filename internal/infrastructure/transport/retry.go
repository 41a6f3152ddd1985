package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tesso57/readsync/internal/domain/reading"
)

// RetryPolicy bounds Retry.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used for upstream state pushes.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
}

// Retry runs op with exponential backoff until it succeeds, fails permanently,
// runs out of retries or ctx is done. Auth, parse, validation and unsupported
// errors are never retried.
func Retry(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	b.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, policy.MaxRetries), ctx))
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case reading.IsAuth(err), reading.IsParse(err), reading.IsValidation(err):
		return false
	case errors.Is(err, reading.ErrUnsupported), errors.Is(err, reading.ErrInvalidAccount):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	var transportErr *reading.TransportError
	if errors.As(err, &transportErr) && transportErr.StatusCode != 0 {
		// Client errors other than rate limiting will not change on retry.
		return transportErr.StatusCode >= 500 || transportErr.StatusCode == 429 || transportErr.StatusCode == 408
	}
	return true
}

// isTimeout reports whether err was caused by a deadline, including client
// and dial timeouts that do not wrap context.DeadlineExceeded.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
