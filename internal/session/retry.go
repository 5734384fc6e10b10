package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"convsearch/internal/domain"
)

// retry runs op with exponential backoff, up to Params.Retries extra
// attempts. Each attempt gets its own deadline when timeout is set; an
// attempt that hits it fails with timeoutErr. Search errors caused by the
// request itself are not retried.
func retry[T any](ctx context.Context, s *Session, what string, timeout time.Duration, timeoutErr error, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if s.params.RetryInitial > 0 {
		b.InitialInterval = s.params.RetryInitial
	}
	attempt := func() (T, error) {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		defer cancel()
		v, err := op(callCtx)
		switch {
		case err == nil:
			return v, nil
		case ctx.Err() != nil:
			return v, backoff.Permanent(ctx.Err())
		case errors.Is(err, domain.ErrEmptyQuery), errors.Is(err, domain.ErrIndexNotLoaded):
			return v, backoff.Permanent(err)
		case callCtx.Err() != nil:
			return v, fmt.Errorf("%w: %s: %v", timeoutErr, what, err)
		}
		return v, err
	}
	v, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.params.Retries+1)),
		backoff.WithNotify(func(err error, d time.Duration) {
			s.logger.Warn("retrying "+what, zap.Error(err), zap.Duration("backoff", d))
		}),
	)
	if err != nil {
		return v, fmt.Errorf("%s: %w", what, err)
	}
	return v, nil
}
