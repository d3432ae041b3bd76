package tasks

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/juju/clock"
	"github.com/juju/retry"
)

// withRetry calls fn until it succeeds, fails with a non-transient fault, runs
// out of attempts or ctx ends. The error returned is always the last error of fn
// (or ctx's error when stopped).
func withRetry(ctx context.Context, s Settings, logger *log.Logger, op string, fn func() error) error {
	err := retry.Call(retry.CallArgs{
		Func: fn,
		IsFatalError: func(err error) bool {
			return Classify(err) != FaultTransient
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debug("retrying platform call", "op", op, "attempt", attempt, "err", err)
		},
		Attempts:    s.RetryAttempts,
		Delay:       s.RetryDelay,
		MaxDelay:    s.RetryMaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       clock.WallClock,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return nil
	}
	switch {
	case retry.IsRetryStopped(err) && ctx.Err() != nil:
		return ctx.Err()
	case retry.IsAttemptsExceeded(err), retry.IsRetryStopped(err):
		return retry.LastError(err)
	}
	return err
}
