package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/machinalis/featureforge/record"
)

// Recover returns middleware that recovers from panics in the experiment.
// Panics are converted to errors and logged with a stack trace, so a
// panicking experiment is handled like any failed one: its record stays
// Booked and becomes reclaimable when the lease elapses.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, rec *record.Record, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("experiment panicked",
					slog.String("key", rec.Key),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in experiment %s: %v", rec.Key, r)
			}
		}()
		return next(ctx)
	}
}
