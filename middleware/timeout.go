package middleware

import (
	"context"
	"time"

	"github.com/machinalis/featureforge/record"
)

// Timeout returns middleware that bounds experiment execution with a
// context deadline. The protocol itself never enforces a timeout — an
// experiment may legitimately run for hours — so this is strictly opt-in
// for callers whose experiment functions honour context cancellation.
// A non-positive d disables the deadline.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *record.Record, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
