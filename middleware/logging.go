package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/machinalis/featureforge/record"
)

// Logging returns middleware that logs experiment start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, rec *record.Record, next Handler) error {
		logger.Info("experiment started",
			slog.String("key", rec.Key),
			slog.Time("booked_at", rec.BookedAt),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("experiment failed",
				slog.String("key", rec.Key),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("experiment completed",
				slog.String("key", rec.Key),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
