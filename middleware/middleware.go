// Package middleware provides composable middleware around experiment
// execution. Middleware wraps the experiment call synchronously and can
// modify it (recover from panics, log, add tracing, enforce an opt-in
// deadline).
package middleware

import (
	"context"

	"github.com/machinalis/featureforge/record"
)

// Handler is the terminal function that executes the experiment.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the record whose claim is being executed, and the next
// handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, rec *record.Record, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, tracing) executes as:
//
//	logging → recover → tracing → experiment
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, rec *record.Record, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, rec, prev)
			}
		}
		return h(ctx)
	}
}
