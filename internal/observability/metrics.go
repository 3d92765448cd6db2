// Package observability carries the request-scoped sentry meter and the
// instrumented HTTP client used for outbound processor and email calls.
package observability

import (
	"context"

	"github.com/getsentry/sentry-go"
)

type meterContextKey struct{}

// WithMeter attaches a meter to the context. Middleware calls this once per
// request so checkout and reconciliation counters land on the same trace.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterContextKey{}, meter.WithCtx(ctx))
}

// MeterFromContext returns the request's meter, or a fresh one when the call
// did not come through the HTTP middleware (startup, background work).
func MeterFromContext(ctx context.Context) sentry.Meter {
	if meter, ok := ctx.Value(meterContextKey{}).(sentry.Meter); ok && meter != nil {
		return meter.WithCtx(ctx)
	}
	return sentry.NewMeter(ctx).WithCtx(ctx)
}
