// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them; services read them. The core
// never reads the actor from context implicitly — actors are passed as
// explicit arguments — but request IDs and the request-scoped clock travel
// here so services and workers stay testable.
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	sessionJTIKey  struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeySessionJTI  = sessionJTIKey{}
)

// RequestID retrieves the request correlation ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// SessionJTI retrieves the token identifier of the caller's session, used
// when the deletion workflow revokes the session it was started from.
func SessionJTI(ctx context.Context) string {
	if jti, ok := ctx.Value(ContextKeySessionJTI).(string); ok {
		return jti
	}
	return ""
}

// WithSessionJTI injects the caller's token identifier into the context.
func WithSessionJTI(ctx context.Context, jti string) context.Context {
	return context.WithValue(ctx, ContextKeySessionJTI, jti)
}

// Now retrieves the request-scoped time from context. Falls back to
// time.Now() for non-HTTP contexts (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests that don't run the full HTTP middleware chain.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
