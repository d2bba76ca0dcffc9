package authclient

import "context"

type requestIDContextKey struct{}

// WithRequestID attaches a request ID to ctx. It is sent as X-Request-ID on
// every backend call made with ctx and recorded on audit events. Calls
// without one get a fresh UUID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, id)
}

// RequestIDFromContext returns the request ID set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
