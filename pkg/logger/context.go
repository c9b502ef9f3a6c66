package logger

import "context"

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying the request id that
// downstream loggers attach to their entries.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok
}
