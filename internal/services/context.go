package services

import "context"

// Each annotation gets its own key type so values can never collide.
type (
	runIDKey     struct{}
	stageKey     struct{}
	requestIDKey struct{}
)

func withString(ctx context.Context, key any, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key any) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, _ := ctx.Value(key).(string)
	return value, value != ""
}

// WithRunID tags ctx with the analysis run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	return withString(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run identifier carried by ctx.
func RunIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, runIDKey{})
}

// WithStage tags ctx with the stage currently executing.
func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey{}, stage)
}

func StageFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stageKey{})
}

// WithRequestID tags ctx with the correlation id sent as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey{})
}
