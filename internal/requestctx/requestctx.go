package requestctx

import (
	"context"
	"time"
)

type contextKey string

const (
	invocationIDKey contextKey = "invocation_id"
	functionIDKey   contextKey = "function_id"
	startTimeKey    contextKey = "start_time"
)

func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey, id)
}

func WithFunctionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, functionIDKey, id)
}

func WithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey, t)
}

func InvocationID(ctx context.Context) string {
	if id, ok := ctx.Value(invocationIDKey).(string); ok {
		return id
	}
	return ""
}

func FunctionID(ctx context.Context) string {
	if id, ok := ctx.Value(functionIDKey).(string); ok {
		return id
	}
	return ""
}

func StartTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(startTimeKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}
