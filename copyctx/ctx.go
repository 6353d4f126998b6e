package copyctx

import (
	"context"
)

// Key name to look for Correlation Id in context
// using custom type to prevent key collision
type contextKey int

const (
	CorrelationIdContextKey contextKey = iota
	ConnIdContextKey
	ConnIdCallbackKey
)

type IdCallbackFunc func(string)

// NewContextWithCorrelationId creates a new context with correlationId value. Used by Logger to populate field corrId.
func NewContextWithCorrelationId(ctx context.Context, correlationId string) context.Context {
	return context.WithValue(ctx, CorrelationIdContextKey, correlationId)
}

// CorrelationIdFromContext retrieves the correlationId stored in context.
func CorrelationIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	corrId, ok := ctx.Value(CorrelationIdContextKey).(string)
	if !ok {
		return ""
	}
	return corrId
}

// NewContextWithConnId creates a new context with connectionId value.
// The connection ID identifies the COPY stream in log messages and errors.
func NewContextWithConnId(ctx context.Context, connId string) context.Context {
	if callback, ok := ctx.Value(ConnIdCallbackKey).(IdCallbackFunc); ok {
		callback(connId)
	}
	return context.WithValue(ctx, ConnIdContextKey, connId)
}

// ConnIdFromContext retrieves the connectionId stored in context.
func ConnIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	connId, ok := ctx.Value(ConnIdContextKey).(string)
	if !ok {
		return ""
	}
	return connId
}

func NewContextWithConnIdCallback(ctx context.Context, callback IdCallbackFunc) context.Context {
	return context.WithValue(ctx, ConnIdCallbackKey, callback)
}

// NewContextFromBackground copies the identifiers of ctx onto a fresh
// background context, dropping its deadline and cancellation.
func NewContextFromBackground(ctx context.Context) context.Context {
	connId := ConnIdFromContext(ctx)
	corrId := CorrelationIdFromContext(ctx)

	newCtx := NewContextWithConnId(context.Background(), connId)
	newCtx = NewContextWithCorrelationId(newCtx, corrId)

	return newCtx
}
