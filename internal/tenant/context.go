package tenant

import (
	"context"
	"errors"
)

// Key for tenant ID in context
type contextKey string

const (
	storeIDKey   contextKey = "storeID"
	requestIDKey contextKey = "requestID"
)

// ErrStoreIDNotFound is returned when no store ID is found in context
var ErrStoreIDNotFound = errors.New("store ID not found in context")

// WithStoreID adds a tenant store ID to the context
func WithStoreID(ctx context.Context, storeID string) context.Context {
	return context.WithValue(ctx, storeIDKey, storeID)
}

// FromContext extracts the tenant store ID from the context
func FromContext(ctx context.Context) (string, error) {
	storeID, ok := ctx.Value(storeIDKey).(string)
	if !ok || storeID == "" {
		return "", ErrStoreIDNotFound
	}
	return storeID, nil
}

// MustFromContext extracts the tenant store ID from the context or panics
func MustFromContext(ctx context.Context) string {
	storeID, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return storeID
}

// ErrNoRequestIDInContext is returned when no request ID is found in context
var ErrNoRequestIDInContext = errors.New("no request ID found in context")

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromRequestIDContext extracts the request ID from the context
func FromRequestIDContext(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestIDInContext
	}
	return requestID, nil
}
