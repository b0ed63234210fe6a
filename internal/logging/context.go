package logging

import "context"

type contextKey string

const (
	messageIDKey = contextKey("message-id")
	tenantIDKey  = contextKey("tenant-id")
)

// WithMessageID returns a context carrying the message identifier for
// correlated logging across pipeline stages.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, messageIDKey, messageID)
}

// WithTenantID returns a context carrying the tenant identifier.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// MessageID extracts the message identifier from the context.
// Returns empty string if not found.
func MessageID(ctx context.Context) string {
	if id, ok := ctx.Value(messageIDKey).(string); ok {
		return id
	}
	return ""
}

// TenantID extracts the tenant identifier from the context.
// Returns empty string if not found.
func TenantID(ctx context.Context) string {
	if id, ok := ctx.Value(tenantIDKey).(string); ok {
		return id
	}
	return ""
}
