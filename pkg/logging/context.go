package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey     contextKey = "trace_id"
	MessageIDKey   contextKey = "message_id"
	ServiceNameKey contextKey = "service_name"
	BusinessIDKey  contextKey = "business_id"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

// WithBusinessID tags the context with the correlation key shared by the
// uploader and router records.
func WithBusinessID(ctx context.Context, businessID string) context.Context {
	return context.WithValue(ctx, BusinessIDKey, businessID)
}

func value(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string     { return value(ctx, TraceIDKey) }
func GetMessageID(ctx context.Context) string   { return value(ctx, MessageIDKey) }
func GetServiceName(ctx context.Context) string { return value(ctx, ServiceNameKey) }
func GetBusinessID(ctx context.Context) string  { return value(ctx, BusinessIDKey) }

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	for _, key := range []contextKey{TraceIDKey, MessageIDKey, ServiceNameKey, BusinessIDKey} {
		if v := value(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}

	return fields
}
