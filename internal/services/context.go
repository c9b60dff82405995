package services

import "context"

type contextKey string

const (
	messageIDKey   contextKey = "message_id"
	instanceUIDKey contextKey = "instance_uid"
	stepKey        contextKey = "step"
	requestIDKey   contextKey = "request_id"
)

// WithMessageID annotates context with the broker message identifier.
func WithMessageID(ctx context.Context, id string) context.Context {
	return withString(ctx, messageIDKey, id)
}

// MessageIDFromContext extracts the broker message identifier if present.
func MessageIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, messageIDKey)
}

// WithInstanceUID annotates context with the DICOM SOPInstanceUID.
func WithInstanceUID(ctx context.Context, uid string) context.Context {
	return withString(ctx, instanceUIDKey, uid)
}

// InstanceUIDFromContext returns the instance UID if present.
func InstanceUIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, instanceUIDKey)
}

// WithStep annotates context with the ingestion step name.
func WithStep(ctx context.Context, step string) context.Context {
	return withString(ctx, stepKey, step)
}

// StepFromContext returns the step name if present.
func StepFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, stepKey)
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringFrom(ctx, requestIDKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
