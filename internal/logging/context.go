package logging

import (
	"context"
	"log/slog"

	"github.com/iamvazu/SQAN/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldMessageID identifies the broker message being ingested.
	FieldMessageID = "message_id"
	// FieldInstanceUID carries the DICOM SOPInstanceUID of the header being processed.
	FieldInstanceUID = "instance_uid"
	// FieldStep names the ingestion step currently running.
	FieldStep = "step"
	// FieldImageID identifies the Image document under QC.
	FieldImageID = "image_id"
	// FieldSeriesID identifies the Series document under QC.
	FieldSeriesID = "series_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for alerting and dashboards.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the operator's next step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.MessageIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldMessageID, id))
	}
	if uid, ok := services.InstanceUIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldInstanceUID, uid))
	}
	if step, ok := services.StepFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStep, step))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
