package logging

import (
	"context"
	"log/slog"

	"easel/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldWorkID is the standardized structured logging key for work item identifiers.
	FieldWorkID = "work_id"
	// FieldTaskType is the standardized structured logging key for work item task types.
	FieldTaskType = "task_type"
	// FieldGenerationID is the standardized structured logging key for generation identifiers.
	FieldGenerationID = "generation_id"
	// FieldEndpointKey is the standardized structured logging key for endpoint keys.
	FieldEndpointKey = "endpoint_key"
	// FieldProviderID is the standardized structured logging key for provider identifiers.
	FieldProviderID = "provider_id"
	// FieldEventType tags log records that represent discrete lifecycle events.
	FieldEventType = "event_type"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.WorkIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldWorkID, id))
	}
	if taskType, ok := services.TaskTypeFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldTaskType, taskType))
	}
	if generationID, ok := services.GenerationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldGenerationID, generationID))
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
