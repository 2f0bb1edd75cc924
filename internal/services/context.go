package services

import "context"

type contextKey string

const (
	workIDKey       contextKey = "work_id"
	taskTypeKey     contextKey = "task_type"
	generationIDKey contextKey = "generation_id"
)

// WithWorkID annotates context with the work item identifier.
func WithWorkID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, workIDKey, id)
}

// WorkIDFromContext extracts the work item identifier if present.
func WorkIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(workIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithTaskType annotates context with the work item task type.
func WithTaskType(ctx context.Context, taskType string) context.Context {
	if taskType == "" {
		return ctx
	}
	return context.WithValue(ctx, taskTypeKey, taskType)
}

// TaskTypeFromContext returns the task type if present.
func TaskTypeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(taskTypeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithGenerationID annotates context with a generation identifier.
func WithGenerationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, generationIDKey, id)
}

// GenerationIDFromContext extracts the generation identifier if present.
func GenerationIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(generationIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
