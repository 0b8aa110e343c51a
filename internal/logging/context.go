// internal/logging/context.go
package logging

import (
	"context"

	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 2)

	if id := OperationIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("operation.id", id))
	}

	if project := ProjectFromContext(ctx); project != "" {
		fields = append(fields, zap.String("project", project))
	}

	return fields
}

// Context key types
type operationCtxKey struct{}
type projectCtxKey struct{}
type loggerCtxKey struct{}

// WithOperationID tags ctx with the id of one CLI invocation.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operationCtxKey{}, id)
}

// OperationIDFromContext extracts the operation id from context.
func OperationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(operationCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// WithProject tags ctx with the project being operated on.
func WithProject(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, projectCtxKey{}, name)
}

// ProjectFromContext extracts the project name from context.
func ProjectFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(projectCtxKey{}).(string); ok {
		return p
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return NewNop()
}
