package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "docshelf/internal/service"

func (s *documentService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "DocumentService."+name, trace.WithAttributes(attrs...))
}

// endSpan records err on span, unless it is the client's fault, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("error.kind", errorKind(err)))
		if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, errorKind(err))
		}
	}
	span.End()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBlobMissing):
		return "blob_missing"
	case errors.Is(err, ErrStorage):
		return "storage"
	case errors.Is(err, ErrDatabase):
		return "database"
	default:
		return "internal"
	}
}
