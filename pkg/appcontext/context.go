package appcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

type contextId int

const (
	sourceNameKeyId contextId = iota
	runIdKeyId
	storageNameKeyId
	windowKeyId
	requestIdKeyId
)

func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(ctx, requestIdKeyId, requestId)
}

func WithRunId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIdKeyId, id)
}

func WithSourceName(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceNameKeyId, source)
}

func WithStorageName(ctx context.Context, storage string) context.Context {
	return context.WithValue(ctx, storageNameKeyId, storage)
}

// WithWindow marks the hourly log window (e.g. '2025-07-14 08') being processed.
func WithWindow(ctx context.Context, window string) context.Context {
	return context.WithValue(ctx, windowKeyId, window)
}

func RunIdFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIdKeyId).(string)
	return id
}

func RequestIdFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIdKeyId).(string)
	return id
}

func LoggerFromContext(logger logrus.FieldLogger, ctx context.Context) logrus.FieldLogger {
	if ctx == nil {
		return logger
	}

	result := logger

	if ctxSourceName, ok := ctx.Value(sourceNameKeyId).(string); ok {
		result = result.WithField("source", ctxSourceName)
	}

	if ctxRunId, ok := ctx.Value(runIdKeyId).(string); ok && ctxRunId != "" {
		result = result.WithField("run_id", ctxRunId)
	}

	if ctxStorageName, ok := ctx.Value(storageNameKeyId).(string); ok && ctxStorageName != "" {
		result = result.WithField("storage", ctxStorageName)
	}

	if ctxWindow, ok := ctx.Value(windowKeyId).(string); ok && ctxWindow != "" {
		result = result.WithField("window", ctxWindow)
	}

	if ctxRequestId, ok := ctx.Value(requestIdKeyId).(string); ok && ctxRequestId != "" {
		result = result.WithField("request_id", ctxRequestId)
	}

	return result
}
