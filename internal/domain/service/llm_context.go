package service

import (
	"context"
	"strings"

	"z-novel-forge/pkg/logger"
)

type llmCtxKey string

const llmCtxKeyProvider llmCtxKey = "llm_provider"

const unknownLabel = "unknown"

// WithOperation 标记当前生成操作，同时进入日志上下文
func WithOperation(ctx context.Context, operation string) context.Context {
	return withValue(ctx, logger.OperationKey, operation)
}

// WithProject 标记当前项目，同时进入日志上下文
func WithProject(ctx context.Context, projectID string) context.Context {
	return withValue(ctx, logger.ProjectIDKey, projectID)
}

func WithProvider(ctx context.Context, provider string) context.Context {
	return withValue(ctx, llmCtxKeyProvider, provider)
}

func OperationFromContext(ctx context.Context) string {
	return valueOr(ctx, logger.OperationKey, unknownLabel)
}

func ProjectFromContext(ctx context.Context) string {
	return valueOr(ctx, logger.ProjectIDKey, "")
}

func ProviderFromContext(ctx context.Context) string {
	return valueOr(ctx, llmCtxKeyProvider, unknownLabel)
}

func withValue(ctx context.Context, key any, value string) context.Context {
	if ctx == nil {
		return nil
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func valueOr(ctx context.Context, key any, def string) string {
	if ctx == nil {
		return def
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}
