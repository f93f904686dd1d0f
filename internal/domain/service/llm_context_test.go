package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"z-novel-forge/internal/domain/service"
	"z-novel-forge/pkg/logger"
)

func TestLLMContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "unknown", service.OperationFromContext(ctx))
	assert.Equal(t, "unknown", service.ProviderFromContext(ctx))
	assert.Empty(t, service.ProjectFromContext(ctx))

	ctx = service.WithProject(service.WithOperation(ctx, " chapter_prose "), "p1")
	ctx = service.WithProvider(ctx, "")
	assert.Equal(t, "chapter_prose", service.OperationFromContext(ctx))
	assert.Equal(t, "p1", service.ProjectFromContext(ctx))
	assert.Equal(t, "unknown", service.ProviderFromContext(ctx))

	// 与日志上下文共用同一组键
	assert.Equal(t, "p1", ctx.Value(logger.ProjectIDKey))
}
