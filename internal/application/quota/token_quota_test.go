package quota_test

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-forge/internal/application/quota"
	"z-novel-forge/internal/domain/service"
	"z-novel-forge/internal/infrastructure/persistence/memory"
	apperrors "z-novel-forge/pkg/errors"
)

type countingGenerator struct {
	calls int
}

func (g *countingGenerator) Generate(context.Context, string, []*schema.Message, bool) (string, error) {
	g.calls++
	return "ok", nil
}

func TestRecorderAndDailyBudget(t *testing.T) {
	ctx := service.WithProject(context.Background(), "p1")
	repo := memory.NewLLMUsageEventRepository()
	rec := quota.NewRecorder(repo)
	checker := quota.NewChecker(repo, 100)

	// 1. 未达上限时放行
	next := &countingGenerator{}
	gen := quota.NewGuardedGenerator(next, checker)
	out, err := gen.Generate(ctx, "m", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	// 2. 其它项目的用量不计入
	require.NoError(t, rec.Record(ctx, service.LLMUsageInput{ProjectID: "p1", Operation: "chapter_prose", PromptTokens: 60, CompletionTokens: 30}))
	require.NoError(t, rec.Record(ctx, service.LLMUsageInput{ProjectID: "p2", PromptTokens: 500}))
	usage, err := checker.DailyUsage(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, usage.Calls)
	assert.EqualValues(t, 90, usage.Total())

	// 3. 达到上限后拒绝调用
	require.NoError(t, rec.Record(ctx, service.LLMUsageInput{ProjectID: "p1", CompletionTokens: 10}))
	_, err = gen.Generate(ctx, "m", nil, false)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeQuotaExceeded))
	assert.Equal(t, 1, next.calls)
}

func TestBudgetDisabled(t *testing.T) {
	repo := memory.NewLLMUsageEventRepository()
	checker := quota.NewChecker(repo, 0)
	rec := quota.NewRecorder(repo)
	ctx := context.Background()
	require.NoError(t, rec.Record(ctx, service.LLMUsageInput{ProjectID: "p1", PromptTokens: 1 << 20}))
	assert.NoError(t, checker.CheckDailyTokens(ctx, "p1"))

	err := rec.Record(ctx, service.LLMUsageInput{ProjectID: "p1", PromptTokens: -1})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParam))
}
