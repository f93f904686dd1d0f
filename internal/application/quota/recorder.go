// Package quota 记录模型用量并按项目执行每日 token 配额
package quota

import (
	"context"
	"strings"

	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
	"z-novel-forge/internal/domain/service"
	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/logger"
)

// Recorder 将 eino 回调上报的用量写入仓储
type Recorder struct {
	usageRepo repository.LLMUsageEventRepository
}

var _ service.LLMUsageRecorder = (*Recorder)(nil)

func NewRecorder(usageRepo repository.LLMUsageEventRepository) *Recorder {
	return &Recorder{usageRepo: usageRepo}
}

func (r *Recorder) Record(ctx context.Context, in service.LLMUsageInput) error {
	if r == nil || r.usageRepo == nil {
		return nil
	}
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return apperrors.New(apperrors.CodeInvalidParam, "invalid token usage")
	}

	evt := &entity.LLMUsageEvent{
		ProjectID:        strings.TrimSpace(in.ProjectID),
		Operation:        strings.TrimSpace(in.Operation),
		Provider:         strings.TrimSpace(in.Provider),
		Model:            strings.TrimSpace(in.Model),
		TokensPrompt:     in.PromptTokens,
		TokensCompletion: in.CompletionTokens,
		DurationMs:       in.DurationMs,
	}
	if err := r.usageRepo.Create(ctx, evt); err != nil {
		logger.Warn(ctx, "failed to record llm usage", "error", err.Error())
		return err
	}
	return nil
}
