package repository

import (
	"context"
	"time"

	"z-novel-forge/internal/domain/entity"
)

// LLMUsageEventRepository 模型用量记录
type LLMUsageEventRepository interface {
	Create(ctx context.Context, event *entity.LLMUsageEvent) error
	// Summarize 汇总 [start, end) 内项目的用量；projectID 为空时汇总全部
	Summarize(ctx context.Context, projectID string, startInclusive, endExclusive time.Time) (*entity.TokenUsage, error)
}
