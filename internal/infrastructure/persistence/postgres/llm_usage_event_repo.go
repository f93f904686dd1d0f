package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
)

// LLMUsageEventRepository 模型用量仓储
type LLMUsageEventRepository struct {
	client *Client
}

var _ repository.LLMUsageEventRepository = (*LLMUsageEventRepository)(nil)

func NewLLMUsageEventRepository(client *Client) *LLMUsageEventRepository {
	return &LLMUsageEventRepository{client: client}
}

func (r *LLMUsageEventRepository) Create(ctx context.Context, event *entity.LLMUsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.Create")
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if err := getDB(ctx, r.client.db).Create(event).Error; err != nil {
		span.RecordError(err)
		return translate(err, "failed to create llm usage event")
	}
	return nil
}

func (r *LLMUsageEventRepository) Summarize(ctx context.Context, projectID string, startInclusive, endExclusive time.Time) (*entity.TokenUsage, error) {
	ctx, span := tracer.Start(ctx, "postgres.LLMUsageEventRepository.Summarize")
	defer span.End()

	db := getDB(ctx, r.client.db).Model(&entity.LLMUsageEvent{}).
		Where("created_at >= ? AND created_at < ?", startInclusive, endExclusive)
	if projectID != "" {
		db = db.Where("project_id = ?", projectID)
	}

	var row struct {
		Calls            int64
		PromptTokens     int64
		CompletionTokens int64
	}
	err := db.Select("COUNT(*) AS calls, " +
		"COALESCE(SUM(tokens_prompt),0) AS prompt_tokens, " +
		"COALESCE(SUM(tokens_completion),0) AS completion_tokens").
		Scan(&row).Error
	if err != nil {
		span.RecordError(err)
		return nil, translate(err, "failed to summarize llm usage")
	}
	return &entity.TokenUsage{
		ProjectID:        projectID,
		Calls:            row.Calls,
		PromptTokens:     row.PromptTokens,
		CompletionTokens: row.CompletionTokens,
	}, nil
}
