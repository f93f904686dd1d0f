package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
)

// LLMUsageEventRepository 内存用量记录
type LLMUsageEventRepository struct {
	mu     sync.RWMutex
	events []entity.LLMUsageEvent
}

var _ repository.LLMUsageEventRepository = (*LLMUsageEventRepository)(nil)

func NewLLMUsageEventRepository() *LLMUsageEventRepository {
	return &LLMUsageEventRepository{}
}

func (r *LLMUsageEventRepository) Create(_ context.Context, event *entity.LLMUsageEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	r.mu.Lock()
	r.events = append(r.events, *event)
	r.mu.Unlock()
	return nil
}

func (r *LLMUsageEventRepository) Summarize(_ context.Context, projectID string, startInclusive, endExclusive time.Time) (*entity.TokenUsage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	usage := &entity.TokenUsage{ProjectID: projectID}
	for _, e := range r.events {
		if projectID != "" && e.ProjectID != projectID {
			continue
		}
		if e.CreatedAt.Before(startInclusive) || !e.CreatedAt.Before(endExclusive) {
			continue
		}
		usage.Calls++
		usage.PromptTokens += int64(e.TokensPrompt)
		usage.CompletionTokens += int64(e.TokensCompletion)
	}
	return usage, nil
}
