package quota

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"

	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
	"z-novel-forge/internal/domain/service"
	"z-novel-forge/internal/workflow/port"
	apperrors "z-novel-forge/pkg/errors"
)

// Checker 按自然日（UTC）统计项目 token 用量
type Checker struct {
	usageRepo repository.LLMUsageEventRepository
	maxPerDay int64
	now       func() time.Time
}

func NewChecker(usageRepo repository.LLMUsageEventRepository, maxPerDay int64) *Checker {
	return &Checker{usageRepo: usageRepo, maxPerDay: maxPerDay, now: time.Now}
}

// DailyBudget 每日上限，0 表示不限
func (c *Checker) DailyBudget() int64 {
	return c.maxPerDay
}

// DailyUsage 返回项目当日用量
func (c *Checker) DailyUsage(ctx context.Context, projectID string) (*entity.TokenUsage, error) {
	start, end := c.today()
	return c.usageRepo.Summarize(ctx, projectID, start, end)
}

// CheckDailyTokens 用量达到上限时返回 CodeQuotaExceeded
func (c *Checker) CheckDailyTokens(ctx context.Context, projectID string) error {
	if c == nil || c.maxPerDay <= 0 || projectID == "" {
		return nil
	}
	usage, err := c.DailyUsage(ctx, projectID)
	if err != nil {
		return err
	}
	if usage.Total() >= c.maxPerDay {
		return apperrors.Newf(apperrors.CodeQuotaExceeded,
			"daily token budget exhausted for project (%d of %d tokens used)", usage.Total(), c.maxPerDay)
	}
	return nil
}

func (c *Checker) today() (time.Time, time.Time) {
	now := c.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// GuardedGenerator 调用模型前检查项目配额
type GuardedGenerator struct {
	next    port.TextGenerator
	checker *Checker
}

var _ port.TextGenerator = (*GuardedGenerator)(nil)

func NewGuardedGenerator(next port.TextGenerator, checker *Checker) *GuardedGenerator {
	return &GuardedGenerator{next: next, checker: checker}
}

func (g *GuardedGenerator) Generate(ctx context.Context, modelID string, messages []*schema.Message, wantsJSON bool) (string, error) {
	if err := g.checker.CheckDailyTokens(ctx, service.ProjectFromContext(ctx)); err != nil {
		return "", err
	}
	return g.next.Generate(ctx, modelID, messages, wantsJSON)
}
