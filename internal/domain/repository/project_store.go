package repository

import (
	"context"

	"z-novel-forge/internal/domain/entity"
)

// ProjectSummary 项目列表项
type ProjectSummary struct {
	ID                       string       `json:"id"`
	Title                    string       `json:"title"`
	Genre                    string       `json:"genre"`
	Phase                    entity.Phase `json:"phase"`
	CurrentChapterProcessing int          `json:"currentChapterProcessing"`
	TargetChapterCount       int          `json:"targetChapterCount"`
	SelectedModel            string       `json:"selectedGlobalAIModel"`
	UpdatedAt                int64        `json:"updatedAt"`
}

// SummarizeProject 由项目生成列表项
func SummarizeProject(p *entity.Project) ProjectSummary {
	return ProjectSummary{
		ID:                       p.ID,
		Title:                    p.Title,
		Genre:                    p.Idea.Genre,
		Phase:                    entity.DerivePhase(p),
		CurrentChapterProcessing: p.CurrentChapterProcessing,
		TargetChapterCount:       p.TargetChapterCount(),
		SelectedModel:            p.SelectedModel,
		UpdatedAt:                p.UpdatedAt.UnixMilli(),
	}
}

// ProjectStore 项目持久化接口
// 项目作为整体文档读写；Save 为 upsert，写入 UpdatedAt，缺失时补 CreatedAt
// 序列化后超出容量上限时返回 CodeStorageCapacity 错误，调用方不应重试
type ProjectStore interface {
	// List 按更新时间倒序列出项目
	List(ctx context.Context, pagination Pagination) (*PagedResult[ProjectSummary], error)

	// Get 获取项目，不存在时返回 ErrProjectNotFound
	Get(ctx context.Context, id string) (*entity.Project, error)

	// Save 保存项目
	Save(ctx context.Context, project *entity.Project) error

	// Delete 删除项目
	Delete(ctx context.Context, id string) error
}
