package repository

import (
	"context"

	"z-novel-forge/internal/domain/entity"
)

// GlobalContextLog 跨项目创意元素日志
type GlobalContextLog interface {
	// ReplaceForProject 删除该项目已有条目后写入新条目
	ReplaceForProject(ctx context.Context, projectID string, entries []entity.GlobalContextEntry) error

	// Add 追加单条条目（手动条目使用 entity.ManualProjectID）
	Add(ctx context.Context, entry *entity.GlobalContextEntry) error

	// Delete 删除条目，不存在时返回 ErrEntryNotFound
	Delete(ctx context.Context, id string) error

	// List 按创建顺序列出条目，excludeProjectID 非空时排除该项目
	List(ctx context.Context, excludeProjectID string) ([]entity.GlobalContextEntry, error)
}
