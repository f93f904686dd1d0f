package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
	apperrors "z-novel-forge/pkg/errors"
)

// GlobalContextRepository 跨项目上下文日志
type GlobalContextRepository struct {
	client *Client
}

var _ repository.GlobalContextLog = (*GlobalContextRepository)(nil)

// NewGlobalContextRepository 创建跨项目上下文仓储
func NewGlobalContextRepository(client *Client) *GlobalContextRepository {
	return &GlobalContextRepository{client: client}
}

// ReplaceForProject 删除项目已有条目后批量写入
func (r *GlobalContextRepository) ReplaceForProject(ctx context.Context, projectID string, entries []entity.GlobalContextEntry) error {
	ctx, span := tracer.Start(ctx, "postgres.GlobalContextRepository.ReplaceForProject")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("project_id = ?", projectID).Delete(&entity.GlobalContextEntry{}).Error; err != nil {
		span.RecordError(err)
		return translate(err, "failed to clear global context entries")
	}
	if len(entries) == 0 {
		return nil
	}

	rows := make([]entity.GlobalContextEntry, len(entries))
	for i, e := range entries {
		e.ProjectID = projectID
		fillEntry(&e)
		rows[i] = e
	}
	if err := db.Create(&rows).Error; err != nil {
		span.RecordError(err)
		return translate(err, "failed to insert global context entries")
	}
	return nil
}

// Add 追加条目
func (r *GlobalContextRepository) Add(ctx context.Context, entry *entity.GlobalContextEntry) error {
	ctx, span := tracer.Start(ctx, "postgres.GlobalContextRepository.Add")
	defer span.End()

	if entry == nil {
		return apperrors.New(apperrors.CodeInvalidParam, "entry is nil")
	}
	fillEntry(entry)
	if err := getDB(ctx, r.client.db).Create(entry).Error; err != nil {
		span.RecordError(err)
		return translate(err, "failed to add global context entry")
	}
	return nil
}

// Delete 删除条目
func (r *GlobalContextRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.GlobalContextRepository.Delete")
	defer span.End()

	res := getDB(ctx, r.client.db).Where("id = ?", id).Delete(&entity.GlobalContextEntry{})
	if res.Error != nil {
		span.RecordError(res.Error)
		return translate(res.Error, "failed to delete global context entry")
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrEntryNotFound
	}
	return nil
}

// List 按创建时间列出，排除指定项目
func (r *GlobalContextRepository) List(ctx context.Context, excludeProjectID string) ([]entity.GlobalContextEntry, error) {
	ctx, span := tracer.Start(ctx, "postgres.GlobalContextRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if excludeProjectID != "" {
		db = db.Where("project_id <> ?", excludeProjectID)
	}
	var entries []entity.GlobalContextEntry
	if err := db.Order("created_at ASC").Order("id ASC").Find(&entries).Error; err != nil {
		span.RecordError(err)
		return nil, translate(err, "failed to list global context entries")
	}
	return entries, nil
}

func fillEntry(e *entity.GlobalContextEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ProjectID == "" {
		e.ProjectID = entity.ManualProjectID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
}
