package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/metrics"
)

const storeName = "postgres"

// projectRow 项目整体以 JSONB 文档保存，列表所需字段冗余为普通列
type projectRow struct {
	ID                 string         `gorm:"type:varchar(64);primaryKey"`
	Title              string         `gorm:"type:text;not null"`
	Genre              string         `gorm:"type:varchar(128)"`
	Phase              string         `gorm:"type:varchar(32);not null"`
	CurrentChapter     int            `gorm:"not null"`
	TargetChapterCount int            `gorm:"not null"`
	SelectedModel      string         `gorm:"type:varchar(255)"`
	Document           []byte         `gorm:"type:jsonb;not null"`
	CreatedAt          time.Time      `gorm:"not null"`
	UpdatedAt          time.Time      `gorm:"not null;index"`
}

func (projectRow) TableName() string {
	return "projects"
}

// ProjectStore PostgreSQL 项目存储
type ProjectStore struct {
	client   *Client
	maxBytes int
	now      func() time.Time
}

var _ repository.ProjectStore = (*ProjectStore)(nil)

// NewProjectStore 创建项目存储；maxBytes 大于 0 时限制文档大小
func NewProjectStore(client *Client, maxBytes int) *ProjectStore {
	return &ProjectStore{client: client, maxBytes: maxBytes, now: time.Now}
}

// List 按更新时间倒序分页
func (s *ProjectStore) List(ctx context.Context, pagination repository.Pagination) (_ *repository.PagedResult[repository.ProjectSummary], err error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectStore.List")
	defer span.End()
	defer observe("list", &err)

	db := getDB(ctx, s.client.db).Model(&projectRow{})
	var total int64
	if err := db.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, translate(err, "failed to count projects")
	}

	var rows []projectRow
	err = getDB(ctx, s.client.db).
		Select("id", "title", "genre", "phase", "current_chapter", "target_chapter_count", "selected_model", "updated_at").
		Order("updated_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&rows).Error
	if err != nil {
		span.RecordError(err)
		return nil, translate(err, "failed to list projects")
	}

	items := make([]repository.ProjectSummary, 0, len(rows))
	for _, r := range rows {
		items = append(items, repository.ProjectSummary{
			ID:                       r.ID,
			Title:                    r.Title,
			Genre:                    r.Genre,
			Phase:                    entity.Phase(r.Phase),
			CurrentChapterProcessing: r.CurrentChapter,
			TargetChapterCount:       r.TargetChapterCount,
			SelectedModel:            r.SelectedModel,
			UpdatedAt:                r.UpdatedAt.UnixMilli(),
		})
	}
	return repository.NewPagedResult(items, total, pagination), nil
}

// Get 读取项目文档
func (s *ProjectStore) Get(ctx context.Context, id string) (_ *entity.Project, err error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectStore.Get")
	defer span.End()
	defer observe("get", &err)

	var row projectRow
	if err := getDB(ctx, s.client.db).Where("id = ?", id).First(&row).Error; err != nil {
		span.RecordError(err)
		return nil, translate(err, "failed to get project")
	}

	var p entity.Project
	if err := json.Unmarshal(row.Document, &p); err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeStorageError, "failed to decode project document")
	}
	return &p, nil
}

// Save upsert 项目文档
func (s *ProjectStore) Save(ctx context.Context, project *entity.Project) (err error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectStore.Save")
	defer span.End()
	defer observe("save", &err)

	if project == nil || project.ID == "" {
		return apperrors.New(apperrors.CodeInvalidParam, "project id is required")
	}
	now := s.now()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	doc, err := json.Marshal(project)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageError, "failed to encode project")
	}
	if s.maxBytes > 0 && len(doc) > s.maxBytes {
		return apperrors.New(apperrors.CodeStorageCapacity, apperrors.ErrStorageCapacity.Message).
			WithDetail(fmt.Sprintf("%d bytes exceeds limit of %d bytes", len(doc), s.maxBytes))
	}

	row := projectRow{
		ID:                 project.ID,
		Title:              project.Title,
		Genre:              project.Idea.Genre,
		Phase:              string(entity.DerivePhase(project)),
		CurrentChapter:     project.CurrentChapterProcessing,
		TargetChapterCount: project.TargetChapterCount(),
		SelectedModel:      project.SelectedModel,
		Document:           doc,
		CreatedAt:          project.CreatedAt,
		UpdatedAt:          project.UpdatedAt,
	}
	err = getDB(ctx, s.client.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "genre", "phase", "current_chapter", "target_chapter_count",
				"selected_model", "document", "updated_at",
			}),
		}).
		Create(&row).Error
	if err != nil {
		span.RecordError(err)
		return translate(err, "failed to save project")
	}
	return nil
}

// Delete 删除项目
func (s *ProjectStore) Delete(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectStore.Delete")
	defer span.End()
	defer observe("delete", &err)

	res := getDB(ctx, s.client.db).Where("id = ?", id).Delete(&projectRow{})
	if res.Error != nil {
		span.RecordError(res.Error)
		return translate(res.Error, "failed to delete project")
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrProjectNotFound
	}
	return nil
}

func observe(op string, err *error) {
	metrics.StoreOperationsTotal.WithLabelValues(storeName, op, metrics.StatusOf(*err)).Inc()
}
