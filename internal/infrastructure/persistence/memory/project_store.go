// Package memory 提供进程内存储实现，用于本地运行与测试
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/metrics"
)

const storeName = "memory"

// ProjectStore 内存项目存储，读写均复制，调用方修改不会影响已存数据
type ProjectStore struct {
	mu       sync.RWMutex
	projects map[string]*entity.Project
	maxBytes int
	now      func() time.Time
}

var _ repository.ProjectStore = (*ProjectStore)(nil)

// NewProjectStore 创建内存存储；maxBytes 大于 0 时限制单个项目序列化后的大小
func NewProjectStore(maxBytes int) *ProjectStore {
	return &ProjectStore{
		projects: make(map[string]*entity.Project),
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// List 按更新时间倒序列出
func (s *ProjectStore) List(_ context.Context, pagination repository.Pagination) (*repository.PagedResult[repository.ProjectSummary], error) {
	s.mu.RLock()
	all := make([]*entity.Project, 0, len(s.projects))
	for _, p := range s.projects {
		all = append(all, p)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})
	summaries := make([]repository.ProjectSummary, 0, len(all))
	for _, p := range all {
		summaries = append(summaries, repository.SummarizeProject(p))
	}
	metrics.StoreOperationsTotal.WithLabelValues(storeName, "list", metrics.StatusSuccess).Inc()
	return repository.Paginate(summaries, pagination), nil
}

// Get 获取项目副本
func (s *ProjectStore) Get(_ context.Context, id string) (*entity.Project, error) {
	s.mu.RLock()
	p, ok := s.projects[id]
	s.mu.RUnlock()
	if !ok {
		metrics.StoreOperationsTotal.WithLabelValues(storeName, "get", metrics.StatusError).Inc()
		return nil, apperrors.ErrProjectNotFound
	}
	metrics.StoreOperationsTotal.WithLabelValues(storeName, "get", metrics.StatusSuccess).Inc()
	return p.Clone(), nil
}

// Save upsert 项目
func (s *ProjectStore) Save(_ context.Context, project *entity.Project) error {
	if project == nil || project.ID == "" {
		return apperrors.New(apperrors.CodeInvalidParam, "project id is required")
	}
	now := s.now()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now

	if s.maxBytes > 0 {
		data, err := json.Marshal(project)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeStorageError, "failed to encode project")
		}
		if len(data) > s.maxBytes {
			metrics.StoreOperationsTotal.WithLabelValues(storeName, "save", metrics.StatusError).Inc()
			return apperrors.New(apperrors.CodeStorageCapacity, apperrors.ErrStorageCapacity.Message).
				WithDetail(fmt.Sprintf("%d bytes exceeds limit of %d bytes", len(data), s.maxBytes))
		}
	}

	s.mu.Lock()
	s.projects[project.ID] = project.Clone()
	s.mu.Unlock()
	metrics.StoreOperationsTotal.WithLabelValues(storeName, "save", metrics.StatusSuccess).Inc()
	return nil
}

// Delete 删除项目
func (s *ProjectStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return apperrors.ErrProjectNotFound
	}
	delete(s.projects, id)
	metrics.StoreOperationsTotal.WithLabelValues(storeName, "delete", metrics.StatusSuccess).Inc()
	return nil
}

// Transactor 内存存储不支持回滚，直接执行
type Transactor struct{}

// WithTransaction 直接执行 fn
func (Transactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
