package redis

import (
	"context"
	"encoding/json"
	"time"

	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/logger"
	"z-novel-forge/pkg/metrics"
)

const storeName = "redis_cache"

// CachedProjectStore 项目存储的读缓存装饰器
//
// Get 走缓存，写操作先落底层存储再删除缓存键。缓存不可用时直接回源。
type CachedProjectStore struct {
	next  repository.ProjectStore
	cache *Cache
	ttl   time.Duration
}

var _ repository.ProjectStore = (*CachedProjectStore)(nil)

func NewCachedProjectStore(next repository.ProjectStore, cache *Cache, ttl time.Duration) *CachedProjectStore {
	return &CachedProjectStore{next: next, cache: cache, ttl: ttl}
}

// List 不缓存
func (s *CachedProjectStore) List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[repository.ProjectSummary], error) {
	return s.next.List(ctx, pagination)
}

func (s *CachedProjectStore) Get(ctx context.Context, id string) (*entity.Project, error) {
	var loaded *entity.Project
	data, err := s.cache.GetOrLoadSafe(ctx, ProjectKey(id), s.ttl, func() (any, error) {
		p, err := s.next.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		loaded = p
		return p, nil
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		logger.Warn(ctx, "project cache unavailable, falling back to store", "error", err.Error())
		metrics.StoreOperationsTotal.WithLabelValues(storeName, "get", metrics.StatusError).Inc()
		return s.next.Get(ctx, id)
	}
	if loaded != nil {
		return loaded, nil
	}

	var p entity.Project
	if err := json.Unmarshal(data, &p); err != nil {
		logger.Warn(ctx, "corrupt project cache entry", "error", err.Error())
		_ = s.cache.Delete(ctx, ProjectKey(id))
		return s.next.Get(ctx, id)
	}
	metrics.StoreOperationsTotal.WithLabelValues(storeName, "get", metrics.StatusSuccess).Inc()
	return &p, nil
}

func (s *CachedProjectStore) Save(ctx context.Context, project *entity.Project) error {
	if err := s.next.Save(ctx, project); err != nil {
		return err
	}
	s.invalidate(ctx, project.ID)
	return nil
}

func (s *CachedProjectStore) Delete(ctx context.Context, id string) error {
	if err := s.next.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *CachedProjectStore) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, ProjectKey(id)); err != nil {
		logger.Warn(ctx, "failed to invalidate project cache", "project_id", id, "error", err.Error())
	}
}
