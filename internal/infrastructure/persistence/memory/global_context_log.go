package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
	apperrors "z-novel-forge/pkg/errors"
)

// GlobalContextLog 内存跨项目上下文日志，保持插入顺序
type GlobalContextLog struct {
	mu      sync.RWMutex
	entries []entity.GlobalContextEntry
}

var _ repository.GlobalContextLog = (*GlobalContextLog)(nil)

func NewGlobalContextLog() *GlobalContextLog {
	return &GlobalContextLog{}
}

// ReplaceForProject 替换项目条目
func (l *GlobalContextLog) ReplaceForProject(_ context.Context, projectID string, entries []entity.GlobalContextEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.entries[:0:0]
	for _, e := range l.entries {
		if e.ProjectID != projectID {
			kept = append(kept, e)
		}
	}
	for _, e := range entries {
		e.ProjectID = projectID
		fill(&e)
		kept = append(kept, e)
	}
	l.entries = kept
	return nil
}

// Add 追加条目
func (l *GlobalContextLog) Add(_ context.Context, entry *entity.GlobalContextEntry) error {
	if entry == nil {
		return apperrors.New(apperrors.CodeInvalidParam, "entry is nil")
	}
	fill(entry)
	l.mu.Lock()
	l.entries = append(l.entries, *entry)
	l.mu.Unlock()
	return nil
}

// Delete 删除条目
func (l *GlobalContextLog) Delete(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.ID == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrEntryNotFound
}

// List 列出条目
func (l *GlobalContextLog) List(_ context.Context, excludeProjectID string) ([]entity.GlobalContextEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]entity.GlobalContextEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if excludeProjectID != "" && e.ProjectID == excludeProjectID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func fill(e *entity.GlobalContextEntry) {
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
