package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
	apperrors "z-novel-forge/pkg/errors"
)

func newProject(id, title string) *entity.Project {
	return entity.NewProject(id, title, entity.Idea{InitialIdea: "idea", TargetChapterCount: 3, TargetChapterWordCount: 2000}, nil, "m", time.Now())
}

func TestProjectStore_SaveGetIsolation(t *testing.T) {
	s := NewProjectStore(0)
	ctx := context.Background()
	p := newProject("p1", "One")
	require.NoError(t, s.Save(ctx, p))

	p.Title = "mutated"
	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "One", got.Title)

	got.Chapters = append(got.Chapters, entity.NewChapter(1, "x"))
	again, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, again.Chapters)

	_, err = s.Get(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeProjectNotFound))
}

func TestProjectStore_ListOrderedByUpdate(t *testing.T) {
	s := NewProjectStore(0)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Minute)
		s.now = func() time.Time { return at }
		require.NoError(t, s.Save(ctx, newProject(id, strings.ToUpper(id))))
	}

	page, err := s.List(ctx, repository.Pagination{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c", page.Items[0].ID)
	assert.Equal(t, "b", page.Items[1].ID)
}

func TestProjectStore_Capacity(t *testing.T) {
	s := NewProjectStore(2048)
	ctx := context.Background()
	p := newProject("big", "Big")
	require.NoError(t, s.Save(ctx, p))

	p.Chapters = []entity.Chapter{{ChapterNumber: 1, Prose: strings.Repeat("x", 4096)}}
	err := s.Save(ctx, p)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeStorageCapacity))

	got, err := s.Get(ctx, "big")
	require.NoError(t, err)
	assert.Empty(t, got.Chapters, "a rejected save keeps the previous version")
}

func TestProjectStore_Delete(t *testing.T) {
	s := NewProjectStore(0)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, newProject("p1", "One")))
	require.NoError(t, s.Delete(ctx, "p1"))
	assert.True(t, apperrors.HasCode(s.Delete(ctx, "p1"), apperrors.CodeProjectNotFound))
}

func TestGlobalContextLog_ReplaceAndExclude(t *testing.T) {
	l := NewGlobalContextLog()
	ctx := context.Background()

	require.NoError(t, l.ReplaceForProject(ctx, "p1", []entity.GlobalContextEntry{
		{Type: entity.GlobalContextCharacter, Element: "Mara"},
		{Type: entity.GlobalContextCoreConcept, Element: "grief"},
	}))
	require.NoError(t, l.Add(ctx, &entity.GlobalContextEntry{Type: entity.GlobalContextSetting, Element: "fog coast"}))
	require.NoError(t, l.ReplaceForProject(ctx, "p1", []entity.GlobalContextEntry{
		{Type: entity.GlobalContextCharacter, Element: "Ives"},
	}))

	all, err := l.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, entity.ManualProjectID, all[0].ProjectID)
	assert.Equal(t, "Ives", all[1].Element)
	assert.NotEmpty(t, all[1].ID)

	others, err := l.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, "fog coast", others[0].Element)

	require.NoError(t, l.Delete(ctx, all[0].ID))
	assert.True(t, apperrors.HasCode(l.Delete(ctx, all[0].ID), apperrors.CodeEntryNotFound))
}
