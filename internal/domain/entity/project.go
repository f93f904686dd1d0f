// Package entity 定义领域实体
package entity

import (
	"fmt"
	"sort"
	"time"
)

// SourceDataFile 用户上传的参考资料
type SourceDataFile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Project 小说项目聚合根
type Project struct {
	ID                       string            `json:"id"`
	Title                    string            `json:"title"`
	Idea                     Idea              `json:"idea"`
	SourceData               []SourceDataFile  `json:"sourceData,omitempty"`
	InitialPlan              *InitialSetupPlan `json:"initialAISetupPlan,omitempty"`
	Chapters                 []Chapter         `json:"chapters"`
	CurrentChapterProcessing int               `json:"currentChapterProcessing"`
	SelectedModel            string            `json:"selectedGlobalAIModel"`
	LastTurnDurationMs       int64             `json:"lastTurnDurationMs"`
	CreatedAt                time.Time         `json:"createdAt"`
	UpdatedAt                time.Time         `json:"updatedAt"`
	SystemLog                []SystemLogEntry  `json:"systemLog"`
}

// NewProject 创建新项目，游标指向第 1 章，连续性日志写入创建种子
func NewProject(id, title string, idea Idea, sources []SourceDataFile, model string, now time.Time) *Project {
	p := &Project{
		ID:                       id,
		Title:                    title,
		Idea:                     idea,
		SourceData:               sources,
		Chapters:                 []Chapter{},
		CurrentChapterProcessing: 1,
		SelectedModel:            model,
		CreatedAt:                now,
		UpdatedAt:                now,
		SystemLog:                []SystemLogEntry{},
		InitialPlan: &InitialSetupPlan{
			ChapterOutlines: []ChapterOutline{},
			ContinuityLog:   NewContinuityLog(fmt.Sprintf(ContinuitySeedCreated, idea.InfluencesOrNone())),
		},
	}
	p.AppendSystemLog(fmt.Sprintf("Project %q created.", title), now)
	return p
}

// Chapter 按章节号查找章节
func (p *Project) Chapter(n int) *Chapter {
	for i := range p.Chapters {
		if p.Chapters[i].ChapterNumber == n {
			return &p.Chapters[i]
		}
	}
	return nil
}

// EnsureChapter 返回指定章节，不存在时按章节号有序插入空章节
func (p *Project) EnsureChapter(n int) *Chapter {
	if c := p.Chapter(n); c != nil {
		return c
	}
	title := ""
	if o := p.InitialPlan.Outline(n); o != nil {
		title = o.WorkingTitle
	}
	p.Chapters = append(p.Chapters, NewChapter(n, title))
	sort.SliceStable(p.Chapters, func(i, j int) bool {
		return p.Chapters[i].ChapterNumber < p.Chapters[j].ChapterNumber
	})
	return p.Chapter(n)
}

// Outline 按章节号查找大纲
func (p *Project) Outline(n int) *ChapterOutline {
	return p.InitialPlan.Outline(n)
}

// TargetChapterCount 目标章节数
func (p *Project) TargetChapterCount() int {
	return p.Idea.TargetChapterCount
}

// ContinuityText 连续性日志文本视图
func (p *Project) ContinuityText() string {
	if p.InitialPlan == nil {
		return ""
	}
	return p.InitialPlan.ContinuityLog.Render()
}

// Normalize 补全加载或导入后缺失的结构字段
func (p *Project) Normalize(defaultModel, continuitySeed string, now time.Time) {
	if p.CurrentChapterProcessing < 1 {
		p.CurrentChapterProcessing = 1
	}
	if p.Chapters == nil {
		p.Chapters = []Chapter{}
	}
	sort.SliceStable(p.Chapters, func(i, j int) bool {
		return p.Chapters[i].ChapterNumber < p.Chapters[j].ChapterNumber
	})
	if p.SelectedModel == "" {
		p.SelectedModel = defaultModel
	}
	if p.SystemLog == nil {
		p.SystemLog = []SystemLogEntry{}
	}
	if p.LastTurnDurationMs < 0 {
		p.LastTurnDurationMs = 0
	}
	if p.InitialPlan == nil {
		p.InitialPlan = &InitialSetupPlan{}
	}
	if p.InitialPlan.ChapterOutlines == nil {
		p.InitialPlan.ChapterOutlines = []ChapterOutline{}
	}
	if p.InitialPlan.ContinuityLog.IsZero() {
		p.InitialPlan.ContinuityLog = NewContinuityLog(continuitySeed)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
}

// Clone 深拷贝，生成操作在副本上修改，成功后整体提交
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	cp := *p
	if p.SourceData != nil {
		cp.SourceData = append([]SourceDataFile(nil), p.SourceData...)
	}
	cp.InitialPlan = p.InitialPlan.Clone()
	if p.Chapters != nil {
		cp.Chapters = make([]Chapter, len(p.Chapters))
		for i, c := range p.Chapters {
			cp.Chapters[i] = c.Clone()
		}
	}
	if p.SystemLog != nil {
		cp.SystemLog = append([]SystemLogEntry(nil), p.SystemLog...)
	}
	return &cp
}
