package entity

import "strings"

// PlaceholderOutlineSynopsis 手动改名时新建大纲条目的占位梗概
const PlaceholderOutlineSynopsis = "Synopsis not yet generated."

// ChapterOutline 章节大纲条目
type ChapterOutline struct {
	ChapterNumber       int      `json:"chapterNumber"`
	WorkingTitle        string   `json:"workingTitle"`
	BriefSynopsis       string   `json:"briefSynopsis"`
	KeyContinuityPoints []string `json:"keyContinuityPoints"`
}

// InitialSetupPlan 全书初始规划
type InitialSetupPlan struct {
	ConceptAndPremise    string           `json:"conceptAndPremise"`
	CharactersAndSetting string           `json:"charactersAndSetting"`
	OverallPlotOutline   string           `json:"overallPlotOutline"`
	LogLine              string           `json:"logLine,omitempty"`
	Synopsis             string           `json:"synopsis,omitempty"`
	ChapterOutlines      []ChapterOutline `json:"chapterOutlines"`
	ContinuityLog        ContinuityLog    `json:"inProcessAmendments"`
	Timing               *TimeLog         `json:"timing,omitempty"`
}

// HasOutline 整体情节大纲是否已填充
func (p *InitialSetupPlan) HasOutline() bool {
	return p != nil && strings.TrimSpace(p.OverallPlotOutline) != ""
}

// Outline 按章节号查找大纲
func (p *InitialSetupPlan) Outline(n int) *ChapterOutline {
	if p == nil {
		return nil
	}
	for i := range p.ChapterOutlines {
		if p.ChapterOutlines[i].ChapterNumber == n {
			return &p.ChapterOutlines[i]
		}
	}
	return nil
}

// SetWorkingTitle 更新大纲标题；create 为真且大纲不存在时追加占位条目
func (p *InitialSetupPlan) SetWorkingTitle(n int, title string, create bool) {
	if o := p.Outline(n); o != nil {
		o.WorkingTitle = title
		return
	}
	if !create {
		return
	}
	p.ChapterOutlines = append(p.ChapterOutlines, ChapterOutline{
		ChapterNumber:       n,
		WorkingTitle:        title,
		BriefSynopsis:       PlaceholderOutlineSynopsis,
		KeyContinuityPoints: []string{},
	})
}

// Clone 深拷贝
func (p *InitialSetupPlan) Clone() *InitialSetupPlan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.ChapterOutlines = make([]ChapterOutline, len(p.ChapterOutlines))
	for i, o := range p.ChapterOutlines {
		o.KeyContinuityPoints = append([]string(nil), o.KeyContinuityPoints...)
		cp.ChapterOutlines[i] = o
	}
	cp.ContinuityLog = p.ContinuityLog.Clone()
	if p.Timing != nil {
		t := *p.Timing
		cp.Timing = &t
	}
	return &cp
}
