package entity

import "strings"

// Chapter 章节内容：规划、正文、审阅及其反馈与耗时
type Chapter struct {
	ChapterNumber               int       `json:"chapterNumber"`
	Title                       string    `json:"title,omitempty"`
	Plan                        string    `json:"plan"`
	Prose                       string    `json:"prose"`
	Review                      string    `json:"review"`
	UserFeedbackForRevision     string    `json:"userFeedbackForRevision,omitempty"`
	PlanUserFeedback            string    `json:"planUserFeedback,omitempty"`
	ProseUserFeedback           string    `json:"proseUserFeedback,omitempty"`
	ReviewUserFeedback          string    `json:"reviewUserFeedback,omitempty"`
	IsRevised                   bool      `json:"isRevised,omitempty"`
	AutoRevisionRecommendedByAI bool      `json:"autoRevisionRecommendedByAI,omitempty"`
	AutoRevisionReasonsFromAI   string    `json:"autoRevisionReasonsFromAI,omitempty"`
	PlanTiming                  *TimeLog  `json:"planTiming,omitempty"`
	ProseTiming                 *TimeLog  `json:"proseTiming,omitempty"`
	ReviewTiming                *TimeLog  `json:"reviewTiming,omitempty"`
	RevisionTimings             []TimeLog `json:"revisionTimings,omitempty"`
	ModelUsed                   string    `json:"modelUsed,omitempty"`
}

// NewChapter 创建空章节
func NewChapter(n int, title string) Chapter {
	return Chapter{ChapterNumber: n, Title: title}
}

// HasPlan 是否已有规划
func (c *Chapter) HasPlan() bool { return c != nil && strings.TrimSpace(c.Plan) != "" }

// HasProse 是否已有正文
func (c *Chapter) HasProse() bool { return c != nil && strings.TrimSpace(c.Prose) != "" }

// HasReview 是否已有审阅
func (c *Chapter) HasReview() bool { return c != nil && strings.TrimSpace(c.Review) != "" }

// IsComplete 规划、正文、审阅均已就绪
func (c *Chapter) IsComplete() bool { return c.HasPlan() && c.HasProse() && c.HasReview() }

// NeedsPlan 尚无规划；中断的修订会先清空规划，因此同样落在这里
func (c *Chapter) NeedsPlan() bool {
	return !c.HasPlan()
}

// ClearAutoRevision 清除 AI 修订建议
func (c *Chapter) ClearAutoRevision() {
	c.AutoRevisionRecommendedByAI = false
	c.AutoRevisionReasonsFromAI = ""
}

// ClearReview 清除审阅
func (c *Chapter) ClearReview() {
	c.Review = ""
	c.ReviewTiming = nil
	c.ClearAutoRevision()
}

// ClearFromProse 清除正文及其下游
func (c *Chapter) ClearFromProse() {
	c.Prose = ""
	c.ProseTiming = nil
	c.ClearReview()
}

// ClearFromPlan 清除规划及其下游
func (c *Chapter) ClearFromPlan() {
	c.Plan = ""
	c.PlanTiming = nil
	c.ClearFromProse()
}

// RevisionFeedback 自动运行重新规划时沿用的反馈
func (c *Chapter) RevisionFeedback() string {
	if c == nil || !c.IsRevised {
		return ""
	}
	if c.UserFeedbackForRevision != "" {
		return c.UserFeedbackForRevision
	}
	return c.PlanUserFeedback
}

// Clone 深拷贝
func (c Chapter) Clone() Chapter {
	cp := c
	cp.PlanTiming = cloneTimeLog(c.PlanTiming)
	cp.ProseTiming = cloneTimeLog(c.ProseTiming)
	cp.ReviewTiming = cloneTimeLog(c.ReviewTiming)
	if c.RevisionTimings != nil {
		cp.RevisionTimings = append([]TimeLog(nil), c.RevisionTimings...)
	}
	return cp
}

func cloneTimeLog(t *TimeLog) *TimeLog {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
