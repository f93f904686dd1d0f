// Package model 定义工作流各阶段的输入与解析结果
package model

import "z-novel-forge/internal/domain/entity"

// InitialPlanInput 初始规划提示词输入
type InitialPlanInput struct {
	Idea           entity.Idea
	GlobalContext  string
	Sources        []entity.SourceDataFile
	RewriteContext string
}

// ChapterPlanInput 章节规划提示词输入
type ChapterPlanInput struct {
	ProjectTitle       string
	ChapterNumber      int
	OverallPlotOutline string
	OutlineSynopsis    string
	ContinuityLog      string
	TargetWordCount    int
	LiteraryInfluences string
	PreviousReview     string
	RevisionFeedback   string
	Sources            []entity.SourceDataFile
}

// ChapterProseInput 章节正文提示词输入
type ChapterProseInput struct {
	ProjectTitle     string
	ChapterNumber    int
	Plan             string
	TargetWordCount  int
	RevisionFeedback string
}

// ChapterReviewInput 章节审阅提示词输入
type ChapterReviewInput struct {
	ProjectTitle       string
	ChapterNumber      int
	Prose              string
	Plan               string
	TargetWordCount    int
	IsFinalChapter     bool
	LiteraryInfluences string
	RevisionFeedback   string
	Sources            []entity.SourceDataFile
}

// IdeaSparkInput 灵感建议提示词输入
type IdeaSparkInput struct {
	Idea     string
	Genre    string
	SubGenre string
	Sources  []entity.SourceDataFile
}
