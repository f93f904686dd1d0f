package dto

import (
	"z-novel-forge/internal/application/story/autorun"
	wfmodel "z-novel-forge/internal/workflow/model"
)

// GenerateRequest 生成/重写请求；context 为反馈或重写要求，可为空
type GenerateRequest struct {
	Context string `json:"context"`
	// Async 为 true 时投递到任务队列
	Async bool `json:"async"`
}

// ReviseRequest 修订请求
type ReviseRequest struct {
	Feedback string `json:"feedback" binding:"required"`
}

// UpdateTitleRequest 修改章节标题
type UpdateTitleRequest struct {
	Title string `json:"title" binding:"required"`
}

// ReviewResponse 审阅结果
type ReviewResponse struct {
	Chapter int                          `json:"chapter"`
	Review  *wfmodel.ParsedChapterReview `json:"review"`
}

// QueuedResponse 已入队
type QueuedResponse struct {
	MessageID string `json:"messageId"`
}

// AutoRunStepResponse 手动触发单步的结果
type AutoRunStepResponse struct {
	Action autorun.Action `json:"action"`
	Status autorun.Status `json:"status"`
}
