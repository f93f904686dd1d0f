package dto

import (
	"time"

	"z-novel-forge/internal/application/story/orchestrator"
	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
)

// ProjectResponse 项目详情：完整项目文档、派生阶段与运行状态
type ProjectResponse struct {
	*entity.Project
	Phase    entity.Phase     `json:"phase"`
	RunState RunStateResponse `json:"runState"`
}

// RunStateResponse 运行状态
type RunStateResponse struct {
	orchestrator.RunState
	ElapsedMs int64 `json:"elapsedMs"`
}

// ToRunStateResponse 转换运行状态
func ToRunStateResponse(st orchestrator.RunState, now time.Time) RunStateResponse {
	return RunStateResponse{RunState: st, ElapsedMs: st.Elapsed(now).Milliseconds()}
}

// ToProjectResponse 转换项目详情
func ToProjectResponse(p *entity.Project, st orchestrator.RunState, now time.Time) *ProjectResponse {
	return &ProjectResponse{
		Project:  p,
		Phase:    entity.DerivePhase(p),
		RunState: ToRunStateResponse(st, now),
	}
}

// ProjectListResponse 项目列表
type ProjectListResponse struct {
	Projects []repository.ProjectSummary `json:"projects"`
}

// UpdateModelRequest 切换项目模型
type UpdateModelRequest struct {
	Model string `json:"model" binding:"required"`
}

// ProjectStateResponse 项目阶段与运行状态（轮询用）
type ProjectStateResponse struct {
	ProjectID                string           `json:"projectId"`
	Phase                    entity.Phase     `json:"phase"`
	CurrentChapterProcessing int              `json:"currentChapterProcessing"`
	TargetChapterCount       int              `json:"targetChapterCount"`
	RunState                 RunStateResponse `json:"runState"`
	AutoRun                  any              `json:"autoRun,omitempty"`
	LastTurnDurationMs       int64            `json:"lastTurnDurationMs"`
	ErrorLogCount            int              `json:"errorLogCount"`
}

// UsageResponse 当日模型用量
type UsageResponse struct {
	ProjectID        string `json:"projectId"`
	Calls            int64  `json:"calls"`
	PromptTokens     int64  `json:"promptTokens"`
	CompletionTokens int64  `json:"completionTokens"`
	TotalTokens      int64  `json:"totalTokens"`
	DailyBudget      int64  `json:"dailyBudget"`
}

// ToUsageResponse 转换用量统计
func ToUsageResponse(u *entity.TokenUsage, budget int64) *UsageResponse {
	return &UsageResponse{
		ProjectID:        u.ProjectID,
		Calls:            u.Calls,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.Total(),
		DailyBudget:      budget,
	}
}
