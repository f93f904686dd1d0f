// Package handler 提供 HTTP 请求处理器
package handler

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"z-novel-forge/internal/application/story/autorun"
	"z-novel-forge/internal/application/story/orchestrator"
	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
	"z-novel-forge/internal/interfaces/http/dto"
)

// maxImportBytes 导入文件大小上限
const maxImportBytes = 32 << 20

// ProjectHandler 项目处理器
type ProjectHandler struct {
	orch   *orchestrator.Orchestrator
	runner *autorun.Runner
	now    func() time.Time
}

// NewProjectHandler 创建项目处理器
func NewProjectHandler(orch *orchestrator.Orchestrator, runner *autorun.Runner) *ProjectHandler {
	return &ProjectHandler{orch: orch, runner: runner, now: time.Now}
}

// ListProjects 获取项目列表
// @Summary 获取项目列表
// @Tags Projects
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} dto.Response[dto.ProjectListResponse]
// @Router /api/v1/projects [get]
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	pageReq := dto.BindPage(c)

	result, err := h.orch.ListProjects(c.Request.Context(), repository.NewPagination(pageReq.Page, pageReq.PageSize))
	if err != nil {
		dto.FromError(c, err)
		return
	}

	meta := dto.NewPageMeta(result.Page, result.PageSize, result.Total, result.TotalPages)
	dto.SuccessWithPage(c, &dto.ProjectListResponse{Projects: result.Items}, meta)
}

// CreateProject 创建项目
// @Summary 创建项目
// @Tags Projects
// @Accept json
// @Produce json
// @Param body body orchestrator.CreateProjectRequest true "项目信息"
// @Success 201 {object} dto.Response[dto.ProjectResponse]
// @Router /api/v1/projects [post]
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req orchestrator.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	p, err := h.orch.CreateProject(c.Request.Context(), req)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Created(c, h.response(p))
}

// GetProject 获取项目详情
// @Summary 获取项目详情
// @Tags Projects
// @Produce json
// @Param pid path string true "项目ID"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/projects/{pid} [get]
func (h *ProjectHandler) GetProject(c *gin.Context) {
	p, err := h.orch.GetProject(c.Request.Context(), dto.BindProjectID(c))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, h.response(p))
}

// DeleteProject 删除项目；自动运行中的项目先停止
// @Summary 删除项目
// @Tags Projects
// @Param pid path string true "项目ID"
// @Success 204
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/projects/{pid} [delete]
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)

	if h.runner != nil && h.runner.Status(projectID).Active {
		if err := h.runner.Stop(ctx, projectID); err != nil {
			dto.FromError(c, err)
			return
		}
	}
	if err := h.orch.DeleteProject(ctx, projectID); err != nil {
		dto.FromError(c, err)
		return
	}
	dto.NoContent(c)
}

// ImportProject 导入项目文件（请求体为导出的 JSON 文档）
// @Summary 导入项目
// @Tags Projects
// @Accept json
// @Produce json
// @Success 201 {object} dto.Response[dto.ProjectResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/v1/projects/import [post]
func (h *ProjectHandler) ImportProject(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		dto.BadRequest(c, "failed to read request body")
		return
	}

	p, err := h.orch.ImportProject(c.Request.Context(), data)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Created(c, h.response(p))
}

// ExportProject 导出项目文件
// @Summary 导出项目
// @Tags Projects
// @Produce json
// @Param pid path string true "项目ID"
// @Success 200 {object} entity.Project
// @Router /api/v1/projects/{pid}/export [get]
func (h *ProjectHandler) ExportProject(c *gin.Context) {
	projectID := dto.BindProjectID(c)
	data, err := h.orch.ExportProject(c.Request.Context(), projectID)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="project-%s.json"`, projectID))
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// GetProjectState 项目阶段与运行状态，供前端轮询
// @Summary 获取项目状态
// @Tags Projects
// @Produce json
// @Param pid path string true "项目ID"
// @Success 200 {object} dto.Response[dto.ProjectStateResponse]
// @Router /api/v1/projects/{pid}/state [get]
func (h *ProjectHandler) GetProjectState(c *gin.Context) {
	p, err := h.orch.GetProject(c.Request.Context(), dto.BindProjectID(c))
	if err != nil {
		dto.FromError(c, err)
		return
	}

	resp := &dto.ProjectStateResponse{
		ProjectID:                p.ID,
		Phase:                    entity.DerivePhase(p),
		CurrentChapterProcessing: p.CurrentChapterProcessing,
		TargetChapterCount:       p.TargetChapterCount(),
		RunState:                 dto.ToRunStateResponse(h.orch.RunState(p.ID), h.now()),
		LastTurnDurationMs:       p.LastTurnDurationMs,
		ErrorLogCount:            p.CountErrorLogs(),
	}
	if h.runner != nil {
		resp.AutoRun = h.runner.Status(p.ID)
	}
	dto.Success(c, resp)
}

// UpdateModel 切换项目使用的模型
// @Summary 切换模型
// @Tags Projects
// @Accept json
// @Produce json
// @Param pid path string true "项目ID"
// @Param body body dto.UpdateModelRequest true "模型"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Router /api/v1/projects/{pid}/model [patch]
func (h *ProjectHandler) UpdateModel(c *gin.Context) {
	var req dto.UpdateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	projectID := dto.BindProjectID(c)
	if err := h.orch.UpdateSelectedModel(ctx, projectID, req.Model); err != nil {
		dto.FromError(c, err)
		return
	}
	h.respondProject(c, projectID)
}

// AdvanceCursor 推进到下一章
// @Summary 推进章节游标
// @Tags Projects
// @Produce json
// @Param pid path string true "项目ID"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Router /api/v1/projects/{pid}/advance [post]
func (h *ProjectHandler) AdvanceCursor(c *gin.Context) {
	projectID := dto.BindProjectID(c)
	if _, err := h.orch.AdvanceCursor(c.Request.Context(), projectID); err != nil {
		dto.FromError(c, err)
		return
	}
	h.respondProject(c, projectID)
}

// SuggestIdea 灵感建议
// @Summary 灵感建议
// @Tags Projects
// @Accept json
// @Produce json
// @Param body body orchestrator.IdeaSparkRequest true "创意"
// @Success 200 {object} dto.Response[model.IdeaSuggestions]
// @Router /api/v1/idea-spark [post]
func (h *ProjectHandler) SuggestIdea(c *gin.Context) {
	var req orchestrator.IdeaSparkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	suggestions, err := h.orch.SuggestIdea(c.Request.Context(), req)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, suggestions)
}

func (h *ProjectHandler) response(p *entity.Project) *dto.ProjectResponse {
	return dto.ToProjectResponse(p, h.orch.RunState(p.ID), h.now())
}

// respondProject 操作完成后返回最新项目
func (h *ProjectHandler) respondProject(c *gin.Context, projectID string) {
	p, err := h.orch.GetProject(c.Request.Context(), projectID)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, h.response(p))
}
