package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"z-novel-forge/internal/application/story/orchestrator"
	"z-novel-forge/internal/interfaces/http/dto"
	wfmodel "z-novel-forge/internal/workflow/model"
	apperrors "z-novel-forge/pkg/errors"
)

// OperationPublisher 将生成操作投递到任务队列
type OperationPublisher interface {
	PublishOperation(ctx context.Context, req orchestrator.OperationRequest) (string, error)
}

// GenerationHandler 生成类操作处理器
//
// 默认同步执行并返回最新项目；请求体 async 为 true 且配置了队列时投递给 job-worker，返回 202。
type GenerationHandler struct {
	orch      *orchestrator.Orchestrator
	publisher OperationPublisher
	now       func() time.Time
}

// NewGenerationHandler 创建生成处理器；publisher 可为 nil
func NewGenerationHandler(orch *orchestrator.Orchestrator, publisher OperationPublisher) *GenerationHandler {
	return &GenerationHandler{orch: orch, publisher: publisher, now: time.Now}
}

// GenerateInitialPlan 生成初始规划
// @Summary 生成初始规划
// @Tags Generation
// @Accept json
// @Produce json
// @Param pid path string true "项目ID"
// @Param body body dto.GenerateRequest false "补充要求"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Failure 409 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Router /api/v1/projects/{pid}/plan [post]
func (h *GenerationHandler) GenerateInitialPlan(c *gin.Context) {
	h.run(c, orchestrator.OpInitialPlan, false)
}

// RewriteInitialPlan 按要求重写初始规划
// @Router /api/v1/projects/{pid}/plan/rewrite [post]
func (h *GenerationHandler) RewriteInitialPlan(c *gin.Context) {
	h.run(c, orchestrator.OpRewriteInitialPlan, false)
}

// GenerateChapterPlan 生成章节规划
// @Router /api/v1/projects/{pid}/chapters/{n}/plan [post]
func (h *GenerationHandler) GenerateChapterPlan(c *gin.Context) {
	h.run(c, orchestrator.OpChapterPlan, true)
}

// RewriteChapterPlan 重写章节规划，清空该章后续产出
// @Router /api/v1/projects/{pid}/chapters/{n}/plan/rewrite [post]
func (h *GenerationHandler) RewriteChapterPlan(c *gin.Context) {
	h.run(c, orchestrator.OpRewriteChapterPlan, true)
}

// GenerateChapterProse 生成章节正文
// @Router /api/v1/projects/{pid}/chapters/{n}/prose [post]
func (h *GenerationHandler) GenerateChapterProse(c *gin.Context) {
	h.run(c, orchestrator.OpChapterProse, true)
}

// RewriteChapterProse 重写章节正文
// @Router /api/v1/projects/{pid}/chapters/{n}/prose/rewrite [post]
func (h *GenerationHandler) RewriteChapterProse(c *gin.Context) {
	h.run(c, orchestrator.OpRewriteChapterProse, true)
}

// GenerateChapterReview 审阅章节
// @Summary 审阅章节
// @Tags Generation
// @Produce json
// @Param pid path string true "项目ID"
// @Param n path int true "章节号"
// @Success 200 {object} dto.Response[dto.ReviewResponse]
// @Router /api/v1/projects/{pid}/chapters/{n}/review [post]
func (h *GenerationHandler) GenerateChapterReview(c *gin.Context) {
	h.review(c, orchestrator.OpChapterReview, h.orch.GenerateChapterReview)
}

// RewriteChapterReview 重写章节审阅
// @Router /api/v1/projects/{pid}/chapters/{n}/review/rewrite [post]
func (h *GenerationHandler) RewriteChapterReview(c *gin.Context) {
	h.review(c, orchestrator.OpRewriteReview, h.orch.RewriteChapterReview)
}

// ReviseChapter 按人工反馈修订章节
// @Summary 修订章节
// @Tags Generation
// @Accept json
// @Produce json
// @Param pid path string true "项目ID"
// @Param n path int true "章节号"
// @Param body body dto.ReviseRequest true "修订意见"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Router /api/v1/projects/{pid}/chapters/{n}/revise [post]
func (h *GenerationHandler) ReviseChapter(c *gin.Context) {
	chapter, err := dto.BindChapterNumber(c)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	var req dto.ReviseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	h.execute(c, false, orchestrator.OperationRequest{
		Operation: orchestrator.OpReviseChapter,
		ProjectID: dto.BindProjectID(c),
		Chapter:   chapter,
		Context:   req.Feedback,
	})
}

// UpdateChapterTitle 修改章节标题
// @Summary 修改章节标题
// @Tags Generation
// @Accept json
// @Produce json
// @Param pid path string true "项目ID"
// @Param n path int true "章节号"
// @Param body body dto.UpdateTitleRequest true "标题"
// @Success 200 {object} dto.Response[dto.ProjectResponse]
// @Router /api/v1/projects/{pid}/chapters/{n}/title [patch]
func (h *GenerationHandler) UpdateChapterTitle(c *gin.Context) {
	chapter, err := dto.BindChapterNumber(c)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	var req dto.UpdateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	h.execute(c, false, orchestrator.OperationRequest{
		Operation: orchestrator.OpUpdateChapterTitle,
		ProjectID: dto.BindProjectID(c),
		Chapter:   chapter,
		Title:     req.Title,
	})
}

func (h *GenerationHandler) run(c *gin.Context, op string, withChapter bool) {
	req := orchestrator.OperationRequest{Operation: op, ProjectID: dto.BindProjectID(c)}
	if withChapter {
		chapter, err := dto.BindChapterNumber(c)
		if err != nil {
			dto.FromError(c, err)
			return
		}
		req.Chapter = chapter
	}

	body, ok := bindGenerate(c)
	if !ok {
		return
	}
	req.Context = body.Context
	h.execute(c, body.Async, req)
}

func (h *GenerationHandler) execute(c *gin.Context, async bool, req orchestrator.OperationRequest) {
	ctx := c.Request.Context()

	if async {
		if h.publisher == nil {
			dto.FromError(c, apperrors.New(apperrors.CodeInvalidParam, "async execution is not enabled"))
			return
		}
		id, err := h.publisher.PublishOperation(ctx, req)
		if err != nil {
			dto.FromError(c, err)
			return
		}
		dto.Accepted(c, &dto.QueuedResponse{MessageID: id})
		return
	}

	if err := h.orch.Dispatch(ctx, req); err != nil {
		dto.FromError(c, err)
		return
	}
	p, err := h.orch.GetProject(ctx, req.ProjectID)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToProjectResponse(p, h.orch.RunState(p.ID), h.now()))
}

type reviewFunc func(ctx context.Context, projectID string, chapter int, feedback string) (*wfmodel.ParsedChapterReview, error)

func (h *GenerationHandler) review(c *gin.Context, op string, fn reviewFunc) {
	chapter, err := dto.BindChapterNumber(c)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	body, ok := bindGenerate(c)
	if !ok {
		return
	}
	projectID := dto.BindProjectID(c)
	if body.Async {
		h.execute(c, true, orchestrator.OperationRequest{
			Operation: op,
			ProjectID: projectID,
			Chapter:   chapter,
			Context:   body.Context,
		})
		return
	}

	review, err := fn(c.Request.Context(), projectID, chapter, body.Context)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, &dto.ReviewResponse{Chapter: chapter, Review: review})
}

// bindGenerate 请求体可省略
func bindGenerate(c *gin.Context) (dto.GenerateRequest, bool) {
	var body dto.GenerateRequest
	if c.Request.ContentLength == 0 {
		return body, true
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return body, false
	}
	return body, true
}
