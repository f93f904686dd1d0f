package handler

import (
	"github.com/gin-gonic/gin"

	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
	"z-novel-forge/internal/interfaces/http/dto"
)

// GlobalContextHandler 跨项目上下文日志处理器
type GlobalContextHandler struct {
	log repository.GlobalContextLog
}

// NewGlobalContextHandler 创建处理器
func NewGlobalContextHandler(log repository.GlobalContextLog) *GlobalContextHandler {
	return &GlobalContextHandler{log: log}
}

// List 列出条目；exclude 指定项目时排除其条目（与生成提示词时一致）
// @Summary 跨项目上下文
// @Tags GlobalContext
// @Produce json
// @Param exclude query string false "排除的项目ID"
// @Success 200 {object} dto.Response[dto.GlobalContextResponse]
// @Router /api/v1/global-context [get]
func (h *GlobalContextHandler) List(c *gin.Context) {
	entries, err := h.log.List(c.Request.Context(), c.Query("exclude"))
	if err != nil {
		dto.FromError(c, err)
		return
	}
	if entries == nil {
		entries = []entity.GlobalContextEntry{}
	}
	dto.Success(c, &dto.GlobalContextResponse{
		Entries:  entries,
		Rendered: entity.RenderGlobalContext(entries),
	})
}

// Add 手动添加条目
// @Summary 添加跨项目上下文条目
// @Tags GlobalContext
// @Accept json
// @Produce json
// @Param body body dto.AddGlobalContextRequest true "条目"
// @Success 201 {object} dto.Response[entity.GlobalContextEntry]
// @Router /api/v1/global-context [post]
func (h *GlobalContextHandler) Add(c *gin.Context) {
	var req dto.AddGlobalContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	entry, err := req.ToEntity()
	if err != nil {
		dto.FromError(c, err)
		return
	}
	if err := h.log.Add(c.Request.Context(), entry); err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Created(c, entry)
}

// Delete 删除条目
// @Summary 删除跨项目上下文条目
// @Tags GlobalContext
// @Param id path string true "条目ID"
// @Success 204
// @Router /api/v1/global-context/{id} [delete]
func (h *GlobalContextHandler) Delete(c *gin.Context) {
	if err := h.log.Delete(c.Request.Context(), c.Param("id")); err != nil {
		dto.FromError(c, err)
		return
	}
	dto.NoContent(c)
}
