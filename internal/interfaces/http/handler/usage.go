package handler

import (
	"github.com/gin-gonic/gin"

	"z-novel-forge/internal/application/quota"
	"z-novel-forge/internal/interfaces/http/dto"
)

// UsageHandler 模型用量处理器
type UsageHandler struct {
	checker *quota.Checker
}

// NewUsageHandler 创建用量处理器
func NewUsageHandler(checker *quota.Checker) *UsageHandler {
	return &UsageHandler{checker: checker}
}

// GetDailyUsage 项目当日 token 用量
// @Summary 当日用量
// @Tags Projects
// @Produce json
// @Param pid path string true "项目ID"
// @Success 200 {object} dto.Response[dto.UsageResponse]
// @Router /api/v1/projects/{pid}/usage [get]
func (h *UsageHandler) GetDailyUsage(c *gin.Context) {
	projectID := dto.BindProjectID(c)
	usage, err := h.checker.DailyUsage(c.Request.Context(), projectID)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, dto.ToUsageResponse(usage, h.checker.DailyBudget()))
}
