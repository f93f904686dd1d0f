package handler

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"z-novel-forge/internal/application/story/autorun"
	"z-novel-forge/internal/interfaces/http/dto"
	"z-novel-forge/pkg/logger"
)

// AutoRunHandler 自动运行处理器
//
// 启动后由进程内 goroutine 驱动 Runner.Drive；服务关闭时取消 base ctx。
type AutoRunHandler struct {
	runner *autorun.Runner
	base   context.Context
	delay  time.Duration

	mu      sync.Mutex
	driving map[string]bool
}

// NewAutoRunHandler 创建自动运行处理器
func NewAutoRunHandler(base context.Context, runner *autorun.Runner, delay time.Duration) *AutoRunHandler {
	return &AutoRunHandler{
		runner:  runner,
		base:    base,
		delay:   delay,
		driving: make(map[string]bool),
	}
}

// Status 自动运行状态
// @Summary 自动运行状态
// @Tags AutoRun
// @Produce json
// @Param pid path string true "项目ID"
// @Success 200 {object} dto.Response[autorun.Status]
// @Router /api/v1/projects/{pid}/auto-run [get]
func (h *AutoRunHandler) Status(c *gin.Context) {
	dto.Success(c, h.runner.Status(dto.BindProjectID(c)))
}

// Start 启动自动运行
// @Summary 启动自动运行
// @Tags AutoRun
// @Produce json
// @Param pid path string true "项目ID"
// @Success 202 {object} dto.Response[autorun.Status]
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/v1/projects/{pid}/auto-run/start [post]
func (h *AutoRunHandler) Start(c *gin.Context) {
	projectID := dto.BindProjectID(c)
	if err := h.runner.Start(c.Request.Context(), projectID); err != nil {
		dto.FromError(c, err)
		return
	}
	h.drive(c.Request.Context(), projectID)
	dto.Accepted(c, h.runner.Status(projectID))
}

// Stop 停止自动运行
// @Router /api/v1/projects/{pid}/auto-run/stop [post]
func (h *AutoRunHandler) Stop(c *gin.Context) {
	h.control(c, h.runner.Stop)
}

// Pause 请求暂停，当前操作完成后生效
// @Router /api/v1/projects/{pid}/auto-run/pause [post]
func (h *AutoRunHandler) Pause(c *gin.Context) {
	h.control(c, h.runner.Pause)
}

// Resume 恢复自动运行
// @Router /api/v1/projects/{pid}/auto-run/resume [post]
func (h *AutoRunHandler) Resume(c *gin.Context) {
	projectID := dto.BindProjectID(c)
	if err := h.runner.Resume(c.Request.Context(), projectID); err != nil {
		dto.FromError(c, err)
		return
	}
	h.drive(c.Request.Context(), projectID)
	dto.Accepted(c, h.runner.Status(projectID))
}

// Step 手动执行一步（不启动后台驱动）
// @Summary 执行一步
// @Tags AutoRun
// @Produce json
// @Param pid path string true "项目ID"
// @Success 200 {object} dto.Response[dto.AutoRunStepResponse]
// @Router /api/v1/projects/{pid}/auto-run/step [post]
func (h *AutoRunHandler) Step(c *gin.Context) {
	projectID := dto.BindProjectID(c)
	action, err := h.runner.Step(c.Request.Context(), projectID)
	if err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, &dto.AutoRunStepResponse{Action: action, Status: h.runner.Status(projectID)})
}

func (h *AutoRunHandler) control(c *gin.Context, fn func(ctx context.Context, projectID string) error) {
	projectID := dto.BindProjectID(c)
	if err := fn(c.Request.Context(), projectID); err != nil {
		dto.FromError(c, err)
		return
	}
	dto.Success(c, h.runner.Status(projectID))
}

// drive 每个项目至多一个驱动 goroutine
func (h *AutoRunHandler) drive(reqCtx context.Context, projectID string) {
	h.mu.Lock()
	if h.driving[projectID] {
		h.mu.Unlock()
		return
	}
	h.driving[projectID] = true
	h.mu.Unlock()

	ctx := logger.WithContext(h.base, logger.ProjectIDKey, projectID)
	if rid, ok := reqCtx.Value(logger.RequestIDKey).(string); ok {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, rid)
	}

	go func() {
		for {
			st := h.runner.Drive(ctx, projectID, h.delay)

			// Drive 返回与 Resume 之间可能交错，持锁复查后再退出
			h.mu.Lock()
			if ctx.Err() == nil && h.runner.Status(projectID).Running() {
				h.mu.Unlock()
				continue
			}
			delete(h.driving, projectID)
			h.mu.Unlock()

			logger.Info(ctx, "auto run driver exited",
				"active", st.Active,
				"paused", st.Paused,
				"message", st.Message,
			)
			return
		}
	}()
}
