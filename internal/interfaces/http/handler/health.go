// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger 依赖健康检查
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler 健康检查处理器
//
// postgres 为 nil 表示使用内存存储；redis 为 nil 表示未启用缓存与队列，二者都不影响就绪态。
type HealthHandler struct {
	version string
	pg      Pinger
	redis   Pinger
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(version string, pg, redisClient Pinger) *HealthHandler {
	return &HealthHandler{
		version: version,
		pg:      pg,
		redis:   redisClient,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type readinessCheck struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                     `json:"status"`
	Checks map[string]*readinessCheck `json:"checks,omitempty"`
}

// Health 健康检查接口
// @Summary 健康检查
// @Description 检查服务健康状态
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
	})
}

// Ready 就绪检查接口
// @Summary 就绪检查
// @Description 检查服务是否可以接收流量
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]*readinessCheck{}
	ready := true

	// Postgres（配置后必需）
	if h.pg == nil {
		checks["postgres"] = &readinessCheck{Status: "disabled"}
	} else {
		check := ping(ctx, h.pg)
		checks["postgres"] = check
		ready = check.Status == "ok"
	}

	// Redis（可选，失败时读缓存回退到存储，不影响就绪态）
	if h.redis == nil {
		checks["redis"] = &readinessCheck{Status: "disabled"}
	} else {
		check := ping(ctx, h.redis)
		if check.Status != "ok" {
			check.Status = "degraded"
		}
		checks["redis"] = check
	}

	resp := readinessResponse{
		Status: "ok",
		Checks: checks,
	}
	if !ready {
		resp.Status = "not_ready"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Live 存活检查接口
// @Summary 存活检查
// @Description 检查服务是否存活
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
	})
}

func ping(ctx context.Context, p Pinger) *readinessCheck {
	start := time.Now()
	err := p.HealthCheck(ctx)
	check := &readinessCheck{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = "error"
		check.Error = err.Error()
	}
	return check
}
