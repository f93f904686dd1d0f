package router

import (
	"github.com/gin-gonic/gin"

	"z-novel-forge/internal/interfaces/http/middleware"
	"z-novel-forge/pkg/utils"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h *Handlers) {
	operator := middleware.RequireScope(utils.ScopeOperator)

	v1.POST("/idea-spark", h.Project.SuggestIdea)

	// 项目管理
	projects := v1.Group("/projects")
	{
		projects.GET("", h.Project.ListProjects)
		projects.POST("", h.Project.CreateProject)
		projects.POST("/import", h.Project.ImportProject)
		projects.GET("/:pid", h.Project.GetProject)
		projects.DELETE("/:pid", h.Project.DeleteProject)
		projects.GET("/:pid/export", h.Project.ExportProject)
		projects.GET("/:pid/state", h.Project.GetProjectState)
		projects.PATCH("/:pid/model", h.Project.UpdateModel)
		projects.POST("/:pid/advance", h.Project.AdvanceCursor)
		if h.Usage != nil {
			projects.GET("/:pid/usage", h.Usage.GetDailyUsage)
		}

		// 初始规划
		projects.POST("/:pid/plan", h.Generation.GenerateInitialPlan)
		projects.POST("/:pid/plan/rewrite", h.Generation.RewriteInitialPlan)

		// 章节
		chapters := projects.Group("/:pid/chapters/:n")
		{
			chapters.POST("/plan", h.Generation.GenerateChapterPlan)
			chapters.POST("/plan/rewrite", h.Generation.RewriteChapterPlan)
			chapters.POST("/prose", h.Generation.GenerateChapterProse)
			chapters.POST("/prose/rewrite", h.Generation.RewriteChapterProse)
			chapters.POST("/review", h.Generation.GenerateChapterReview)
			chapters.POST("/review/rewrite", h.Generation.RewriteChapterReview)
			chapters.POST("/revise", h.Generation.ReviseChapter)
			chapters.PATCH("/title", h.Generation.UpdateChapterTitle)
		}

		// 自动运行
		autoRun := projects.Group("/:pid/auto-run")
		{
			autoRun.GET("", h.AutoRun.Status)
			autoRun.POST("/start", h.AutoRun.Start)
			autoRun.POST("/stop", h.AutoRun.Stop)
			autoRun.POST("/pause", h.AutoRun.Pause)
			autoRun.POST("/resume", h.AutoRun.Resume)
			autoRun.POST("/step", h.AutoRun.Step)
		}
	}

	// 跨项目上下文；修改需要 operator 权限
	globalContext := v1.Group("/global-context")
	{
		globalContext.GET("", h.GlobalContext.List)
		globalContext.POST("", operator, h.GlobalContext.Add)
		globalContext.DELETE("/:id", operator, h.GlobalContext.Delete)
	}
}
