package orchestrator

import (
	"context"

	apperrors "z-novel-forge/pkg/errors"
)

// OperationRequest 按名称执行的单个操作，供消息队列与命令行使用
type OperationRequest struct {
	Operation string `json:"operation"`
	ProjectID string `json:"projectId"`
	Chapter   int    `json:"chapter,omitempty"`
	// Context 反馈或重写要求
	Context string `json:"context,omitempty"`
	Title   string `json:"title,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Dispatch 按操作名执行
func (o *Orchestrator) Dispatch(ctx context.Context, req OperationRequest) error {
	var err error
	switch req.Operation {
	case OpInitialPlan:
		err = o.GenerateInitialPlan(ctx, req.ProjectID, req.Context)
	case OpRewriteInitialPlan:
		err = o.RewriteInitialPlan(ctx, req.ProjectID, req.Context)
	case OpChapterPlan:
		err = o.GenerateChapterPlan(ctx, req.ProjectID, req.Chapter, req.Context)
	case OpRewriteChapterPlan:
		err = o.RewriteChapterPlan(ctx, req.ProjectID, req.Chapter, req.Context)
	case OpChapterProse:
		err = o.GenerateChapterProse(ctx, req.ProjectID, req.Chapter, req.Context)
	case OpRewriteChapterProse:
		err = o.RewriteChapterProse(ctx, req.ProjectID, req.Chapter, req.Context)
	case OpChapterReview:
		_, err = o.GenerateChapterReview(ctx, req.ProjectID, req.Chapter, req.Context)
	case OpRewriteReview:
		_, err = o.RewriteChapterReview(ctx, req.ProjectID, req.Chapter, req.Context)
	case OpReviseChapter:
		err = o.ReviseChapter(ctx, req.ProjectID, req.Chapter, req.Context, ReviseOptions{})
	case OpUpdateChapterTitle:
		err = o.UpdateChapterTitle(ctx, req.ProjectID, req.Chapter, req.Title)
	case OpUpdateModel:
		err = o.UpdateSelectedModel(ctx, req.ProjectID, req.Model)
	case OpAdvanceCursor:
		_, err = o.AdvanceCursor(ctx, req.ProjectID)
	default:
		err = apperrors.Newf(apperrors.CodeInvalidParam, "unknown operation %q", req.Operation)
	}
	return err
}

// Retryable 失败是否可由队列重试
//
// 网关、解析、前置条件与配置错误只能人工重新触发；容量错误重试也不会成功。
func Retryable(err error) bool {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeStorageError, apperrors.CodeDatabaseError, apperrors.CodeCacheError:
		return true
	}
	return false
}
