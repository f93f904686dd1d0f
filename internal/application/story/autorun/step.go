package autorun

import (
	"context"
	"fmt"

	"z-novel-forge/internal/application/story/orchestrator"
	"z-novel-forge/internal/domain/entity"
	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/logger"
	"z-novel-forge/pkg/metrics"
)

// Step 判断并执行下一步，每次最多一个操作
//
// 操作失败时自动运行进入暂停并记录状态消息，返回的错误仅供调用方展示。
func (r *Runner) Step(ctx context.Context, projectID string) (action Action, err error) {
	if !r.begin(projectID) {
		return ActionNone, nil
	}
	ctx = logger.WithContext(ctx, logger.ProjectIDKey, projectID)
	defer func() {
		r.end(projectID)
		metrics.AutoRunStepsTotal.WithLabelValues(string(action)).Inc()
		if err != nil && !apperrors.HasCode(err, apperrors.CodeOperationInFlight) {
			r.pauseOnError(ctx, projectID, err)
		}
		if apperrors.HasCode(err, apperrors.CodeOperationInFlight) {
			action, err = ActionNone, nil
		}
	}()

	p, err := r.orch.GetProject(ctx, projectID)
	if err != nil {
		return ActionPause, err
	}

	target := p.TargetChapterCount()
	if !p.Idea.HasValidChapterCount() {
		r.pauseInvalidTarget(ctx, projectID)
		return ActionPause, apperrors.New(apperrors.CodeConfiguration, "Target chapter count is invalid. Auto Mode cannot proceed")
	}

	if !p.InitialPlan.HasOutline() {
		r.setMessage(projectID, "Auto: Generating initial novel plan...")
		return ActionInitialPlan, r.orch.GenerateInitialPlan(ctx, projectID, "")
	}

	cur := p.CurrentChapterProcessing
	if cur > target {
		r.complete(ctx, projectID, "Auto: Novel reached target chapter count. Process complete.", "Auto Mode: Novel Complete.")
		return ActionComplete, nil
	}

	c := p.Chapter(cur)
	switch {
	case c.NeedsPlan():
		feedback := c.RevisionFeedback()
		suffix := ""
		if feedback != "" {
			suffix = " (with revision feedback)"
		}
		r.setMessage(projectID, fmt.Sprintf("Auto: Planning Chapter %d%s...", cur, suffix))
		return ActionChapterPlan, r.orch.GenerateChapterPlan(ctx, projectID, cur, feedback)
	case !c.HasProse():
		r.setMessage(projectID, fmt.Sprintf("Auto: Writing prose for Chapter %d...", cur))
		return ActionChapterProse, r.orch.GenerateChapterProse(ctx, projectID, cur, "")
	case !c.HasReview():
		suffix := ""
		if c.IsRevised {
			suffix = " (Revised)"
		}
		r.setMessage(projectID, fmt.Sprintf("Auto: Reviewing Chapter %d%s...", cur, suffix))
		_, err = r.orch.GenerateChapterReview(ctx, projectID, cur, "")
		return ActionChapterReview, err
	}

	// 审阅之后的分支以存储中的最新数据为准
	p, err = r.orch.GetProject(ctx, projectID)
	if err != nil {
		return ActionPause, apperrors.Wrap(err, apperrors.CodeStorageError,
			"Failed to reload project state after review for Auto Mode decision")
	}
	c = p.Chapter(cur)

	if c.HasReview() && c.AutoRevisionRecommendedByAI {
		attempts, ok := r.claimRevision(projectID, cur)
		if !ok {
			r.pauseForReview(ctx, projectID, cur)
			return ActionPause, nil
		}
		r.setMessage(projectID, fmt.Sprintf(
			"Auto: AI recommends revision for Chapter %d. Attempting AI-driven revision (%d/%d)...",
			cur, attempts, MaxAutoRevisionsPerChapter))
		return ActionRevise, r.orch.ReviseChapter(ctx, projectID, cur,
			orchestrator.AIRevisionFeedback(c.AutoRevisionReasonsFromAI),
			orchestrator.ReviseOptions{Automatic: true})
	}

	if cur < target {
		r.setMessage(projectID, fmt.Sprintf(
			"Auto: Chapter %d processing complete. Proceeding to plan Chapter %d...", cur, cur+1))
		next, err := r.orch.AdvanceCursor(ctx, projectID)
		if err != nil {
			return ActionAdvance, err
		}
		r.mu.Lock()
		r.state(projectID).attempts[next] = 0
		r.mu.Unlock()
		return ActionAdvance, nil
	}

	r.complete(ctx, projectID, "Auto: All chapters processed. Novel complete!", "Auto Mode: All chapters completed.")
	return ActionComplete, nil
}

// begin 检查是否可以开始一步，并标记为执行中
func (r *Runner) begin(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(projectID)
	if !st.active || st.stepping {
		return false
	}
	if st.paused {
		if st.message != msgPauseRequested && st.message != msgPaused && st.lastErr == "" {
			st.message = msgPaused
		}
		return false
	}
	if r.orch.Busy(projectID) {
		return false
	}
	st.stepping = true
	return true
}

func (r *Runner) end(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(projectID).stepping = false
}

func (r *Runner) setMessage(projectID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(projectID).message = message
}

// claimRevision 未达上限时计数加一，返回本次是第几次尝试
func (r *Runner) claimRevision(projectID string, chapter int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(projectID)
	if st.attempts[chapter] >= MaxAutoRevisionsPerChapter {
		return st.attempts[chapter], false
	}
	st.attempts[chapter]++
	return st.attempts[chapter], true
}

func (r *Runner) complete(ctx context.Context, projectID, message, logEntry string) {
	r.mu.Lock()
	r.deactivate(r.state(projectID), message)
	r.mu.Unlock()
	logger.Info(ctx, "auto run completed", "project_id", projectID)
	r.appendLog(ctx, projectID, logEntry)
}

// pause 运行中才会暂停，已暂停时保留原有消息
func (r *Runner) pause(projectID, message, lastErr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(projectID)
	if !st.active || st.paused {
		return false
	}
	st.paused = true
	st.message = message
	if lastErr != "" {
		st.lastErr = lastErr
	}
	return true
}

func (r *Runner) pauseForReview(ctx context.Context, projectID string, chapter int) {
	r.pause(projectID, fmt.Sprintf(
		"Auto: Max automated revisions for Chapter %d reached. AI still recommends changes. Pausing Auto Mode for manual review.",
		chapter), "")
	metrics.AutoRunPausesTotal.WithLabelValues("revision_cap").Inc()
	logger.Info(ctx, "auto run paused at revision cap", "chapter", chapter)
	r.appendLog(ctx, projectID, fmt.Sprintf("Auto Mode paused: Max revisions reached for Chapter %d.", chapter))
}

func (r *Runner) pauseInvalidTarget(ctx context.Context, projectID string) {
	r.pause(projectID, "Error: Invalid target chapter count. Auto Mode paused.",
		"Target chapter count is invalid. Auto Mode cannot proceed.")
	metrics.AutoRunPausesTotal.WithLabelValues("configuration").Inc()
	r.appendLog(ctx, projectID, entity.ErrorLogPrefix+"Auto Mode paused due to invalid target chapter count.")
}

// pauseOnError 兜底：操作内部已记录的失败只补充暂停，其余错误额外写入系统日志
func (r *Runner) pauseOnError(ctx context.Context, projectID string, err error) {
	msg := apperrors.UserMessage(err)
	if orchestrator.Logged(err) {
		// 通常观察者已经暂停，这里只补齐状态
		if r.pause(projectID, fmt.Sprintf("Error: %s. Paused.", msg), msg) {
			metrics.AutoRunPausesTotal.WithLabelValues("error").Inc()
		}
		return
	}
	if !r.pause(projectID, fmt.Sprintf("Auto Mode Error: %s. Auto Mode paused.", msg), msg) {
		return
	}
	metrics.AutoRunPausesTotal.WithLabelValues("error").Inc()
	logger.Error(ctx, "auto run step failed", err)
	r.appendLog(ctx, projectID, fmt.Sprintf("%sAuto Mode paused: %s", entity.ErrorLogPrefix, msg))
}
