// Package autorun 自动运行：逐步推进整部小说，出错或达到修订上限时暂停
package autorun

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"z-novel-forge/internal/application/story/orchestrator"
	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/logger"
	"z-novel-forge/pkg/metrics"
)

// MaxAutoRevisionsPerChapter 每章自动修订次数上限
const MaxAutoRevisionsPerChapter = 1

// Action 单步执行的动作
type Action string

const (
	ActionNone          Action = "none"
	ActionInitialPlan   Action = "initial_plan"
	ActionChapterPlan   Action = "chapter_plan"
	ActionChapterProse  Action = "chapter_prose"
	ActionChapterReview Action = "chapter_review"
	ActionRevise        Action = "revise"
	ActionAdvance       Action = "advance"
	ActionComplete      Action = "complete"
	ActionPause         Action = "pause"
)

const (
	msgPauseRequested = "Pause requested. Auto Mode will halt after the current operation completes."
	msgPaused         = "Auto Mode is paused."
)

// Status 自动运行状态快照
type Status struct {
	ProjectID string      `json:"projectId"`
	Active    bool        `json:"active"`
	Paused    bool        `json:"paused"`
	Message   string      `json:"message,omitempty"`
	LastError string      `json:"lastError,omitempty"`
	Attempts  map[int]int `json:"autoRevisionsAttempted,omitempty"`
	Busy      bool        `json:"busy"`
}

// Running 是否仍需继续驱动
func (s Status) Running() bool {
	return s.Active && !s.Paused
}

type runState struct {
	active   bool
	paused   bool
	stepping bool
	message  string
	lastErr  string
	attempts map[int]int
}

// Runner 自动运行控制器，状态只保存在进程内
type Runner struct {
	orch *orchestrator.Orchestrator

	mu   sync.Mutex
	runs map[string]*runState
}

var _ orchestrator.Observer = (*Runner)(nil)

// NewRunner 创建控制器并注册为编排器观察者
func NewRunner(orch *orchestrator.Orchestrator) *Runner {
	r := &Runner{orch: orch, runs: make(map[string]*runState)}
	orch.AddObserver(r)
	return r
}

func (r *Runner) state(projectID string) *runState {
	st, ok := r.runs[projectID]
	if !ok {
		st = &runState{attempts: make(map[int]int)}
		r.runs[projectID] = st
	}
	return st
}

// Status 返回项目的自动运行状态
func (r *Runner) Status(projectID string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(projectID)
	attempts := make(map[int]int, len(st.attempts))
	for k, v := range st.attempts {
		attempts[k] = v
	}
	out := Status{
		ProjectID: projectID,
		Active:    st.active,
		Paused:    st.paused,
		Message:   st.message,
		LastError: st.lastErr,
		Attempts:  attempts,
	}
	rs := r.orch.RunState(projectID)
	out.Busy = rs.Busy || st.stepping
	if rs.LastError != "" {
		out.LastError = rs.LastError
	}
	return out
}

// Start 开启自动运行
func (r *Runner) Start(ctx context.Context, projectID string) error {
	p, err := r.orch.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if !p.Idea.HasValidChapterCount() {
		r.mu.Lock()
		st := r.state(projectID)
		st.message = "Cannot start Auto Mode: Target chapter count is not properly set."
		r.mu.Unlock()
		return apperrors.New(apperrors.CodeConfiguration, "Cannot start Auto Mode: Target chapter count is not properly set")
	}

	r.orch.ClearError(projectID)
	r.mu.Lock()
	st := r.state(projectID)
	if !st.active {
		metrics.ActiveAutoRuns.Inc()
	}
	st.active = true
	st.paused = false
	st.lastErr = ""
	st.attempts = make(map[int]int)
	st.message = "Auto Mode activated. Starting process..."
	r.mu.Unlock()

	logger.Info(ctx, "auto run started", "project_id", projectID)
	r.appendLog(ctx, projectID, "Auto Mode enabled.")
	return nil
}

// Stop 关闭自动运行；正在执行的操作不会被中断
func (r *Runner) Stop(ctx context.Context, projectID string) error {
	r.mu.Lock()
	st := r.state(projectID)
	if !st.active {
		r.mu.Unlock()
		return nil
	}
	r.deactivate(st, "Auto Mode deactivated by user.")
	r.mu.Unlock()

	logger.Info(ctx, "auto run stopped", "project_id", projectID)
	r.appendLog(ctx, projectID, "Auto Mode disabled.")
	return nil
}

// Pause 请求暂停，当前操作完成后生效
func (r *Runner) Pause(ctx context.Context, projectID string) error {
	r.mu.Lock()
	st := r.state(projectID)
	if !st.active {
		r.mu.Unlock()
		return apperrors.New(apperrors.CodePrecondition, "Auto Mode is not active")
	}
	st.paused = true
	st.message = msgPauseRequested
	r.mu.Unlock()

	metrics.AutoRunPausesTotal.WithLabelValues("manual").Inc()
	r.appendLog(ctx, projectID, "Auto Mode pause requested.")
	return nil
}

// Resume 恢复自动运行，清除当前错误
func (r *Runner) Resume(ctx context.Context, projectID string) error {
	r.mu.Lock()
	st := r.state(projectID)
	if !st.active {
		st.message = "Cannot resume Auto Mode: No active project or Auto Mode not active."
		r.mu.Unlock()
		return apperrors.New(apperrors.CodePrecondition, "Cannot resume Auto Mode: Auto Mode not active")
	}
	r.mu.Unlock()

	p, err := r.orch.GetProject(ctx, projectID)
	if err != nil {
		return err
	}

	if !p.Idea.HasValidChapterCount() {
		r.mu.Lock()
		st.paused = true
		st.message = "Cannot resume Auto Mode: Target chapter count is invalid. Pausing."
		r.mu.Unlock()
		return apperrors.New(apperrors.CodeConfiguration, "Cannot resume Auto Mode: Target chapter count is invalid")
	}

	r.orch.ClearError(projectID)
	r.mu.Lock()
	st.paused = false
	st.lastErr = ""
	st.message = "Auto Mode resumed."
	r.mu.Unlock()
	r.appendLog(ctx, projectID, "Auto Mode resumed.")
	return nil
}

// OperationFailed 运行中的项目操作失败时强制暂停
func (r *Runner) OperationFailed(ctx context.Context, projectID, operation string, err error) {
	chapter := 0
	var opErr *orchestrator.OperationError
	if errors.As(err, &opErr) {
		chapter = opErr.Chapter
	}

	r.mu.Lock()
	st := r.state(projectID)
	if !st.active || st.paused {
		r.mu.Unlock()
		return
	}
	msg := apperrors.UserMessage(err)
	st.paused = true
	st.lastErr = msg
	st.message = failureMessage(operation, chapter, msg)
	r.mu.Unlock()

	metrics.AutoRunPausesTotal.WithLabelValues("error").Inc()
	logger.Warn(ctx, "auto run paused after operation failure",
		"project_id", projectID,
		"operation", operation,
		"error", msg,
	)
}

// PlanRegenerated 手动重新规划后重置该章的自动修订计数
//
// 单步执行期间项目被占用，此时的通知只可能来自自动运行本身，忽略。
func (r *Runner) PlanRegenerated(projectID string, chapter int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(projectID)
	if st.stepping {
		return
	}
	st.attempts[chapter] = 0
}

func failureMessage(operation string, chapter int, msg string) string {
	switch operation {
	case orchestrator.OpChapterPlan, orchestrator.OpRewriteChapterPlan:
		return fmt.Sprintf("Error planning Ch %d: %s. Paused.", chapter, msg)
	case orchestrator.OpChapterProse, orchestrator.OpRewriteChapterProse:
		return fmt.Sprintf("Error writing Ch %d: %s. Paused.", chapter, msg)
	case orchestrator.OpChapterReview, orchestrator.OpRewriteReview:
		return fmt.Sprintf("Error reviewing Ch %d: %s. Paused.", chapter, msg)
	case orchestrator.OpReviseChapter:
		return fmt.Sprintf("Auto Mode Error during revision of Ch %d: %s. Paused.", chapter, msg)
	default:
		return fmt.Sprintf("Error: %s. Paused.", msg)
	}
}

// deactivate 调用方持有锁
func (r *Runner) deactivate(st *runState, message string) {
	if st.active {
		metrics.ActiveAutoRuns.Dec()
	}
	st.active = false
	st.paused = false
	st.message = message
}

func (r *Runner) appendLog(ctx context.Context, projectID, message string) {
	if err := r.orch.AppendLog(ctx, projectID, message); err != nil {
		logger.Warn(ctx, "failed to append auto run log", "project_id", projectID, "error", err.Error())
	}
}

// idleInterval 上一步未执行任何动作时的等待间隔
const idleInterval = 200 * time.Millisecond

// Drive 反复执行 Step，直到自动运行停止、暂停或 ctx 结束
func (r *Runner) Drive(ctx context.Context, projectID string, delay time.Duration) Status {
	for {
		if !r.Status(projectID).Running() || ctx.Err() != nil {
			return r.Status(projectID)
		}
		action, err := r.Step(ctx, projectID)
		if err != nil {
			logger.Debug(ctx, "auto run step returned error", "project_id", projectID, "error", err.Error())
		}

		wait := delay
		if action == ActionNone && wait < idleInterval {
			wait = idleInterval
		}
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return r.Status(projectID)
		case <-time.After(wait):
		}
	}
}
