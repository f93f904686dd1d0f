package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "z-novel-forge/pkg/errors"
)

// RunState 项目运行状态，不持久化
type RunState struct {
	Busy      bool      `json:"busy"`
	Operation string    `json:"operation,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	// LastError 最近一次失败的描述，成功操作或显式清除后为空
	LastError     string              `json:"lastError,omitempty"`
	LastErrorCode apperrors.ErrorCode `json:"lastErrorCode,omitempty"`
}

// Elapsed 当前操作已运行时长
func (s RunState) Elapsed(now time.Time) time.Duration {
	if !s.Busy || s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// Observer 编排器事件观察者；自动运行借此在失败时暂停
type Observer interface {
	// OperationFailed 生成操作失败，错误已写入项目系统日志
	OperationFailed(ctx context.Context, projectID, operation string, err error)
	// PlanRegenerated 自动修订之外重新生成了章节规划
	PlanRegenerated(projectID string, chapter int)
}

// OperationError 已记录到系统日志的操作失败
type OperationError struct {
	Operation string
	ProjectID string
	Chapter   int
	Err       error
}

func (e *OperationError) Error() string {
	return e.Err.Error()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Logged 错误是否已由编排器写入系统日志
func Logged(err error) bool {
	var opErr *OperationError
	return errors.As(err, &opErr)
}

// RunState 返回项目运行状态快照
func (o *Orchestrator) RunState(projectID string) RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.runs[projectID]; ok {
		return *st
	}
	return RunState{}
}

// Busy 项目是否有进行中的操作
func (o *Orchestrator) Busy(projectID string) bool {
	return o.RunState(projectID).Busy
}

// ClearError 清除最近一次错误
func (o *Orchestrator) ClearError(projectID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.runs[projectID]; ok {
		st.LastError = ""
		st.LastErrorCode = ""
	}
}

func (o *Orchestrator) acquire(projectID, operation string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.runs[projectID]
	if !ok {
		st = &RunState{}
		o.runs[projectID] = st
	}
	if st.Busy {
		return apperrors.New(apperrors.CodeOperationInFlight, apperrors.ErrOperationInFlight.Message).
			WithDetail(fmt.Sprintf("running: %s", st.Operation))
	}
	st.Busy = true
	st.Operation = operation
	st.StartedAt = o.now()
	return nil
}

func (o *Orchestrator) release(projectID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := o.unlockLocked(projectID)
	if st == nil {
		return
	}
	if err != nil {
		st.LastError = apperrors.UserMessage(err)
		st.LastErrorCode = apperrors.CodeOf(err)
	} else {
		st.LastError = ""
		st.LastErrorCode = ""
	}
}

// unlock 释放闸门但保留错误状态
func (o *Orchestrator) unlock(projectID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unlockLocked(projectID)
}

func (o *Orchestrator) unlockLocked(projectID string) *RunState {
	st, ok := o.runs[projectID]
	if !ok {
		return nil
	}
	st.Busy = false
	st.Operation = ""
	st.StartedAt = time.Time{}
	return st
}
