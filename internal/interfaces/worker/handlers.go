// Package worker 队列消息到编排器调用的适配
package worker

import (
	"context"
	"time"

	"z-novel-forge/internal/application/story/autorun"
	"z-novel-forge/internal/application/story/orchestrator"
	"z-novel-forge/internal/infrastructure/messaging"
	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/logger"
)

// StepPublisher 重新投递自动运行任务
type StepPublisher interface {
	PublishAutoRunStep(ctx context.Context, projectID string, start bool) (string, error)
}

// Handlers 消息处理器集合
type Handlers struct {
	orch      *orchestrator.Orchestrator
	runner    *autorun.Runner
	publisher StepPublisher
	stepDelay time.Duration
}

func NewHandlers(orch *orchestrator.Orchestrator, runner *autorun.Runner, publisher StepPublisher, stepDelay time.Duration) *Handlers {
	return &Handlers{orch: orch, runner: runner, publisher: publisher, stepDelay: stepDelay}
}

// Register 注册到消费者
func (h *Handlers) Register(c *messaging.Consumer) {
	c.RegisterHandler(messaging.TypeAutoRunStep, h.HandleAutoRunStep)
	c.RegisterHandler(messaging.TypeGenerationOperation, h.HandleOperation)
}

// HandleAutoRunStep 执行一步，自动运行仍在进行时重新入队
func (h *Handlers) HandleAutoRunStep(ctx context.Context, msg *messaging.Message) error {
	var payload messaging.AutoRunStepPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		return messaging.Permanent(err)
	}
	projectID := msg.ProjectID

	if payload.Start && !h.runner.Status(projectID).Active {
		if err := h.runner.Start(ctx, projectID); err != nil {
			return messaging.Permanent(err)
		}
	}
	if !h.runner.Status(projectID).Active {
		logger.Info(ctx, "auto run inactive, dropping step")
		return nil
	}

	action, err := h.runner.Step(ctx, projectID)
	if err != nil {
		// 失败时运行已暂停，重试只会重复同一错误
		return messaging.Permanent(err)
	}
	logger.Debug(ctx, "auto run step finished", "action", string(action))

	if !h.runner.Status(projectID).Running() {
		return nil
	}
	if h.stepDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.stepDelay):
		}
	}
	_, err = h.publisher.PublishAutoRunStep(ctx, projectID, false)
	return err
}

// HandleOperation 执行单个操作；只有存储类错误交给队列重试
func (h *Handlers) HandleOperation(ctx context.Context, msg *messaging.Message) error {
	var req orchestrator.OperationRequest
	if err := msg.UnmarshalPayload(&req); err != nil {
		return messaging.Permanent(err)
	}
	if req.ProjectID == "" {
		req.ProjectID = msg.ProjectID
	}
	if req.ProjectID == "" {
		return messaging.Permanent(apperrors.New(apperrors.CodeInvalidParam, "project id is required"))
	}

	err := h.orch.Dispatch(ctx, req)
	if err == nil || orchestrator.Retryable(err) {
		return err
	}
	return messaging.Permanent(err)
}
