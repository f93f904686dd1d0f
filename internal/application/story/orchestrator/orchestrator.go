// Package orchestrator 管理单个项目的生成状态机
//
// 每个操作在项目副本上完成“组装提示词、调用模型、解析、修改”，成功后一次性提交；
// 失败时已持久化的项目只追加一条 ERROR: 系统日志。
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/domain/repository"
	"z-novel-forge/internal/workflow/chain"
	workflowprompt "z-novel-forge/internal/workflow/prompt"
	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/logger"
	"z-novel-forge/pkg/metrics"
	"z-novel-forge/pkg/tracer"
)

// Config 编排器配置
type Config struct {
	// DefaultModel 新建或导入项目未指定模型时使用
	DefaultModel string
	// DefaultChapterWordCount 新建项目未指定章节字数时使用
	DefaultChapterWordCount int
}

// Orchestrator 生成编排器
type Orchestrator struct {
	store   repository.ProjectStore
	globals repository.GlobalContextLog
	tx      repository.Transactor
	phase   *chain.PhaseChain
	cfg     Config

	now   func() time.Time
	newID func() string

	mu        sync.Mutex
	runs      map[string]*RunState
	observers []Observer
}

// New 创建编排器；tx 为 nil 时不使用事务
func New(store repository.ProjectStore, globals repository.GlobalContextLog, tx repository.Transactor, phase *chain.PhaseChain, cfg Config) *Orchestrator {
	if cfg.DefaultChapterWordCount <= 0 {
		cfg.DefaultChapterWordCount = defaultChapterWordCount
	}
	return &Orchestrator{
		store:   store,
		globals: globals,
		tx:      tx,
		phase:   phase,
		cfg:     cfg,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		runs:    make(map[string]*RunState),
	}
}

const defaultChapterWordCount = 8000

// AddObserver 注册观察者
func (o *Orchestrator) AddObserver(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

// Store 返回项目存储
func (o *Orchestrator) Store() repository.ProjectStore {
	return o.store
}

// GetProject 读取项目
func (o *Orchestrator) GetProject(ctx context.Context, projectID string) (*entity.Project, error) {
	return o.store.Get(ctx, projectID)
}

// ListProjects 列出项目
func (o *Orchestrator) ListProjects(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[repository.ProjectSummary], error) {
	return o.store.List(ctx, pagination)
}

// DeleteProject 删除项目，进行中的操作会返回 ErrOperationInFlight
func (o *Orchestrator) DeleteProject(ctx context.Context, projectID string) error {
	if err := o.acquire(projectID, "delete_project"); err != nil {
		return err
	}
	defer o.release(projectID, nil)

	if err := o.store.Delete(ctx, projectID); err != nil {
		return err
	}
	o.mu.Lock()
	delete(o.runs, projectID)
	o.mu.Unlock()
	return nil
}

// session 一次操作的工作区
type session struct {
	op      string
	chapter int
	started time.Time

	// base 最近一次持久化的版本，失败时错误日志追加到这里
	base *entity.Project
	work *entity.Project

	replaceGlobals bool
	globals        []entity.GlobalContextEntry
}

// failure 生成失败时写入系统日志的前缀
type failure func(chapter int) string

func failedAs(format string) failure {
	return func(chapter int) string {
		if chapter > 0 {
			return fmt.Sprintf(format, chapter)
		}
		return format
	}
}

// execute 获取项目闸门，在副本上执行 fn，成功后提交
func (o *Orchestrator) execute(ctx context.Context, projectID, op string, chapter int, failed failure, fn func(ctx context.Context, s *session) error) (err error) {
	if err = o.acquire(projectID, op); err != nil {
		return err
	}

	ctx = logger.WithContext(ctx, logger.ProjectIDKey, projectID)
	ctx = logger.WithContext(ctx, logger.OperationKey, op)
	ctx, span := tracer.StartOperation(ctx, op, projectID, chapter)
	start := o.now()
	defer func() {
		metrics.GenerationOperationsTotal.WithLabelValues(op, metrics.StatusOf(err)).Inc()
		metrics.GenerationOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		tracer.End(span, err)
		o.release(projectID, err)
	}()

	base, err := o.store.Get(ctx, projectID)
	if err != nil {
		return err
	}

	s := &session{op: op, chapter: chapter, started: start, base: base, work: base.Clone()}
	if err = fn(ctx, s); err == nil {
		err = o.commit(ctx, s)
	}
	if err != nil {
		o.recordFailure(ctx, s, failed(chapter), err)
		err = &OperationError{Operation: op, ProjectID: projectID, Chapter: chapter, Err: err}
		o.notifyFailure(ctx, projectID, op, err)
		return err
	}

	logger.Info(ctx, "generation operation finished",
		"chapter", chapter,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (o *Orchestrator) commit(ctx context.Context, s *session) error {
	save := func(ctx context.Context) error {
		if err := o.store.Save(ctx, s.work); err != nil {
			return err
		}
		if s.replaceGlobals && o.globals != nil {
			return o.globals.ReplaceForProject(ctx, s.work.ID, s.globals)
		}
		return nil
	}
	if o.tx == nil {
		return save(ctx)
	}
	return o.tx.WithTransaction(ctx, save)
}

// checkpoint 提前持久化当前副本（重写类操作先落盘清空结果）
func (o *Orchestrator) checkpoint(ctx context.Context, s *session) error {
	if err := o.store.Save(ctx, s.work); err != nil {
		return err
	}
	s.base = s.work.Clone()
	return nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, s *session, prefix string, err error) {
	logger.Error(ctx, "generation operation failed", err, "chapter", s.chapter)

	s.base.AppendErrorLog(fmt.Sprintf("%s: %s", prefix, apperrors.UserMessage(err)), o.now())
	if saveErr := o.store.Save(ctx, s.base); saveErr != nil {
		logger.Error(ctx, "failed to persist error log entry", saveErr)
	}
}

func (o *Orchestrator) notifyFailure(ctx context.Context, projectID, op string, err error) {
	o.mu.Lock()
	observers := append([]Observer(nil), o.observers...)
	o.mu.Unlock()
	for _, obs := range observers {
		obs.OperationFailed(ctx, projectID, op, err)
	}
}

func (o *Orchestrator) notifyPlanRegenerated(projectID string, chapter int) {
	o.mu.Lock()
	observers := append([]Observer(nil), o.observers...)
	o.mu.Unlock()
	for _, obs := range observers {
		obs.PlanRegenerated(projectID, chapter)
	}
}

// generate 调用阶段链
func (o *Orchestrator) generate(ctx context.Context, s *session, p *workflowprompt.Prompt) (string, error) {
	return o.phase.Run(ctx, &chain.PhaseRequest{
		Operation: s.op,
		ProjectID: s.work.ID,
		ModelID:   s.work.SelectedModel,
		Prompt:    p,
	})
}

func (o *Orchestrator) assembler() *workflowprompt.Assembler {
	return o.phase.Assembler()
}

// finish 记录耗时，返回耗时记录
func (o *Orchestrator) finish(s *session) *entity.TimeLog {
	t := entity.NewTimeLog(s.started, o.now())
	s.work.LastTurnDurationMs = t.DurationMs
	return t
}

func (o *Orchestrator) log(s *session, format string, args ...any) {
	s.work.AppendSystemLog(fmt.Sprintf(format, args...), o.now())
}

func precondition(format string, args ...any) error {
	return apperrors.Newf(apperrors.CodePrecondition, format, args...)
}
