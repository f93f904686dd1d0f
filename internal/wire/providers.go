// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"
	"os"

	"z-novel-forge/internal/application/quota"
	"z-novel-forge/internal/application/story/autorun"
	"z-novel-forge/internal/application/story/orchestrator"
	"z-novel-forge/internal/config"
	"z-novel-forge/internal/domain/repository"
	"z-novel-forge/internal/infrastructure/llm"
	"z-novel-forge/internal/infrastructure/messaging"
	"z-novel-forge/internal/infrastructure/persistence/memory"
	"z-novel-forge/internal/infrastructure/persistence/postgres"
	"z-novel-forge/internal/infrastructure/persistence/redis"
	"z-novel-forge/internal/interfaces/http/handler"
	"z-novel-forge/internal/interfaces/http/middleware"
	"z-novel-forge/internal/interfaces/http/router"
	"z-novel-forge/internal/interfaces/worker"
	"z-novel-forge/internal/workflow/chain"
	workflowport "z-novel-forge/internal/workflow/port"
	workflowprompt "z-novel-forge/internal/workflow/prompt"
	"z-novel-forge/pkg/logger"
)

// Storage 按 storage.driver 选择的持久化实现
//
// PgClient 仅在 postgres 驱动下非 nil。
type Storage struct {
	PgClient *postgres.Client
	Projects repository.ProjectStore
	Globals  repository.GlobalContextLog
	Tx       repository.Transactor
	Usage    repository.LLMUsageEventRepository
}

// Core 编排核心，API、worker 与命令行共用
type Core struct {
	Storage      *Storage
	Orchestrator *orchestrator.Orchestrator
	Runner       *autorun.Runner
	Recorder     *quota.Recorder
	Quota        *quota.Checker
}

// App API 网关
type App struct {
	*Core
	Router *router.Router
}

// Worker 任务执行器
type Worker struct {
	*Core
	Consumer *messaging.Consumer
	Handlers *worker.Handlers
}

// ProvideStorage 提供持久化实现；postgres 驱动下按配置执行迁移
func ProvideStorage(ctx context.Context, cfg *config.Config) (*Storage, func(), error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		return &Storage{
			Projects: memory.NewProjectStore(cfg.Storage.MaxProjectBytes),
			Globals:  memory.NewGlobalContextLog(),
			Tx:       memory.Transactor{},
			Usage:    memory.NewLLMUsageEventRepository(),
		}, func() {}, nil
	case config.StorageDriverPostgres, "":
	default:
		return nil, nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}

	if cfg.Storage.MigrateOnStart {
		if err := postgres.Migrate(ctx, cfg.Database.Postgres.URL()); err != nil {
			return nil, nil, err
		}
	}

	client, err := postgres.NewClient(&cfg.Database.Postgres, cfg.Observability.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return &Storage{
		PgClient: client,
		Projects: postgres.NewProjectStore(client, cfg.Storage.MaxProjectBytes),
		Globals:  postgres.NewGlobalContextRepository(client),
		Tx:       postgres.NewTxManager(client),
		Usage:    postgres.NewLLMUsageEventRepository(client),
	}, cleanup, nil
}

// ProvideRedisClientOptional Redis 不可达时返回 nil，缓存与分布式限流随之关闭
func ProvideRedisClientOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if cfg.Cache.Redis.Host == "" {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, cache and distributed rate limit disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClient 提供 Redis 客户端（worker 必需）
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideProjectStore 启用缓存且 Redis 可用时包一层读缓存
func ProvideProjectStore(cfg *config.Config, storage *Storage, client *redis.Client) repository.ProjectStore {
	if !cfg.Storage.CacheEnabled || client == nil {
		return storage.Projects
	}
	return redis.NewCachedProjectStore(storage.Projects, redis.NewCache(client), cfg.Storage.CacheTTL)
}

// ProvideGlobalContextLog 跨项目上下文日志
func ProvideGlobalContextLog(storage *Storage) repository.GlobalContextLog {
	return storage.Globals
}

// ProvideUsageRecorder 模型用量记录器（由 Eino 回调写入）
func ProvideUsageRecorder(storage *Storage) *quota.Recorder {
	return quota.NewRecorder(storage.Usage)
}

// ProvideQuotaChecker 每日 token 上限检查
func ProvideQuotaChecker(cfg *config.Config, storage *Storage) *quota.Checker {
	return quota.NewChecker(storage.Usage, cfg.LLM.DailyTokenBudget)
}

// ProvideTextGenerator 网关外包一层配额检查
func ProvideTextGenerator(cfg *config.Config, factory *llm.EinoFactory, checker *quota.Checker) workflowport.TextGenerator {
	return quota.NewGuardedGenerator(llm.NewGateway(cfg, factory), checker)
}

// ProvideAssembler 提示词组装器
func ProvideAssembler(cfg *config.Config) *workflowprompt.Assembler {
	return workflowprompt.NewAssembler(workflowprompt.NewRegistry(),
		cfg.Generation.SourceCharBudget,
		cfg.Generation.ReviewSourceCharBudget,
	)
}

// ProvideOrchestrator 生成编排器
func ProvideOrchestrator(cfg *config.Config, store repository.ProjectStore, storage *Storage, phase *chain.PhaseChain) *orchestrator.Orchestrator {
	return orchestrator.New(store, storage.Globals, storage.Tx, phase, orchestrator.Config{
		DefaultModel:            cfg.Generation.DefaultModel,
		DefaultChapterWordCount: cfg.Generation.DefaultChapterWordCount,
	})
}

// ProvideProducerOptional Redis 可用时提供消息生产者
func ProvideProducerOptional(cfg *config.Config, client *redis.Client) *messaging.Producer {
	if client == nil {
		return nil
	}
	return ProvideProducer(cfg, client)
}

// ProvideProducer 提供消息生产者
func ProvideProducer(cfg *config.Config, client *redis.Client) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(client.Redis(), int64(maxLen))
}

// ProvideOperationPublisher 无生产者时返回 nil 接口，异步请求被拒绝
func ProvideOperationPublisher(producer *messaging.Producer) handler.OperationPublisher {
	if producer == nil {
		return nil
	}
	return producer
}

// ProvideRateLimiter 无 Redis 时返回 nil，限流退化为进程内令牌桶
func ProvideRateLimiter(client *redis.Client) middleware.RateLimiter {
	if client == nil {
		return nil
	}
	return redis.NewRateLimiter(client)
}

// ProvideHealthHandler 健康检查处理器
func ProvideHealthHandler(cfg *config.Config, storage *Storage, client *redis.Client) *handler.HealthHandler {
	var pg, rd handler.Pinger
	if storage.PgClient != nil {
		pg = storage.PgClient
	}
	if client != nil {
		rd = client
	}
	return handler.NewHealthHandler(cfg.App.Version, pg, rd)
}

// ProvideAutoRunHandler 自动运行处理器，驱动 goroutine 随 ctx 结束
func ProvideAutoRunHandler(ctx context.Context, cfg *config.Config, runner *autorun.Runner) *handler.AutoRunHandler {
	return handler.NewAutoRunHandler(ctx, runner, cfg.Generation.AutoRunStepDelay)
}

// ProvideConsumer 自动运行与生成操作的消费者
func ProvideConsumer(cfg *config.Config, client *redis.Client) *messaging.Consumer {
	streamCfg := cfg.Messaging.RedisStream
	return messaging.NewConsumer(client.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamAutoRun,
		Group:         messaging.GroupName(streamCfg.ConsumerGroupPrefix, "generation-worker"),
		ConsumerName:  consumerName(),
		BlockTimeout:  streamCfg.BlockTimeout,
		ClaimInterval: streamCfg.ClaimInterval,
		RetryLimit:    streamCfg.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    streamCfg.RetryBackoff.Initial,
			Max:        streamCfg.RetryBackoff.Max,
			Multiplier: streamCfg.RetryBackoff.Multiplier,
		},
	})
}

// ProvideWorkerHandlers worker 消息处理器
func ProvideWorkerHandlers(cfg *config.Config, orch *orchestrator.Orchestrator, runner *autorun.Runner, producer *messaging.Producer) *worker.Handlers {
	return worker.NewHandlers(orch, runner, producer, cfg.Generation.AutoRunStepDelay)
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
