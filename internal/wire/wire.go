//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"z-novel-forge/internal/application/story/autorun"
	"z-novel-forge/internal/config"
	"z-novel-forge/internal/infrastructure/llm"
	"z-novel-forge/internal/interfaces/http/handler"
	"z-novel-forge/internal/interfaces/http/router"
	"z-novel-forge/internal/workflow/chain"
)

// InitializeCore 初始化编排核心（命令行使用）
func InitializeCore(ctx context.Context, cfg *config.Config) (*Core, func(), error) {
	wire.Build(
		ProvideRedisClientOptional,
		CoreSet,
	)
	return nil, nil, nil
}

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		ProvideRedisClientOptional,
		CoreSet,
		RouterSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

// InitializeWorker 初始化任务执行器；worker 必须连接 Redis
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		ProvideRedisClient,
		CoreSet,
		ProvideProducer,
		ProvideConsumer,
		ProvideWorkerHandlers,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// CoreSet 存储、网关与编排器
var CoreSet = wire.NewSet(
	ProvideStorage,
	ProvideProjectStore,
	ProvideGlobalContextLog,
	ProvideUsageRecorder,
	ProvideQuotaChecker,
	llm.NewEinoFactory,
	ProvideTextGenerator,
	ProvideAssembler,
	chain.NewPhaseChain,
	ProvideOrchestrator,
	autorun.NewRunner,
	wire.Struct(new(Core), "*"),
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideProducerOptional,
	ProvideOperationPublisher,
	ProvideRateLimiter,
	ProvideHealthHandler,
	ProvideAutoRunHandler,
	handler.NewProjectHandler,
	handler.NewGenerationHandler,
	handler.NewGlobalContextHandler,
	handler.NewUsageHandler,
	wire.Struct(new(router.Handlers), "*"),
	router.New,
)
