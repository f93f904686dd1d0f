package llm

import (
	"context"
	"strings"
	"time"

	openaiopts "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"z-novel-forge/internal/config"
	llmctx "z-novel-forge/internal/domain/service"
	wfnode "z-novel-forge/internal/workflow/node"
	workflowport "z-novel-forge/internal/workflow/port"
	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/logger"
)

// Gateway 统一的文本生成网关
//
// 调用本身不设超时，只受调用方 context 控制。
type Gateway struct {
	factory workflowport.ChatModelFactory
	config  *config.LLMConfig
	limiter *rate.Limiter
}

var _ workflowport.TextGenerator = (*Gateway)(nil)

// NewGateway 创建网关；RequestsPerMinute 大于 0 时对所有调用限速
func NewGateway(cfg *config.Config, factory workflowport.ChatModelFactory) *Gateway {
	g := &Gateway{factory: factory, config: &cfg.LLM}
	if rpm := cfg.LLM.RequestsPerMinute; rpm > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
	}
	return g
}

// Resolve 将模型标识拆分为提供商与模型名
//
// "deepseek/deepseek-chat" 解析为已配置的 deepseek 提供商；
// 前缀不是已知提供商时整体视为模型名，使用默认提供商。
func (g *Gateway) Resolve(modelID string) (provider, modelName string) {
	id := strings.TrimSpace(modelID)
	if i := strings.Index(id, "/"); i > 0 {
		if _, ok := g.config.Providers[id[:i]]; ok {
			return id[:i], strings.TrimSpace(id[i+1:])
		}
	}
	return g.config.DefaultProvider, id
}

// Generate 发送一次生成请求并返回模型输出文本
func (g *Gateway) Generate(ctx context.Context, modelID string, messages []*schema.Message, wantsJSON bool) (string, error) {
	provider, modelName := g.Resolve(modelID)
	providerCfg, ok := g.config.Providers[provider]
	if !ok {
		return "", apperrors.Newf(apperrors.CodeConfiguration, "LLM provider %q is not configured", provider)
	}
	if strings.TrimSpace(providerCfg.APIKey) == "" {
		return "", apperrors.Newf(apperrors.CodeConfiguration, "API key for LLM provider %q is not set", provider)
	}
	if g.factory == nil {
		return "", apperrors.New(apperrors.CodeConfiguration, "llm factory not configured")
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", apperrors.Wrap(err, apperrors.CodeGatewayFailed, "AI generation request was cancelled")
		}
	}

	ctx = llmctx.WithProvider(ctx, provider)
	chatModel, err := g.factory.Get(ctx, provider)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeConfiguration, "failed to initialise LLM client")
	}

	msg, err := chatModel.Generate(ctx, messages, buildModelOptions(modelName, wantsJSON)...)
	if err != nil && wantsJSON && wfnode.IsResponseFormatUnsupported(err) {
		logger.Warn(ctx, "llm json response_format not supported, fallback to prompt-only",
			"provider", provider,
			"model", modelName,
			"error", err.Error(),
		)
		msg, err = chatModel.Generate(ctx, messages, buildModelOptions(modelName, false)...)
	}
	if err != nil {
		logger.Error(ctx, "llm generate failed", err, "provider", provider, "model", modelName)
		return "", apperrors.Wrap(err, apperrors.CodeGatewayFailed, "AI generation request failed")
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", apperrors.New(apperrors.CodeGatewayFailed, "AI returned an empty response")
	}
	return msg.Content, nil
}

func buildModelOptions(modelName string, wantsJSON bool) []model.Option {
	opts := make([]model.Option, 0, 2)
	if modelName != "" {
		opts = append(opts, model.WithModel(modelName))
	}
	if wantsJSON {
		opts = append(opts, openaiopts.WithExtraFields(map[string]any{
			"response_format": map[string]any{"type": "json_object"},
		}))
	}
	return opts
}
