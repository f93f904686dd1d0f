// Package port 定义工作流层对外部模型服务的最小依赖
package port

import (
	"context"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModelFactory 按提供商名称返回 ChatModel
type ChatModelFactory interface {
	Get(ctx context.Context, name string) (model.BaseChatModel, error)
}

// TextGenerator 统一的文本生成入口
//
// modelID 形如 "provider/model"，也可以只写模型名（使用默认提供商）。
// wantsJSON 为 true 时请求模型只输出 JSON。
// 未配置凭证时返回配置错误，调用失败返回网关错误。
type TextGenerator interface {
	Generate(ctx context.Context, modelID string, messages []*schema.Message, wantsJSON bool) (string, error)
}
