package service

import "context"

// LLMUsageInput 一次模型调用的用量数据
type LLMUsageInput struct {
	ProjectID string
	Operation string
	Provider  string
	Model     string

	PromptTokens     int
	CompletionTokens int
	DurationMs       int
}

// LLMUsageRecorder 记录模型用量；实现应尽力而为，不阻塞生成流程
type LLMUsageRecorder interface {
	Record(ctx context.Context, in LLMUsageInput) error
}
