package entity

import "time"

// LLMUsageEvent 一次模型调用的用量记录
type LLMUsageEvent struct {
	ID               string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	ProjectID        string    `json:"projectId" gorm:"type:varchar(64);index"`
	Operation        string    `json:"operation" gorm:"type:varchar(64);not null"`
	Provider         string    `json:"provider" gorm:"type:varchar(64);not null"`
	Model            string    `json:"model" gorm:"type:varchar(255);not null"`
	TokensPrompt     int       `json:"tokensPrompt" gorm:"not null;default:0"`
	TokensCompletion int       `json:"tokensCompletion" gorm:"not null;default:0"`
	DurationMs       int       `json:"durationMs" gorm:"not null;default:0"`
	CreatedAt        time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

func (LLMUsageEvent) TableName() string {
	return "llm_usage_events"
}

// TokenUsage 用量汇总
type TokenUsage struct {
	ProjectID        string `json:"projectId"`
	Calls            int64  `json:"calls"`
	PromptTokens     int64  `json:"promptTokens"`
	CompletionTokens int64  `json:"completionTokens"`
}

// Total 总 token 数
func (u TokenUsage) Total() int64 {
	return u.PromptTokens + u.CompletionTokens
}
