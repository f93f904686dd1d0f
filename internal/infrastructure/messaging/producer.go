package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-novel-forge/internal/application/story/orchestrator"
	"z-novel-forge/pkg/logger"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok && reqID != "" {
		msg.SetMetadata("request_id", reqID)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishAutoRunStep 发布自动运行单步任务
func (p *Producer) PublishAutoRunStep(ctx context.Context, projectID string, start bool) (string, error) {
	msg, err := NewMessage(uuid.NewString(), TypeAutoRunStep, projectID, AutoRunStepPayload{Start: start})
	if err != nil {
		return "", err
	}
	return p.Publish(ctx, StreamAutoRun, msg)
}

// PublishOperation 发布单个生成操作
func (p *Producer) PublishOperation(ctx context.Context, req orchestrator.OperationRequest) (string, error) {
	msg, err := NewMessage(uuid.NewString(), TypeGenerationOperation, req.ProjectID, req)
	if err != nil {
		return "", err
	}
	msg.SetMetadata("operation", req.Operation)
	return p.Publish(ctx, StreamAutoRun, msg)
}
