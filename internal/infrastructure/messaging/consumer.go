package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"z-novel-forge/pkg/logger"
	"z-novel-forge/pkg/metrics"
)

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *Message) error

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
}

// Consumer 生成任务消费者
//
// 失败的消息留在本消费者的 pending 列表中，按退避时间重新认领；
// 投递次数达到 RetryLimit 后写入死信流。其他消费者挂起过久的消息
// 通过 XAUTOCLAIM 接管。
type Consumer struct {
	client  *redis.Client
	cfg     ConsumerConfig
	staleAt time.Duration

	mu       sync.RWMutex
	handlers map[string]MessageHandler
	running  bool
	stopCh   chan struct{}
}

// NewConsumer 创建消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}

	// 单次生成可能持续数分钟，接管阈值不低于 5 分钟
	staleAt := 2 * cfg.Backoff.Max
	if staleAt < 5*time.Minute {
		staleAt = 5 * time.Minute
	}

	return &Consumer{
		client:   client,
		cfg:      cfg,
		staleAt:  staleAt,
		handlers: make(map[string]MessageHandler),
		stopCh:   make(chan struct{}),
	}
}

// RegisterHandler 按消息类型注册处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	c.handlers[msgType] = handler
	c.mu.Unlock()
}

// Start 创建消费者组并启动消费循环
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("consumer already running")
	}

	err := c.client.XGroupCreateMkStream(ctx, c.stream(), c.group(), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.running = true
	go c.loop(ctx)
	return nil
}

// Stop 停止消费循环，正在处理的消息会完成
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stopCh)
		c.running = false
	}
}

func (c *Consumer) stream() string { return string(c.cfg.Stream) }
func (c *Consumer) group() string  { return string(c.cfg.Group) }

func (c *Consumer) loop(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info("consumer started",
		"stream", c.cfg.Stream,
		"group", c.cfg.Group,
		"consumer", c.cfg.ConsumerName,
	)

	lastAdopt := time.Time{}
	for {
		select {
		case <-ctx.Done():
			log.Info("consumer stopped", "reason", ctx.Err().Error())
			return
		case <-c.stopCh:
			log.Info("consumer stopped")
			return
		default:
		}

		c.retryOwnPending(ctx)
		if time.Since(lastAdopt) >= c.cfg.ClaimInterval {
			c.adoptStale(ctx)
			lastAdopt = time.Now()
		}

		if err := c.readNew(ctx); err != nil && ctx.Err() == nil {
			log.Error("failed to read from stream", "error", err)
			time.Sleep(time.Second)
		}
	}
}

func (c *Consumer) readNew(ctx context.Context) error {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group(),
		Consumer: c.cfg.ConsumerName,
		Streams:  []string{c.stream(), ">"},
		Count:    10,
		Block:    c.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, s := range streams {
		for _, xmsg := range s.Messages {
			c.dispatch(ctx, xmsg)
		}
	}
	return nil
}

// retryOwnPending 重新处理本消费者名下退避已到期的消息
func (c *Consumer) retryOwnPending(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   c.stream(),
		Group:    c.group(),
		Start:    "-",
		End:      "+",
		Count:    20,
		Consumer: c.cfg.ConsumerName,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.FromContext(ctx).Error("failed to query pending messages", "error", err)
		}
		return
	}

	for _, p := range pending {
		deliveries := int(p.RetryCount)
		if deliveries >= c.cfg.RetryLimit {
			c.claim(ctx, p.ID, 0, c.exhausted)
			continue
		}
		wait := c.cfg.Backoff.CalculateBackoff(deliveries)
		if p.Idle < wait {
			continue
		}
		c.claim(ctx, p.ID, wait, c.dispatch)
	}
}

// adoptStale 接管其他消费者长时间未确认的消息（例如进程崩溃）
func (c *Consumer) adoptStale(ctx context.Context) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream(),
		Group:    c.group(),
		Consumer: c.cfg.ConsumerName,
		MinIdle:  c.staleAt,
		Start:    "0-0",
		Count:    20,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.FromContext(ctx).Error("failed to adopt stale messages", "error", err)
		}
		return
	}

	for _, xmsg := range msgs {
		if c.deliveries(ctx, xmsg.ID) > c.cfg.RetryLimit {
			c.exhausted(ctx, xmsg)
			continue
		}
		c.dispatch(ctx, xmsg)
	}
}

func (c *Consumer) claim(ctx context.Context, id string, minIdle time.Duration, fn func(context.Context, redis.XMessage)) {
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.stream(),
		Group:    c.group(),
		Consumer: c.cfg.ConsumerName,
		MinIdle:  minIdle,
		Messages: []string{id},
	}).Result()
	if err != nil {
		logger.FromContext(ctx).Error("failed to claim pending message", "error", err, "message_id", id)
		return
	}
	for _, xmsg := range claimed {
		fn(ctx, xmsg)
	}
}

func (c *Consumer) deliveries(ctx context.Context, id string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream(),
		Group:  c.group(),
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return int(pending[0].RetryCount)
}

func decode(xmsg redis.XMessage) (*Message, error) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil, errors.New("message has no data field")
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// withMessageContext 把消息携带的标识写入日志上下文
func withMessageContext(ctx context.Context, msg *Message) context.Context {
	ctx = logger.WithContext(ctx, logger.JobIDKey, msg.ID)
	if msg.ProjectID != "" {
		ctx = logger.WithContext(ctx, logger.ProjectIDKey, msg.ProjectID)
	}
	if v := msg.GetMetadata("request_id"); v != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, v)
	}
	if v := msg.GetMetadata("trace_id"); v != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, v)
	}
	return ctx
}

func (c *Consumer) dispatch(ctx context.Context, xmsg redis.XMessage) {
	ctx, span := tracer.Start(ctx, "consumer.dispatch",
		trace.WithAttributes(
			attribute.String("stream", c.stream()),
			attribute.String("stream.message_id", xmsg.ID),
		))
	defer span.End()

	msg, err := decode(xmsg)
	if err != nil {
		logger.FromContext(ctx).Error("dropping undecodable message", "error", err, "message_id", xmsg.ID)
		c.ack(ctx, xmsg.ID)
		return
	}

	ctx = withMessageContext(ctx, msg)
	log := logger.FromContext(ctx)
	span.SetAttributes(
		attribute.String("message.type", msg.Type),
		attribute.String("project_id", msg.ProjectID),
	)

	c.mu.RLock()
	handler, ok := c.handlers[msg.Type]
	c.mu.RUnlock()
	if !ok {
		log.Warn("no handler for message type", "type", msg.Type)
		metrics.RedisStreamProcessed.WithLabelValues(c.stream(), "unhandled").Inc()
		c.ack(ctx, xmsg.ID)
		return
	}

	err = handler(ctx, msg)
	switch {
	case err == nil:
		metrics.RedisStreamProcessed.WithLabelValues(c.stream(), metrics.StatusSuccess).Inc()
		c.ack(ctx, xmsg.ID)
	case IsPermanent(err):
		span.RecordError(err)
		log.Warn("message rejected", "error", err.Error(), "type", msg.Type)
		metrics.RedisStreamProcessed.WithLabelValues(c.stream(), "rejected").Inc()
		c.ack(ctx, xmsg.ID)
	default:
		span.RecordError(err)
		metrics.RedisStreamProcessed.WithLabelValues(c.stream(), metrics.StatusError).Inc()
		if n := c.deliveries(ctx, xmsg.ID); n >= c.cfg.RetryLimit {
			log.Warn("message exhausted retries", "error", err.Error(), "deliveries", n)
			c.deadLetter(ctx, msg, err)
			c.ack(ctx, xmsg.ID)
			return
		}
		log.Error("message failed, left pending for retry", "error", err, "type", msg.Type)
	}
}

// exhausted 投递次数已满的消息直接进入死信流
func (c *Consumer) exhausted(ctx context.Context, xmsg redis.XMessage) {
	if msg, err := decode(xmsg); err == nil {
		c.deadLetter(withMessageContext(ctx, msg), msg, errors.New("message exceeded max retries"))
	}
	c.ack(ctx, xmsg.ID)
}

func (c *Consumer) deadLetter(ctx context.Context, msg *Message, cause error) {
	entry, _ := json.Marshal(map[string]any{
		"original_stream": c.stream(),
		"data":            msg,
		"error":           cause.Error(),
		"failed_at":       time.Now().Unix(),
	})
	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream.DLQStream(),
		Values: map[string]any{"data": string(entry)},
	}).Err()
	if err != nil {
		logger.FromContext(ctx).Error("failed to write DLQ", "error", err, "message_id", msg.ID)
		return
	}
	metrics.RedisStreamDLQ.WithLabelValues(c.stream()).Inc()
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.stream(), c.group(), id).Err(); err != nil {
		logger.FromContext(ctx).Error("failed to ack message", "error", err, "message_id", id)
	}
}

// MonitorDLQ 每分钟检查一次死信流长度，超过阈值时告警
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	dlq := c.cfg.Stream.DLQStream()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			n, err := c.client.XLen(ctx, dlq).Result()
			if err != nil {
				continue
			}
			if n > alertThreshold {
				logger.Warn(ctx, "dead letter stream is growing", "stream", dlq, "count", n)
			}
		}
	}
}
