package seckill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xseckill/pkg/resilience/xretry"
)

// StreamQueue 订单 stream 与消费组操作。
type StreamQueue struct {
	rdb        redis.UniversalClient
	stream     string
	deadStream string
	group      string
	ackPolicy  xretry.Policy
	logger     *slog.Logger
}

// NewStreamQueue 创建队列，空字符串取默认值。
func NewStreamQueue(rdb redis.UniversalClient, stream, deadStream, group string, logger *slog.Logger) (*StreamQueue, error) {
	if rdb == nil {
		return nil, ErrNilDependency
	}
	if stream == "" {
		stream = DefaultStream
	}
	if deadStream == "" {
		deadStream = DefaultDeadStream
	}
	if group == "" {
		group = DefaultGroup
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamQueue{
		rdb:        rdb,
		stream:     stream,
		deadStream: deadStream,
		group:      group,
		ackPolicy:  xretry.Policy{Attempts: 3, Delay: 50 * time.Millisecond},
		logger:     logger,
	}, nil
}

func (q *StreamQueue) Stream() string     { return q.stream }
func (q *StreamQueue) DeadStream() string { return q.deadStream }
func (q *StreamQueue) Group() string      { return q.group }

// SetAckPolicy 设置 XACK 重试策略，默认 3 次。
func (q *StreamQueue) SetAckPolicy(p xretry.Policy) {
	q.ackPolicy = p
}

// EnsureGroup 创建消费组（MKSTREAM），已存在时忽略。
func (q *StreamQueue) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("seckill: create group %s on %s: %w", q.group, q.stream, err)
	}
	return nil
}

// ReadNew 读取未投递的新消息，超时无消息返回 (nil, nil)。
func (q *StreamQueue) ReadNew(ctx context.Context, consumer string, count int64, block time.Duration) ([]redis.XMessage, error) {
	return q.read(ctx, consumer, ">", count, block)
}

// ReadPending 读取本消费者 pending 列表中 ID 大于 after 的消息，不阻塞。
func (q *StreamQueue) ReadPending(ctx context.Context, consumer, after string, count int64) ([]redis.XMessage, error) {
	if after == "" {
		after = "0"
	}
	return q.read(ctx, consumer, after, count, -1)
}

func (q *StreamQueue) read(ctx context.Context, consumer, id string, count int64, block time.Duration) ([]redis.XMessage, error) {
	streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, id},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("seckill: xreadgroup %s: %w", id, err)
	}
	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

// Ack 确认消息，失败按 ackPolicy 重试。
func (q *StreamQueue) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	err := xretry.Do(ctx, func() error {
		return q.rdb.XAck(ctx, q.stream, q.group, ids...).Err()
	}, q.ackPolicy.Options(xretry.LogRetry(q.logger, "seckill.ack"))...)
	if err != nil {
		return fmt.Errorf("seckill: xack: %w", err)
	}
	return nil
}

// DeadLetter 把无法处理的消息写入死信 stream。
func (q *StreamQueue) DeadLetter(ctx context.Context, msg redis.XMessage, reason string) error {
	payload, err := json.Marshal(msg.Values)
	if err != nil {
		payload = []byte(fmt.Sprint(msg.Values))
	}
	err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.deadStream,
		Values: map[string]any{
			"original_stream": q.stream,
			"consumer_group":  q.group,
			"msg_id":          msg.ID,
			"payload":         string(payload),
			"error_reason":    reason,
			"created_at":      time.Now().UnixMilli(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("seckill: write dead letter %s: %w", msg.ID, err)
	}
	q.logger.WarnContext(ctx, "seckill: message sent to dead letter stream",
		slog.String("msg_id", msg.ID), slog.String("reason", reason))
	return nil
}

// Claim 用 XAUTOCLAIM 把空闲超过 minIdle 的 pending 消息转给 consumer，最多 limit 条。
func (q *StreamQueue) Claim(ctx context.Context, consumer string, minIdle time.Duration, limit int) ([]redis.XMessage, error) {
	var claimed []redis.XMessage
	start := "0-0"
	for len(claimed) < limit {
		msgs, next, err := q.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Start:    start,
			Count:    int64(limit - len(claimed)),
		}).Result()
		if err != nil {
			return claimed, fmt.Errorf("seckill: xautoclaim: %w", err)
		}
		claimed = append(claimed, msgs...)
		if next == "" || next == "0-0" {
			break
		}
		start = next
	}
	return claimed, nil
}

// Pending 消费组中尚未确认的消息数。
func (q *StreamQueue) Pending(ctx context.Context) (int64, error) {
	p, err := q.rdb.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		return 0, fmt.Errorf("seckill: xpending: %w", err)
	}
	return p.Count, nil
}
