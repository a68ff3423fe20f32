package xid

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGenerator 基于 Redis INCR 的全局递增 ID 生成器。
//
// 多实例共享同一个 Redis 时生成的 ID 全局唯一。并发安全。
type RedisGenerator struct {
	client     redis.UniversalClient
	epoch      int64
	keyPrefix  string
	counterTTL time.Duration
	now        func() time.Time
}

// NewRedisGenerator 创建 RedisGenerator。
func NewRedisGenerator(client redis.UniversalClient, opts ...RedisOption) (*RedisGenerator, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	o := defaultRedisOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return &RedisGenerator{
		client:     client,
		epoch:      o.epoch.Unix(),
		keyPrefix:  o.keyPrefix,
		counterTTL: o.counterTTL,
		now:        o.now,
	}, nil
}

// NextID 为业务标签 tag 生成下一个 ID。
func (g *RedisGenerator) NextID(ctx context.Context, tag string) (int64, error) {
	if tag == "" {
		return 0, ErrEmptyTag
	}

	now := g.now()
	ts := now.Unix() - g.epoch
	if ts < 0 {
		return 0, fmt.Errorf("%w: %s", ErrBeforeEpoch, now.Format(time.RFC3339))
	}

	key := g.CounterKey(tag, now)
	// 错误以 INCR 的结果为准，EXPIRE 失败不影响本次 ID
	var incr *redis.IntCmd
	_, _ = g.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		if g.counterTTL > 0 {
			// 每次都带 NX 补设，某次失败后由后续调用补上
			p.ExpireNX(ctx, key, g.counterTTL)
		}
		return nil
	})
	count, err := incr.Result()
	if err != nil {
		return 0, fmt.Errorf("xid: incr %s: %w", key, err)
	}
	if count > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %s=%d", ErrCounterOverflow, key, count)
	}

	return ts<<32 | count, nil
}

// CounterKey 返回 tag 在 t 所在日期的计数器 key。
func (g *RedisGenerator) CounterKey(tag string, t time.Time) string {
	return g.keyPrefix + tag + ":" + t.Format(dayLayout)
}

// Timestamp 还原 ID 中的秒级时间戳。
func (g *RedisGenerator) Timestamp(id int64) time.Time {
	return time.Unix(g.epoch+id>>32, 0)
}
