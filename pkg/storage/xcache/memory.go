package xcache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MinMemoryMaxCost 内存缓存容量下限（1MB）。
const MinMemoryMaxCost = 1 << 20

// Memory 基于 ristretto 的进程内缓存，值为字节切片，cost 按字节计。
//
// ristretto 的写入是异步的，Set 之后立即 Get 可能读不到，测试中可调用 Wait。
type Memory struct {
	cache  *ristretto.Cache[string, []byte]
	owned  bool
	closed atomic.Bool
}

// MemoryStats 命中统计。
type MemoryStats struct {
	Hits        uint64
	Misses      uint64
	HitRatio    float64
	KeysAdded   uint64
	KeysEvicted uint64
}

// MemoryOptions 内存缓存配置。
type MemoryOptions struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

// MemoryOption 配置内存缓存。
type MemoryOption func(*MemoryOptions)

func defaultMemoryOptions() *MemoryOptions {
	return &MemoryOptions{
		NumCounters: 1e5,
		MaxCost:     16 << 20,
		BufferItems: 64,
	}
}

// WithMemoryNumCounters 设置频率计数器数量，建议为预期条目数的 10 倍。
func WithMemoryNumCounters(n int64) MemoryOption {
	return func(o *MemoryOptions) {
		if n > 0 {
			o.NumCounters = n
		}
	}
}

// WithMemoryMaxCost 设置最大容量（字节），低于 MinMemoryMaxCost 时取下限。
func WithMemoryMaxCost(cost int64) MemoryOption {
	return func(o *MemoryOptions) {
		if cost > 0 {
			o.MaxCost = max(cost, MinMemoryMaxCost)
		}
	}
}

// NewMemory 创建内存缓存。
func NewMemory(opts ...MemoryOption) (*Memory, error) {
	o := defaultMemoryOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: o.NumCounters,
		MaxCost:     o.MaxCost,
		BufferItems: o.BufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("xcache: create memory cache: %w", err)
	}
	return &Memory{cache: cache, owned: true}, nil
}

// NewMemoryFromClient 包装已有的 ristretto 实例，Close 时不关闭它。
func NewMemoryFromClient(client *ristretto.Cache[string, []byte]) (*Memory, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if client.Metrics == nil {
		return nil, ErrMetricsDisabled
	}
	return &Memory{cache: client}, nil
}

// Get 读取值。
func (m *Memory) Get(key string) ([]byte, bool) {
	if m.closed.Load() {
		return nil, false
	}
	return m.cache.Get(key)
}

// Set 写入值，ttl<=0 表示不过期。返回 false 表示被准入策略丢弃。
func (m *Memory) Set(key string, value []byte, ttl time.Duration) bool {
	if m.closed.Load() {
		return false
	}
	cost := max(int64(len(value)), 1)
	if ttl <= 0 {
		return m.cache.Set(key, value, cost)
	}
	return m.cache.SetWithTTL(key, value, cost, ttl)
}

// Del 删除值。
func (m *Memory) Del(key string) {
	if m.closed.Load() {
		return
	}
	m.cache.Del(key)
}

// Wait 等待缓冲中的写入生效。
func (m *Memory) Wait() {
	if m.closed.Load() {
		return
	}
	m.cache.Wait()
}

// Stats 返回命中统计。
func (m *Memory) Stats() MemoryStats {
	if m.closed.Load() || m.cache.Metrics == nil {
		return MemoryStats{}
	}
	metrics := m.cache.Metrics
	hits, misses := metrics.Hits(), metrics.Misses()
	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return MemoryStats{
		Hits:        hits,
		Misses:      misses,
		HitRatio:    ratio,
		KeysAdded:   metrics.KeysAdded(),
		KeysEvicted: metrics.KeysEvicted(),
	}
}

// Client 返回底层 ristretto 实例。
func (m *Memory) Client() *ristretto.Cache[string, []byte] {
	return m.cache
}

// Close 关闭缓存。重复调用返回 ErrClosed。
func (m *Memory) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if m.owned {
		m.cache.Close()
	}
	return nil
}
