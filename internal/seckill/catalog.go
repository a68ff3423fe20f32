package seckill

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/omeyang/xseckill/internal/domain"
	"github.com/omeyang/xseckill/pkg/storage/xcache"
)

// VoucherCatalog 秒杀券读取，缓存在关系库之前。
type VoucherCatalog struct {
	cache      *xcache.Client
	repo       domain.Repository
	ttl        time.Duration
	logicalTTL time.Duration
}

// NewVoucherCatalog ttl 用于互斥重建的普通缓存，logicalTTL 用于热点券的逻辑过期。
func NewVoucherCatalog(cache *xcache.Client, repo domain.Repository, ttl, logicalTTL time.Duration) (*VoucherCatalog, error) {
	if cache == nil || repo == nil {
		return nil, ErrNilDependency
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logicalTTL <= 0 {
		logicalTTL = 10 * time.Second
	}
	return &VoucherCatalog{cache: cache, repo: repo, ttl: ttl, logicalTTL: logicalTTL}, nil
}

func (c *VoucherCatalog) load(ctx context.Context, id int64) (*domain.SeckillVoucher, error) {
	return c.repo.FindVoucher(ctx, id)
}

// Get 热点读取：未预热返回 (nil, nil)，过期时返回旧值并后台重建。
func (c *VoucherCatalog) Get(ctx context.Context, id int64) (*domain.SeckillVoucher, error) {
	return xcache.QueryWithLogicalExpiration(ctx, c.cache, KeyVoucherHot, LockVoucherHot, id, c.load, c.logicalTTL)
}

// GetOrLoad 冷读取：未命中时加锁回源，不存在的券写入空值标记。
func (c *VoucherCatalog) GetOrLoad(ctx context.Context, id int64) (*domain.SeckillVoucher, error) {
	return xcache.QueryWithMutex(ctx, c.cache, KeyVoucherCache, LockVoucher, id, c.load, c.ttl)
}

// Warm 从关系库重写热点缓存。
func (c *VoucherCatalog) Warm(ctx context.Context, id int64) error {
	v, err := c.repo.FindVoucher(ctx, id)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("%w: %d", domain.ErrVoucherNotFound, id)
	}
	return c.cache.SetWithLogicalExpiration(ctx, KeyVoucherHot+strconv.FormatInt(id, 10), v, c.logicalTTL)
}

// WarmAll 逐个预热，返回第一个错误，其余继续执行。
func (c *VoucherCatalog) WarmAll(ctx context.Context, ids []int64) error {
	var first error
	for _, id := range ids {
		if err := c.Warm(ctx, id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Invalidate 删除普通缓存，写库后调用。
func (c *VoucherCatalog) Invalidate(ctx context.Context, id int64) error {
	return c.cache.Delete(ctx, KeyVoucherCache+strconv.FormatInt(id, 10))
}
