package seckill

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xseckill/internal/domain"
	"github.com/omeyang/xseckill/pkg/resilience/xlimit"
)

type stubLimiter struct {
	allowed bool
	err     error
	calls   atomic.Int32
}

func (l *stubLimiter) Allow(context.Context, string) (*xlimit.Result, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return &xlimit.Result{Allowed: l.allowed}, nil
}

func TestNewAdmission_WhenNilDependency(t *testing.T) {
	_, err := NewAdmission(nil, nil)
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestAdmission_Admit_WhenStockAvailable(t *testing.T) {
	// Given: 库存 2 的秒杀券
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, 10, 2)

	// When: 用户 1 抢购
	res, err := f.admission.Admit(ctx, 10, 1)

	// Then: 准入成功，库存扣减，意图写入 stream
	require.NoError(t, err)
	assert.Equal(t, Admitted, res.Status)
	assert.Positive(t, res.OrderID)
	assert.NoError(t, res.Err())

	stock, err := f.admission.Stock(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stock)

	msgs, err := f.rdb.XRange(ctx, f.queue.Stream(), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	intent, err := domain.ParseOrderIntent(msgs[0].Values)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderIntent{OrderID: res.OrderID, UserID: 1, VoucherID: 10}, intent)
}

func TestAdmission_Admit_WhenSameUserTwice(t *testing.T) {
	// Given: 用户 1 已抢到
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, 10, 5)
	_, err := f.admission.Admit(ctx, 10, 1)
	require.NoError(t, err)

	// When: 再次抢购
	res, err := f.admission.Admit(ctx, 10, 1)

	// Then: 重复下单被拒，库存和 stream 不变
	require.NoError(t, err)
	assert.Equal(t, DuplicatePurchase, res.Status)
	assert.ErrorIs(t, res.Err(), ErrDuplicatePurchase)
	assert.Zero(t, res.OrderID)

	stock, err := f.admission.Stock(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stock)
	n, err := f.rdb.XLen(ctx, f.queue.Stream()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAdmission_Admit_WhenSoldOut(t *testing.T) {
	// Given: 库存 1，用户 1 已抢光
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, 10, 1)
	_, err := f.admission.Admit(ctx, 10, 1)
	require.NoError(t, err)

	// When: 用户 2 抢购
	res, err := f.admission.Admit(ctx, 10, 2)

	// Then: 售罄，并写入本地售罄标记
	require.NoError(t, err)
	assert.Equal(t, SoldOut, res.Status)
	f.flags.Wait()
	assert.True(t, f.admission.soldOut(10))

	// When: 清除标记后 Redis 库存仍为 0
	f.admission.ClearSoldOut(10)
	f.flags.Wait()
	assert.False(t, f.admission.soldOut(10))
	res, err = f.admission.Admit(ctx, 10, 3)

	// Then: 脚本仍返回售罄
	require.NoError(t, err)
	assert.Equal(t, SoldOut, res.Status)
}

func TestAdmission_Admit_WhenSoldOutFlagSet_SkipsRedis(t *testing.T) {
	// Given: 本地售罄标记已存在
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, 10, 3)
	f.admission.markSoldOut(10)
	f.flags.Wait()

	// When
	res, err := f.admission.Admit(ctx, 10, 1)

	// Then: 直接拒绝，Redis 库存未动
	require.NoError(t, err)
	assert.Equal(t, SoldOut, res.Status)
	stock, err := f.admission.Stock(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stock)
}

func TestAdmission_Admit_WhenVoucherNotPublished(t *testing.T) {
	f := newFixture(t)

	res, err := f.admission.Admit(context.Background(), 99, 1)

	require.NoError(t, err)
	assert.Equal(t, SoldOut, res.Status)
}

func TestAdmission_Admit_WhenOutsideWindow(t *testing.T) {
	// Given: 窗口为 now ± 1h
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, 10, 5)
	published := f.now

	// When: 时钟拨到开始前
	f.now = published.Add(-2 * time.Hour)
	res, err := f.admission.Admit(ctx, 10, 1)

	// Then
	require.NoError(t, err)
	assert.Equal(t, NotStarted, res.Status)
	assert.ErrorIs(t, res.Err(), ErrNotStarted)

	// When: 时钟拨到结束后
	f.now = published.Add(2 * time.Hour)
	res, err = f.admission.Admit(ctx, 10, 1)

	// Then
	require.NoError(t, err)
	assert.Equal(t, Ended, res.Status)
	assert.ErrorIs(t, res.Err(), ErrEnded)

	stock, err := f.admission.Stock(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stock)
}

func TestAdmission_Admit_WhenNoWindow(t *testing.T) {
	// Given: 没有起止时间的券
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.admission.PublishVoucher(ctx, &domain.SeckillVoucher{VoucherID: 11, Stock: 1}))

	res, err := f.admission.Admit(ctx, 11, 1)

	require.NoError(t, err)
	assert.Equal(t, Admitted, res.Status)
}

func TestAdmission_Admit_WhenRateLimited(t *testing.T) {
	limiter := &stubLimiter{allowed: false}
	f := newFixture(t, WithRateLimiter(limiter))
	f.publish(t, 10, 5)

	res, err := f.admission.Admit(context.Background(), 10, 1)

	require.NoError(t, err)
	assert.Equal(t, RateLimited, res.Status)
	assert.ErrorIs(t, res.Err(), ErrRateLimited)
	assert.Equal(t, int32(1), limiter.calls.Load())
}

func TestAdmission_Admit_WhenLimiterFails(t *testing.T) {
	boom := errors.New("boom")
	f := newFixture(t, WithRateLimiter(&stubLimiter{err: boom}))
	f.publish(t, 10, 5)

	_, err := f.admission.Admit(context.Background(), 10, 1)

	assert.ErrorIs(t, err, boom)
}

func TestAdmission_Admit_WhenRealLimiterExhausted(t *testing.T) {
	// Given: 每分钟 1 次的 Redis 限流
	f := newFixture(t)
	limiter, err := xlimit.New(f.rdb, xlimit.Rule{Name: "admit", Rate: 1, Burst: 1, Period: time.Minute})
	require.NoError(t, err)
	WithRateLimiter(limiter)(f.admission.opts)
	f.publish(t, 10, 5)
	ctx := context.Background()

	// When: 同一用户连续两次
	first, err := f.admission.Admit(ctx, 10, 1)
	require.NoError(t, err)
	second, err := f.admission.Admit(ctx, 10, 1)
	require.NoError(t, err)

	// Then: 第二次在脚本之前被限流
	assert.Equal(t, Admitted, first.Status)
	assert.Equal(t, RateLimited, second.Status)
}

func TestAdmission_Admit_WhenInvalidID(t *testing.T) {
	f := newFixture(t)

	_, err := f.admission.Admit(context.Background(), 0, 1)
	assert.ErrorIs(t, err, ErrInvalidID)
	_, err = f.admission.Admit(context.Background(), 1, -1)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestAdmission_Admit_WhenConcurrent_NeverOversells(t *testing.T) {
	// Given: 库存 20，200 个用户并发
	const stock, users = 20, 200
	f := newFixture(t)
	f.publish(t, 10, stock)

	var admitted, soldOut atomic.Int32
	var wg sync.WaitGroup
	for u := int64(1); u <= users; u++ {
		wg.Go(func() {
			res, err := f.admission.Admit(context.Background(), 10, u)
			if !assert.NoError(t, err) {
				return
			}
			switch res.Status {
			case Admitted:
				admitted.Add(1)
			case SoldOut:
				soldOut.Add(1)
			}
		})
	}
	wg.Wait()

	// Then: 恰好 stock 个准入，其余售罄，库存归零
	assert.Equal(t, int32(stock), admitted.Load())
	assert.Equal(t, int32(users-stock), soldOut.Load())
	n, err := f.admission.Stock(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
	length, err := f.rdb.XLen(context.Background(), f.queue.Stream()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(stock), length)
}

func TestAdmission_Admit_WhenSameUserConcurrent_AdmitsOnce(t *testing.T) {
	f := newFixture(t)
	f.publish(t, 10, 10)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			res, err := f.admission.Admit(context.Background(), 10, 7)
			if assert.NoError(t, err) && res.Status == Admitted {
				admitted.Add(1)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
}

func TestAdmission_PublishVoucher_WhenRepublished(t *testing.T) {
	// Given: 用户 1 已购买
	f := newFixture(t)
	ctx := context.Background()
	f.publish(t, 10, 1)
	_, err := f.admission.Admit(ctx, 10, 1)
	require.NoError(t, err)

	// When: 补货重新发布
	f.publish(t, 10, 3)

	// Then: 库存覆盖，已购用户仍不能再买
	stock, err := f.admission.Stock(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stock)
	res, err := f.admission.Admit(ctx, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, DuplicatePurchase, res.Status)
	assert.Equal(t, int64(3), f.dbStock(t, 10))
}

func TestAdmission_PublishVoucher_WhenInvalid(t *testing.T) {
	f := newFixture(t)

	err := f.admission.PublishVoucher(context.Background(), &domain.SeckillVoucher{VoucherID: 1, Stock: -1})

	assert.ErrorIs(t, err, domain.ErrInvalidVoucher)
}

func TestAdmission_PublishVoucher_WhenNoCatalog(t *testing.T) {
	f := newFixture(t)
	a, err := NewAdmission(f.rdb, &fixedIDs{})
	require.NoError(t, err)

	err = a.PublishVoucher(context.Background(), &domain.SeckillVoucher{VoucherID: 1, Stock: 1})

	assert.ErrorIs(t, err, ErrNoCatalog)
}

func TestAdmission_Admit_WhenIDGeneratorFails(t *testing.T) {
	f := newFixture(t)
	f.publish(t, 10, 1)
	a, err := NewAdmission(f.rdb, &fixedIDs{err: errors.New("redis down")})
	require.NoError(t, err)

	_, err = a.Admit(context.Background(), 10, 1)

	assert.ErrorContains(t, err, "allocate order id")
}

type fixedIDs struct {
	next int64
	err  error
}

func (g *fixedIDs) NextID(context.Context, string) (int64, error) {
	if g.err != nil {
		return 0, g.err
	}
	g.next++
	return g.next, nil
}

func TestResult_Err(t *testing.T) {
	tests := []struct {
		status Status
		want   error
	}{
		{Admitted, nil},
		{SoldOut, ErrSoldOut},
		{DuplicatePurchase, ErrDuplicatePurchase},
		{NotStarted, ErrNotStarted},
		{Ended, ErrEnded},
		{RateLimited, ErrRateLimited},
		{Status(42), ErrUnexpectedCode},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			err := Result{Status: tt.status}.Err()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
