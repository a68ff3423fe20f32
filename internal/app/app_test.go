package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xseckill/internal/config"
	"github.com/omeyang/xseckill/internal/domain"
	"github.com/omeyang/xseckill/internal/infra/database/mysql"
	"github.com/omeyang/xseckill/internal/seckill"
	"github.com/omeyang/xseckill/pkg/config/xconf"
	"github.com/omeyang/xseckill/pkg/lifecycle/xrun"
	"github.com/omeyang/xseckill/pkg/observability/xlog"
	"github.com/omeyang/xseckill/pkg/observability/xmetrics"
	"github.com/omeyang/xseckill/pkg/storage/xcache"
)

func testConfig(t *testing.T, redisAddr string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Redis.Addr = redisAddr
	cfg.Redis.StartupAttempts = 1
	cfg.Redis.DialTimeout = 200 * time.Millisecond
	cfg.MySQL = mysql.Config{
		Driver:       mysql.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "app.db"),
		MaxOpenConns: 1,
		AutoMigrate:  true,
		LogLevel:     "silent",
	}
	cfg.Worker.Block = 50 * time.Millisecond
	cfg.Worker.IdleSleep = 5 * time.Millisecond
	return cfg
}

func testLogger(t *testing.T) *xlog.Logger {
	t.Helper()
	l, _, err := xlog.New().SetOutput(io.Discard).Build()
	require.NoError(t, err)
	return l
}

func build(t *testing.T, cfg config.Config, opts ...Option) *App {
	t.Helper()
	base := []Option{
		WithLogger(testLogger(t)),
		WithObserver(xmetrics.NoopObserver{}),
		WithRunOptions(xrun.WithoutSignalHandler()),
	}
	a, err := Build(context.Background(), cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	return a
}

// runApp 后台运行，返回停止函数，停止后断言 Run 正常返回。
func runApp(t *testing.T, a *App) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("app did not stop")
		}
	}
}

func TestBuild_WhenRedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()
	cfg := testConfig(t, addr)

	_, err = Build(context.Background(), cfg, WithLogger(testLogger(t)), WithObserver(xmetrics.NoopObserver{}))

	assert.ErrorContains(t, err, "redis unreachable")
}

func TestBuild_WhenConfigInvalid(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:6379")
	cfg.Worker.Consumers = 0

	_, err := Build(context.Background(), cfg)

	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestApp_Run_WhenOrderAdmitted_Persists(t *testing.T) {
	// Given: 装配好的服务与一张库存 2 的券
	mr := miniredis.RunT(t)
	a := build(t, testConfig(t, mr.Addr()))
	ctx := context.Background()
	require.NoError(t, a.Admission.PublishVoucher(ctx, &domain.SeckillVoucher{VoucherID: 10, Stock: 2}))

	// When: 三个用户抢购，服务运行
	for u := int64(1); u <= 3; u++ {
		_, err := a.Admission.Admit(ctx, 10, u)
		require.NoError(t, err)
	}
	stop := runApp(t, a)
	defer stop()

	// Then: 落库两单
	require.Eventually(t, func() bool {
		n, err := a.Repo.CountOrdersByVoucher(ctx, 10)
		return err == nil && n == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestBuild_RegistersCronJobs(t *testing.T) {
	mr := miniredis.RunT(t)

	a := build(t, testConfig(t, mr.Addr()))
	assert.Len(t, a.Cron.Entries(), 1)

	cfg := testConfig(t, mr.Addr())
	cfg.Cron.WarmSpec = "@every 1h"
	cfg.Seckill.WarmVouchers = []int64{10}
	cfg.Cron.SweepSpec = ""
	b := build(t, cfg)
	require.NoError(t, b.Admission.PublishVoucher(context.Background(), &domain.SeckillVoucher{VoucherID: 10, Stock: 1}))
	assert.Len(t, b.Cron.Entries(), 1)
}

func TestApp_Warm_WhenVouchersConfigured(t *testing.T) {
	// Given: 关系库中有券，热点缓存为空
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	a := build(t, cfg)
	ctx := context.Background()
	require.NoError(t, a.Repo.CreateVoucher(ctx, &domain.SeckillVoucher{VoucherID: 10, Stock: 4}))
	a.Config.Seckill.WarmVouchers = []int64{10}

	// When
	require.NoError(t, a.warm(ctx))

	// Then
	assert.True(t, mr.Exists(seckill.KeyVoucherHot+"10"))
	v, err := a.Catalog.Get(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(4), v.Stock)
}

func TestApp_Sweep_ClaimsStaleMessages(t *testing.T) {
	// Given: 已下线消费者遗留的 pending 消息
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	cfg.Worker.MinIdle = time.Millisecond
	a := build(t, cfg)
	ctx := context.Background()
	require.NoError(t, a.Admission.PublishVoucher(ctx, &domain.SeckillVoucher{VoucherID: 10, Stock: 1}))
	_, err := a.Admission.Admit(ctx, 10, 1)
	require.NoError(t, err)
	require.NoError(t, a.Queue.EnsureGroup(ctx))
	_, err = a.Queue.ReadNew(ctx, "gone-0", 1, time.Millisecond)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	// When
	require.NoError(t, a.sweep(ctx))

	// Then
	n, err := a.Repo.CountOrdersByVoucher(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestApp_Sweep_WhenMessageNotAcked_ReturnsIncomplete(t *testing.T) {
	// Given: 遗留消息的用户锁被占用
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	cfg.Worker.MinIdle = time.Millisecond
	a := build(t, cfg)
	ctx := context.Background()
	require.NoError(t, a.Admission.PublishVoucher(ctx, &domain.SeckillVoucher{VoucherID: 10, Stock: 1}))
	_, err := a.Admission.Admit(ctx, 10, 1)
	require.NoError(t, err)
	require.NoError(t, a.Queue.EnsureGroup(ctx))
	_, err = a.Queue.ReadNew(ctx, "gone-0", 1, time.Millisecond)
	require.NoError(t, err)
	h, err := a.Locks.TryLock(ctx, seckill.LockUserOrder+"1")
	require.NoError(t, err)
	require.NotNil(t, h)
	defer func() { _ = h.Unlock(ctx) }()
	time.Sleep(10 * time.Millisecond)

	// When
	err = a.sweep(ctx)

	// Then: 定时任务记为失败，消息保留
	require.ErrorIs(t, err, ErrSweepIncomplete)
	pending, err := a.Queue.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestApp_Run_WhenConfigFileChanges_UpdatesLogLevel(t *testing.T) {
	// Given: 以文件配置运行，级别 info
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "seckill.yaml")
	write := func(level string) {
		content := "redis:\n  addr: " + mr.Addr() + "\nlog:\n  level: " + level + "\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	write("info")
	_, src, err := config.Load(path, xconf.WithEnviron(func() []string { return nil }))
	require.NoError(t, err)

	logger := testLogger(t)
	cfg := testConfig(t, mr.Addr())
	cfg.Worker.Enabled = false
	cfg.Cron.Enabled = false
	a := build(t, cfg, WithLogger(logger), WithSource(src))
	stop := runApp(t, a)
	defer stop()

	// When: 文件改为 debug。监听可能晚于首次写入就绪，
	// 间隔大于去抖窗口重写，保证每次写入都能触发一次重载
	write("debug")
	require.Eventually(t, func() bool {
		if logger.GetLevel() == xlog.LevelDebug {
			return true
		}
		write("debug")
		return false
	}, 5*time.Second, 300*time.Millisecond)

	// Then: 非法级别被忽略
	write("loud")
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, xlog.LevelDebug, logger.GetLevel())
}

func TestCacheLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	a := build(t, testConfig(t, mr.Addr()))
	lock := cacheLocker(a.Locks)
	ctx := context.Background()

	unlock, err := lock(ctx, "lock:voucher:10", time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:voucher:10"))

	_, err = lock(ctx, "lock:voucher:10", time.Second)
	assert.ErrorIs(t, err, xcache.ErrLockFailed)

	require.NoError(t, unlock(ctx))
	unlock, err = lock(ctx, "lock:voucher:10", time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}

func TestBuild_WhenConsumerEmpty_GeneratesName(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	cfg.Worker.Consumer = ""

	a := build(t, cfg)

	name := a.Worker.ConsumerName(0)
	assert.NotEqual(t, "c-0", name)
	assert.Regexp(t, `^c[0-9a-z]+-0$`, name)
}

func TestApp_Run_SubscribesToVoucherPublished(t *testing.T) {
	// Given: 只运行售罄标记同步
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	cfg.Worker.Enabled = false
	cfg.Cron.Enabled = false
	a := build(t, cfg)

	// When
	stop := runApp(t, a)

	// Then: 订阅生效，停止后退订
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(seckill.ChannelVoucherPublished)[seckill.ChannelVoucherPublished] == 1
	}, 5*time.Second, 10*time.Millisecond)
	stop()
	assert.Eventually(t, func() bool {
		return mr.PubSubNumSub(seckill.ChannelVoucherPublished)[seckill.ChannelVoucherPublished] == 0
	}, 5*time.Second, 10*time.Millisecond)
}
