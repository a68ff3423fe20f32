package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/omeyang/xseckill/internal/config"
	"github.com/omeyang/xseckill/internal/infra/database/mysql"
	"github.com/omeyang/xseckill/internal/seckill"
	"github.com/omeyang/xseckill/pkg/distributed/xcron"
	"github.com/omeyang/xseckill/pkg/distributed/xdlock"
	"github.com/omeyang/xseckill/pkg/observability/xlog"
	"github.com/omeyang/xseckill/pkg/observability/xmetrics"
	"github.com/omeyang/xseckill/pkg/resilience/xbreaker"
	"github.com/omeyang/xseckill/pkg/resilience/xlimit"
	"github.com/omeyang/xseckill/pkg/resilience/xretry"
	"github.com/omeyang/xseckill/pkg/storage/xcache"
	"github.com/omeyang/xseckill/pkg/util/xid"
	"github.com/omeyang/xseckill/pkg/util/xpool"
)

// 定时任务名，同时作为分布式锁的资源名。
const (
	JobSweep = "seckill-sweep"
	JobWarm  = "seckill-warm"
)

// ErrSweepIncomplete 本轮 Sweep 有消息未能确认，留待下一轮。
var ErrSweepIncomplete = errors.New("app: sweep incomplete")

// App 装配完成的服务。字段在 Build 之后只读。
type App struct {
	Config    config.Config
	Logger    *xlog.Logger
	Redis     redis.UniversalClient
	DB        *gorm.DB
	Repo      *mysql.Repository
	Locks     *xdlock.RedisFactory
	Cache     *xcache.Client
	Flags     *xcache.Memory
	Catalog   *seckill.VoucherCatalog
	Admission *seckill.Admission
	Queue     *seckill.StreamQueue
	Worker    *seckill.Worker
	Cron      *xcron.Scheduler

	opts    *options
	closers []func() error
}

// Build 建立连接并装配组件。Redis 或关系库在重试后仍不可达时返回错误，
// 已创建的资源会被释放。
func Build(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg, opts: o}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.Close())
		}
	}()

	if o.logger == nil {
		l, cleanup, err := NewLogger(cfg.Log, slog.String("service", "seckilld"))
		if err != nil {
			return nil, err
		}
		o.logger = l
		a.closers = append(a.closers, cleanup)
	}
	a.Logger = o.logger
	logger := a.Logger.Slog()

	if o.observer == nil {
		if o.observer, err = xmetrics.NewOTelObserver(); err != nil {
			return nil, err
		}
	}

	if err := a.connectRedis(ctx, logger); err != nil {
		return nil, err
	}
	if err := a.connectDB(ctx, logger); err != nil {
		return nil, err
	}
	if err := a.buildSeckill(logger); err != nil {
		return nil, err
	}
	if err := a.buildCron(logger); err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "app: built", slog.String("config", cfg.String()))
	return a, nil
}

func (a *App) connectRedis(ctx context.Context, logger *slog.Logger) error {
	rc := a.Config.Redis
	if a.opts.redis != nil {
		a.Redis = a.opts.redis
	} else {
		addrs := []string{rc.Addr}
		if len(rc.SentinelAddrs) > 0 {
			addrs = rc.SentinelAddrs
		}
		a.Redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:       addrs,
			MasterName:  rc.MasterName,
			Password:    rc.Password,
			DB:          rc.DB,
			PoolSize:    rc.PoolSize,
			DialTimeout: rc.DialTimeout,
		})
		a.closers = append(a.closers, a.Redis.Close)
	}

	err := xretry.Do(ctx, func() error {
		return a.Redis.Ping(ctx).Err()
	}, a.startupPolicy().Options(xretry.LogRetry(logger, "redis.ping"))...)
	if err != nil {
		return fmt.Errorf("app: redis unreachable: %w", err)
	}
	return nil
}

func (a *App) connectDB(ctx context.Context, logger *slog.Logger) error {
	db, err := mysql.Open(ctx, a.Config.MySQL)
	if err != nil {
		return err
	}
	a.DB = db
	a.closers = append(a.closers, func() error { return mysql.Close(db) })

	err = xretry.Do(ctx, func() error {
		return mysql.Ping(ctx, db)
	}, a.startupPolicy().Options(xretry.LogRetry(logger, "mysql.ping"))...)
	if err != nil {
		return fmt.Errorf("app: database unreachable: %w", err)
	}
	a.Repo = mysql.NewRepository(db)
	return nil
}

func (a *App) startupPolicy() xretry.Policy {
	return xretry.Policy{Attempts: a.Config.Redis.StartupAttempts, Delay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
}

func (a *App) buildSeckill(logger *slog.Logger) error {
	cfg := a.Config

	tokens, err := xid.NewGenerator()
	if err != nil {
		return err
	}
	a.Locks, err = xdlock.NewRedisFactory(a.Redis,
		xdlock.WithSequence(tokens.NewString),
		xdlock.WithLogger(logger))
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.Locks.Close)

	pool, err := xpool.NewWorkerPool(cfg.Cache.RebuildWorkers, cfg.Cache.RebuildQueue,
		func(task func()) { task() },
		xpool.WithName("voucher-rebuild"), xpool.WithLogger(logger))
	if err != nil {
		return err
	}
	pool.Start()
	a.closers = append(a.closers, func() error { pool.Stop(); return nil })

	a.Cache, err = xcache.NewClient(a.Redis,
		xcache.WithNullTTL(cfg.Cache.NullTTL),
		xcache.WithLockTTL(cfg.Cache.LockTTL),
		xcache.WithLocker(cacheLocker(a.Locks)),
		xcache.WithRebuildPool(pool),
		xcache.WithLogger(logger))
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.Cache.Close)

	a.Flags, err = xcache.NewMemory(xcache.WithMemoryMaxCost(cfg.Cache.LocalMaxCost))
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.Flags.Close)

	a.Catalog, err = seckill.NewVoucherCatalog(a.Cache, a.Repo, cfg.Cache.TTL, cfg.Cache.LogicalTTL)
	if err != nil {
		return err
	}

	ids, err := xid.NewRedisGenerator(a.Redis)
	if err != nil {
		return err
	}
	admissionOpts := []seckill.AdmissionOption{
		seckill.WithStream(cfg.Seckill.Stream),
		seckill.WithSoldOutCache(a.Flags, cfg.Seckill.SoldOutTTL),
		seckill.WithCatalog(a.Catalog),
		seckill.WithAdmissionObserver(a.opts.observer),
		seckill.WithAdmissionLogger(logger),
	}
	if cfg.Limit.Enabled() {
		limiter, err := xlimit.New(a.Redis, cfg.Limit.Rule(),
			xlimit.WithFallback(cfg.Limit.Fallback), xlimit.WithLogger(logger))
		if err != nil {
			return err
		}
		admissionOpts = append(admissionOpts, seckill.WithRateLimiter(limiter))
	}
	a.Admission, err = seckill.NewAdmission(a.Redis, ids, admissionOpts...)
	if err != nil {
		return err
	}

	a.Queue, err = seckill.NewStreamQueue(a.Redis, cfg.Seckill.Stream, cfg.Seckill.DeadStream, cfg.Seckill.Group, logger)
	if err != nil {
		return err
	}

	wc := cfg.Worker
	if wc.Consumer == "" {
		suffix, err := tokens.NewString()
		if err != nil {
			return err
		}
		wc.Consumer = "c" + suffix
	}
	a.Worker, err = seckill.NewWorker(a.Queue, a.Repo, a.Locks,
		seckill.WithConsumer(wc.Consumer),
		seckill.WithConsumers(wc.Consumers),
		seckill.WithBatch(wc.Batch),
		seckill.WithBlock(wc.Block),
		seckill.WithIdleSleep(wc.IdleSleep),
		seckill.WithErrorSleep(wc.ErrorSleep),
		seckill.WithLockLease(wc.LockLease),
		seckill.WithMinIdle(wc.MinIdle),
		seckill.WithBreakerOptions(
			xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(wc.BreakerFailures)),
			xbreaker.WithTimeout(wc.BreakerTimeout),
		),
		seckill.WithWorkerObserver(a.opts.observer),
		seckill.WithWorkerLogger(logger),
	)
	return err
}

// cacheLocker 让缓存重建锁走 xdlock，与履约用户锁共用 token 校验的释放逻辑。
func cacheLocker(f xdlock.Factory) xcache.LockFunc {
	return func(ctx context.Context, key string, ttl time.Duration) (xcache.Unlocker, error) {
		// 缓存层的锁 key 已带 "lock:" 前缀
		h, err := f.TryLock(ctx, key, xdlock.WithKeyPrefix(""), xdlock.WithExpiry(ttl))
		if err != nil {
			return nil, err
		}
		if h == nil {
			return nil, xcache.ErrLockFailed
		}
		return h.Unlock, nil
	}
}

func (a *App) buildCron(logger *slog.Logger) error {
	locker, err := xcron.NewXdlockLocker(a.Locks)
	if err != nil {
		return err
	}
	a.Cron = xcron.New(
		xcron.WithLocker(locker),
		xcron.WithLogger(logger),
		xcron.WithObserver(a.opts.observer),
	)
	a.closers = append(a.closers, func() error {
		<-a.Cron.Stop().Done()
		return nil
	})

	cc := a.Config.Cron
	if !cc.Enabled {
		return nil
	}
	if cc.SweepSpec != "" {
		_, err := a.Cron.AddFunc(cc.SweepSpec, a.sweep,
			xcron.WithName(JobSweep), xcron.WithLockTTL(cc.LockTTL))
		if err != nil {
			return fmt.Errorf("app: add %s: %w", JobSweep, err)
		}
	}
	if cc.WarmSpec != "" && len(a.Config.Seckill.WarmVouchers) > 0 {
		_, err := a.Cron.AddFunc(cc.WarmSpec, a.warm,
			xcron.WithName(JobWarm), xcron.WithLockTTL(cc.LockTTL), xcron.WithImmediate(),
			xcron.WithRetry(xretry.Policy{Attempts: 3, Delay: time.Second}))
		if err != nil {
			return fmt.Errorf("app: add %s: %w", JobWarm, err)
		}
	}
	return nil
}

func (a *App) sweep(ctx context.Context) error {
	res, err := a.Worker.Sweep(ctx)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%w: %d of %d swept messages", ErrSweepIncomplete, res.Failed, res.Claimed)
	}
	return nil
}

func (a *App) warm(ctx context.Context) error {
	return a.Catalog.WarmAll(ctx, a.Config.Seckill.WarmVouchers)
}

// Close 逆序释放资源，可重复调用。
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
