package xcron

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omeyang/xseckill/pkg/observability/xmetrics"
	"github.com/omeyang/xseckill/pkg/resilience/xretry"
)

type schedulerOptions struct {
	locker   Locker
	logger   *slog.Logger
	observer xmetrics.Observer
	location *time.Location
	parser   cron.Parser
}

func defaultSchedulerOptions() *schedulerOptions {
	return &schedulerOptions{
		locker:   NoopLocker(),
		logger:   slog.Default(),
		observer: xmetrics.NoopObserver{},
		location: time.Local,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// SchedulerOption 调度器选项。
type SchedulerOption func(*schedulerOptions)

// WithLocker 设置默认锁，任务可用 WithJobLocker 覆盖。
func WithLocker(locker Locker) SchedulerOption {
	return func(o *schedulerOptions) {
		if locker != nil {
			o.locker = locker
		}
	}
}

// WithLogger 设置日志。
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver 每次执行记录一个 component=xcron 的 span。
func WithObserver(observer xmetrics.Observer) SchedulerOption {
	return func(o *schedulerOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithLocation 设置时区，默认本地时区。
func WithLocation(loc *time.Location) SchedulerOption {
	return func(o *schedulerOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithSeconds 启用秒级表达式，如 "*/5 * * * * *"。
func WithSeconds() SchedulerOption {
	return func(o *schedulerOptions) {
		o.parser = cron.NewParser(
			cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		)
	}
}

// MinLockTTL 锁 TTL 下限。续期间隔为 TTL/3 且不小于 1s。
const MinLockTTL = 3 * time.Second

type jobOptions struct {
	name      string
	locker    Locker
	lockTTL   time.Duration
	timeout   time.Duration
	retry     *xretry.Policy
	immediate bool
}

func defaultJobOptions() *jobOptions {
	return &jobOptions{
		lockTTL: 30 * time.Second,
	}
}

// JobOption 任务选项。
type JobOption func(*jobOptions)

// WithName 任务名，同时作为锁 key。未设置名称的任务不加锁。
func WithName(name string) JobOption {
	return func(o *jobOptions) {
		o.name = name
	}
}

// WithJobLocker 覆盖调度器默认锁。
func WithJobLocker(locker Locker) JobOption {
	return func(o *jobOptions) {
		o.locker = locker
	}
}

// WithLockTTL 锁租期，默认 30s，小于 MinLockTTL 时取 MinLockTTL。
func WithLockTTL(ttl time.Duration) JobOption {
	return func(o *jobOptions) {
		o.lockTTL = max(ttl, MinLockTTL)
	}
}

// WithTimeout 单次执行超时。
func WithTimeout(timeout time.Duration) JobOption {
	return func(o *jobOptions) {
		o.timeout = timeout
	}
}

// WithRetry 任务失败时按策略重试。
func WithRetry(policy xretry.Policy) JobOption {
	return func(o *jobOptions) {
		o.retry = &policy
	}
}

// WithImmediate 注册后立即执行一次，不等第一个调度点。
func WithImmediate() JobOption {
	return func(o *jobOptions) {
		o.immediate = true
	}
}
