package seckill

import (
	"log/slog"
	"time"

	"github.com/omeyang/xseckill/pkg/observability/xmetrics"
	"github.com/omeyang/xseckill/pkg/resilience/xbreaker"
)

type admissionOptions struct {
	stream     string
	limiter    RateLimiter
	flags      FlagCache
	soldOutTTL time.Duration
	catalog    *VoucherCatalog
	observer   xmetrics.Observer
	logger     *slog.Logger
	clock      func() time.Time
}

func defaultAdmissionOptions() *admissionOptions {
	return &admissionOptions{
		stream:     DefaultStream,
		soldOutTTL: 5 * time.Second,
		observer:   xmetrics.NoopObserver{},
		logger:     slog.Default(),
		clock:      time.Now,
	}
}

// AdmissionOption 准入选项。
type AdmissionOption func(*admissionOptions)

// WithStream 下单意图写入的 stream，默认 stream.orders。
func WithStream(stream string) AdmissionOption {
	return func(o *admissionOptions) {
		if stream != "" {
			o.stream = stream
		}
	}
}

// WithRateLimiter 按用户限流。
func WithRateLimiter(l RateLimiter) AdmissionOption {
	return func(o *admissionOptions) {
		o.limiter = l
	}
}

// WithSoldOutCache 本地售罄标记，ttl 默认 5s。
func WithSoldOutCache(flags FlagCache, ttl time.Duration) AdmissionOption {
	return func(o *admissionOptions) {
		o.flags = flags
		if ttl > 0 {
			o.soldOutTTL = ttl
		}
	}
}

// WithCatalog PublishVoucher 依赖的券目录。
func WithCatalog(c *VoucherCatalog) AdmissionOption {
	return func(o *admissionOptions) {
		o.catalog = c
	}
}

// WithAdmissionObserver 设置观测器。
func WithAdmissionObserver(obs xmetrics.Observer) AdmissionOption {
	return func(o *admissionOptions) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithAdmissionLogger 设置日志。
func WithAdmissionLogger(logger *slog.Logger) AdmissionOption {
	return func(o *admissionOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock 时间窗口判断使用的时钟。
func WithClock(now func() time.Time) AdmissionOption {
	return func(o *admissionOptions) {
		if now != nil {
			o.clock = now
		}
	}
}

type workerOptions struct {
	consumer    string
	consumers   int
	batch       int64
	block       time.Duration
	idleSleep   time.Duration
	errorSleep  time.Duration
	lockLease   time.Duration
	minIdle     time.Duration
	breakerOpts []xbreaker.BreakerOption
	observer    xmetrics.Observer
	logger      *slog.Logger
}

func defaultWorkerOptions() *workerOptions {
	return &workerOptions{
		consumer:   "c",
		consumers:  1,
		batch:      1,
		block:      2 * time.Second,
		idleSleep:  20 * time.Millisecond,
		errorSleep: 500 * time.Millisecond,
		lockLease:  30 * time.Second,
		minIdle:    time.Minute,
		observer:   xmetrics.NoopObserver{},
		logger:     slog.Default(),
	}
}

// WorkerOption 履约选项。
type WorkerOption func(*workerOptions)

// WithConsumer 消费者名前缀，实际名称为 <name>-<i>。
func WithConsumer(name string) WorkerOption {
	return func(o *workerOptions) {
		if name != "" {
			o.consumer = name
		}
	}
}

// WithConsumers 同一消费组内的消费者数，默认 1。
func WithConsumers(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.consumers = n
		}
	}
}

// WithBatch 每次读取的消息数，默认 1。
func WithBatch(n int64) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.batch = n
		}
	}
}

// WithBlock XREADGROUP 的 BLOCK 时长，默认 2s。
func WithBlock(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.block = d
		}
	}
}

// WithIdleSleep 空读后的等待，默认 20ms。
func WithIdleSleep(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.idleSleep = d
		}
	}
}

// WithErrorSleep 读失败或熔断打开后的退避，默认 500ms。
func WithErrorSleep(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.errorSleep = d
		}
	}
}

// WithLockLease 用户锁租期，默认 30s。
func WithLockLease(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockLease = d
		}
	}
}

// WithMinIdle Sweep 认领 pending 消息的最小空闲时长，默认 1m。
func WithMinIdle(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.minIdle = d
		}
	}
}

// WithBreakerOptions 追加持久化熔断器选项。
func WithBreakerOptions(opts ...xbreaker.BreakerOption) WorkerOption {
	return func(o *workerOptions) {
		o.breakerOpts = append(o.breakerOpts, opts...)
	}
}

// WithWorkerObserver 设置观测器。
func WithWorkerObserver(obs xmetrics.Observer) WorkerOption {
	return func(o *workerOptions) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithWorkerLogger 设置日志。
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
