package xcron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/xseckill/pkg/observability/xmetrics"
	"github.com/omeyang/xseckill/pkg/resilience/xretry"
)

// jobWrapper 为任务加上锁、超时、重试与统计，实现 cron.Job。
type jobWrapper struct {
	job      Job
	opts     *jobOptions
	locker   Locker
	logger   *slog.Logger
	observer xmetrics.Observer
	stats    *Stats
	baseCtx  context.Context
}

func (w *jobWrapper) Run() {
	ctx, cancel := context.WithCancel(w.baseCtx)
	defer cancel()
	if ctx.Err() != nil {
		return
	}

	var handle LockHandle
	if w.opts.name != "" {
		h, ok := w.acquire(ctx)
		if !ok {
			w.stats.recordSkip(w.opts.name)
			return
		}
		handle = h
	}

	start := time.Now()
	err := w.execute(ctx, cancel, handle)
	w.stats.recordExecution(w.opts.name, time.Since(start), err)

	if err != nil {
		w.logger.ErrorContext(ctx, "xcron: job failed", slog.String("job", w.opts.name), slog.Any("error", err))
		return
	}
	w.logger.DebugContext(ctx, "xcron: job completed", slog.String("job", w.opts.name), slog.Duration("duration", time.Since(start)))
}

func (w *jobWrapper) acquire(ctx context.Context) (LockHandle, bool) {
	h, err := w.locker.TryLock(ctx, w.opts.name, w.opts.lockTTL)
	if err != nil {
		w.logger.WarnContext(ctx, "xcron: failed to acquire lock", slog.String("job", w.opts.name), slog.Any("error", err))
		return nil, false
	}
	if h == nil {
		w.logger.DebugContext(ctx, "xcron: lock held elsewhere, skipping", slog.String("job", w.opts.name))
		return nil, false
	}
	return h, true
}

func (w *jobWrapper) execute(ctx context.Context, cancel context.CancelFunc, handle LockHandle) (err error) {
	if handle != nil {
		stop := w.startRenew(ctx, cancel, handle)
		defer func() {
			stop()
			// 任务 ctx 可能已取消，释放使用独立 ctx
			unlockCtx, unlockCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer unlockCancel()
			if uerr := handle.Unlock(unlockCtx); uerr != nil {
				w.logger.Warn("xcron: failed to release lock", slog.String("job", w.opts.name), slog.Any("error", uerr))
			}
		}()
	}

	if w.opts.timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, w.opts.timeout)
		defer tcancel()
	}

	ctx, span := xmetrics.Start(ctx, w.observer, xmetrics.SpanOptions{
		Component: "xcron",
		Operation: w.opts.name,
		Attrs:     []xmetrics.Attr{xmetrics.Bool("locked", handle != nil)},
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	if w.opts.retry == nil {
		return w.job.Run(ctx)
	}
	return xretry.Do(ctx, func() error {
		return w.job.Run(ctx)
	}, w.opts.retry.Options(xretry.LogRetry(w.logger, "xcron."+w.opts.name))...)
}

// startRenew 按 TTL/3 续期，续期失败取消任务，防止锁过期后并发执行。
func (w *jobWrapper) startRenew(ctx context.Context, cancel context.CancelFunc, handle LockHandle) (stop func()) {
	interval := max(w.opts.lockTTL/3, time.Second)
	renewCtx, renewCancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				if err := handle.Renew(renewCtx); err != nil {
					if renewCtx.Err() != nil {
						return
					}
					w.logger.Error("xcron: lock renewal failed, canceling job",
						slog.String("job", w.opts.name), slog.Any("error", err))
					cancel()
					return
				}
			}
		}
	})
	return func() {
		renewCancel()
		wg.Wait()
	}
}
