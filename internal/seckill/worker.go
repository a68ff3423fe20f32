package seckill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xseckill/internal/domain"
	"github.com/omeyang/xseckill/pkg/distributed/xdlock"
	"github.com/omeyang/xseckill/pkg/observability/xlog"
	"github.com/omeyang/xseckill/pkg/observability/xmetrics"
	"github.com/omeyang/xseckill/pkg/resilience/xbreaker"
)

// State 消费者状态。
type State int32

const (
	StateIdle State = iota
	StateReading
	StateProcessing
	StateAcknowledging
	StateRecovering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateProcessing:
		return "processing"
	case StateAcknowledging:
		return "acknowledging"
	case StateRecovering:
		return "recovering_pending"
	case StateStopped:
		return "stopped"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// 履约结果，用作指标 outcome。
const (
	OutcomeCreated        = "created"
	OutcomeDuplicate      = "duplicate"
	OutcomeLocked         = "locked"
	OutcomeStockExhausted = "stock_exhausted"
	OutcomeBreakerOpen    = "breaker_open"
	OutcomeError          = "error"
)

// Locker 用户锁，xdlock.Factory 满足该接口。
type Locker interface {
	TryLock(ctx context.Context, key string, opts ...xdlock.MutexOption) (xdlock.LockHandle, error)
}

// WorkerStats 累计计数。
type WorkerStats struct {
	Created      int64
	Duplicates   int64
	DeadLettered int64
	Failed       int64
}

// Worker 订单履约消费者。
type Worker struct {
	queue   *StreamQueue
	repo    domain.Repository
	locks   Locker
	breaker *xbreaker.Breaker
	opts    *workerOptions
	states  []atomic.Int32

	created      atomic.Int64
	duplicates   atomic.Int64
	deadLettered atomic.Int64
	failed       atomic.Int64
}

// NewWorker 创建履约 worker。持久化调用经过名为 seckill-persist 的熔断器，
// 重复订单与库存耗尽不计为失败。
func NewWorker(queue *StreamQueue, repo domain.Repository, locks Locker, opts ...WorkerOption) (*Worker, error) {
	if queue == nil || repo == nil || locks == nil {
		return nil, ErrNilDependency
	}
	o := defaultWorkerOptions()
	for _, opt := range opts {
		opt(o)
	}
	breakerOpts := append([]xbreaker.BreakerOption{
		xbreaker.WithSuccessful(persistSucceeded),
		xbreaker.WithLogger(o.logger),
	}, o.breakerOpts...)

	w := &Worker{
		queue:   queue,
		repo:    repo,
		locks:   locks,
		breaker: xbreaker.NewBreaker("seckill-persist", breakerOpts...),
		opts:    o,
		states:  make([]atomic.Int32, o.consumers),
	}
	// Run 之前视为已停止
	for i := range w.states {
		w.states[i].Store(int32(StateStopped))
	}
	return w, nil
}

func persistSucceeded(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrDuplicateOrder) ||
		errors.Is(err, domain.ErrStockExhausted)
}

// ConsumerName 第 i 个消费者的名称。
func (w *Worker) ConsumerName(i int) string {
	return w.opts.consumer + "-" + strconv.Itoa(i)
}

// State 第一个消费者的状态。
func (w *Worker) State() State {
	return w.ConsumerState(0)
}

// ConsumerState 第 i 个消费者的状态，越界返回 StateStopped。
func (w *Worker) ConsumerState(i int) State {
	if i < 0 || i >= len(w.states) {
		return StateStopped
	}
	return State(w.states[i].Load())
}

func (w *Worker) setState(i int, s State) {
	if i >= 0 && i < len(w.states) {
		w.states[i].Store(int32(s))
	}
}

// Breaker 持久化熔断器。
func (w *Worker) Breaker() *xbreaker.Breaker {
	return w.breaker
}

// Stats 累计计数快照。
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Created:      w.created.Load(),
		Duplicates:   w.duplicates.Load(),
		DeadLettered: w.deadLettered.Load(),
		Failed:       w.failed.Load(),
	}
}

// Run 创建消费组并启动全部消费者，阻塞到 ctx 取消。
// 只有创建消费组失败会返回错误，单条消息的失败不会让 Run 退出。
func (w *Worker) Run(ctx context.Context) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}
	w.opts.logger.InfoContext(ctx, "seckill: worker started",
		slog.String("stream", w.queue.Stream()), slog.Int("consumers", len(w.states)))

	var wg sync.WaitGroup
	for i := range w.states {
		wg.Go(func() { w.consume(ctx, i) })
	}
	wg.Wait()
	return nil
}

func (w *Worker) consume(ctx context.Context, i int) {
	name := w.ConsumerName(i)
	ctx = xlog.WithOrder(ctx, xlog.OrderFields{Consumer: name})
	defer w.setState(i, StateStopped)

	// 上次退出时可能遗留未确认的消息
	w.recoverPending(ctx, i, name)

	for ctx.Err() == nil {
		w.setState(i, StateReading)
		msgs, err := w.queue.ReadNew(ctx, name, w.opts.batch, w.opts.block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.opts.logger.ErrorContext(ctx, "seckill: read stream failed", xlog.Err(err))
			sleep(ctx, w.opts.errorSleep)
			w.recoverPending(ctx, i, name)
			continue
		}
		if len(msgs) == 0 {
			w.setState(i, StateIdle)
			sleep(ctx, w.opts.idleSleep)
			continue
		}

		var failed, open bool
		for _, msg := range msgs {
			if err := w.handle(ctx, i, name, msg); err != nil {
				failed = true
				open = open || xbreaker.IsOpen(err)
			}
		}
		if failed {
			if open {
				sleep(ctx, w.opts.errorSleep)
			}
			w.recoverPending(ctx, i, name)
		}
	}
}

// recoverPending 从头遍历一次本消费者的 pending 列表。
// 每条消息只尝试一次，仍失败的留待下次恢复或 Sweep，避免在同一条消息上空转。
func (w *Worker) recoverPending(ctx context.Context, i int, name string) {
	w.setState(i, StateRecovering)
	after := "0"
	for ctx.Err() == nil {
		msgs, err := w.queue.ReadPending(ctx, name, after, 10)
		if err != nil {
			if ctx.Err() == nil {
				w.opts.logger.ErrorContext(ctx, "seckill: read pending failed", xlog.Err(err))
			}
			return
		}
		if len(msgs) == 0 {
			return
		}
		for _, msg := range msgs {
			after = msg.ID
			if err := w.handle(ctx, i, name, msg); err != nil && xbreaker.IsOpen(err) {
				// 熔断打开时后面的消息也会失败
				return
			}
		}
	}
}

// SweepResult 一次 Sweep 的结果。Acked 与 Failed 之和不超过 Claimed，
// ctx 取消时剩余消息未处理。
type SweepResult struct {
	Claimed int
	Acked   int
	Failed  int
}

// Sweep 认领空闲超过 MinIdle 的 pending 消息（通常属于已退出的消费者）并处理。
// 由定时任务调用。处理失败的消息留在 pending，由下一次 Sweep 或恢复重试。
func (w *Worker) Sweep(ctx context.Context) (SweepResult, error) {
	name := w.ConsumerName(0)
	ctx = xlog.WithOrder(ctx, xlog.OrderFields{Consumer: name})
	msgs, err := w.queue.Claim(ctx, name, w.opts.minIdle, 100)
	if err != nil && len(msgs) == 0 {
		return SweepResult{}, err
	}
	res := SweepResult{Claimed: len(msgs)}
	for _, msg := range msgs {
		if ctx.Err() != nil {
			break
		}
		if herr := w.handle(ctx, -1, name, msg); herr != nil {
			res.Failed++
			w.opts.logger.WarnContext(ctx, "seckill: swept message not acknowledged",
				slog.String("msg_id", msg.ID), xlog.Err(herr))
			continue
		}
		res.Acked++
	}
	if res.Claimed > 0 {
		w.opts.logger.InfoContext(ctx, "seckill: swept stale pending messages",
			slog.Int("claimed", res.Claimed), slog.Int("acked", res.Acked), slog.Int("failed", res.Failed))
	}
	return res, err
}

// handle 处理单条消息。返回 nil 表示消息已确认。
func (w *Worker) handle(ctx context.Context, i int, name string, msg redis.XMessage) (err error) {
	ctx = xlog.WithOrder(ctx, xlog.OrderFields{MessageID: msg.ID, Consumer: name})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("seckill: panic processing %s: %v", msg.ID, r)
			w.opts.logger.ErrorContext(ctx, "seckill: recovered panic", xlog.Err(err))
		}
		if err != nil {
			w.failed.Add(1)
		}
	}()
	w.setState(i, StateProcessing)

	intent, perr := domain.ParseOrderIntent(msg.Values)
	if perr != nil {
		if err := w.queue.DeadLetter(ctx, msg, perr.Error()); err != nil {
			return err
		}
		w.deadLettered.Add(1)
		w.setState(i, StateAcknowledging)
		return w.queue.Ack(ctx, msg.ID)
	}

	ctx = xlog.WithOrder(ctx, xlog.OrderFields{
		UserID: intent.UserID, VoucherID: intent.VoucherID, OrderID: intent.OrderID,
	})
	if _, err := w.Fulfill(ctx, intent); err != nil {
		return err
	}

	w.setState(i, StateAcknowledging)
	if err := w.queue.Ack(ctx, msg.ID); err != nil {
		w.opts.logger.ErrorContext(ctx, "seckill: ack failed, message stays pending", xlog.Err(err))
		return err
	}
	return nil
}

// Fulfill 在用户锁内落库一个下单意图，返回结果 outcome。
//
// 已存在同一用户对同一券的订单时视为成功（幂等）。
// 未获取到用户锁返回 ErrUserLocked，关系库库存耗尽返回 domain.ErrStockExhausted。
func (w *Worker) Fulfill(ctx context.Context, intent domain.OrderIntent) (outcome string, err error) {
	ctx, span := xmetrics.Start(ctx, w.opts.observer, xmetrics.SpanOptions{
		Component: "seckill",
		Operation: "fulfill",
		Kind:      xmetrics.KindConsumer,
		Attrs: []xmetrics.Attr{
			xmetrics.Int64("order_id", intent.OrderID),
			xmetrics.Int64("voucher_id", intent.VoucherID),
		},
	})
	defer func() {
		span.End(xmetrics.Result{Err: err, Outcome: outcome})
		switch {
		case err == nil:
		case errors.Is(err, ErrUserLocked):
			w.opts.logger.WarnContext(ctx, "seckill: user lock busy, message left pending")
		default:
			w.opts.logger.ErrorContext(ctx, "seckill: fulfill failed, message left pending",
				slog.String("outcome", outcome), xlog.Err(err))
		}
	}()

	h, err := w.locks.TryLock(ctx, userLock(intent.UserID), xdlock.WithExpiry(w.opts.lockLease))
	if err != nil {
		return OutcomeError, fmt.Errorf("seckill: lock user %d: %w", intent.UserID, err)
	}
	if h == nil {
		return OutcomeLocked, ErrUserLocked
	}
	defer func() {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if uerr := h.Unlock(uctx); uerr != nil {
			w.opts.logger.WarnContext(ctx, "seckill: unlock user failed", xlog.Err(uerr))
		}
	}()

	var duplicate bool
	err = w.breaker.Do(ctx, func() error {
		return w.repo.InTx(ctx, func(ctx context.Context, tx domain.OrderTx) error {
			n, err := tx.CountOrders(ctx, intent.UserID, intent.VoucherID)
			if err != nil {
				return err
			}
			if n > 0 {
				duplicate = true
				return nil
			}
			affected, err := tx.DecrementStock(ctx, intent.VoucherID)
			if err != nil {
				return err
			}
			if affected == 0 {
				return fmt.Errorf("%w: voucher %d", domain.ErrStockExhausted, intent.VoucherID)
			}
			return tx.InsertOrder(ctx, intent.Order())
		})
	})

	switch {
	case err == nil && duplicate:
		w.duplicates.Add(1)
		return OutcomeDuplicate, nil
	case err == nil:
		w.created.Add(1)
		return OutcomeCreated, nil
	case errors.Is(err, domain.ErrDuplicateOrder):
		w.duplicates.Add(1)
		return OutcomeDuplicate, nil
	case errors.Is(err, domain.ErrStockExhausted):
		return OutcomeStockExhausted, err
	case xbreaker.IsOpen(err):
		return OutcomeBreakerOpen, err
	default:
		return OutcomeError, err
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
