package seckill

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xseckill/internal/domain"
	"github.com/omeyang/xseckill/pkg/observability/xlog"
	"github.com/omeyang/xseckill/pkg/observability/xmetrics"
	"github.com/omeyang/xseckill/pkg/resilience/xlimit"
)

// IDGenerator 订单号生成器，xid.RedisGenerator 满足该接口。
type IDGenerator interface {
	NextID(ctx context.Context, tag string) (int64, error)
}

// RateLimiter 按用户限流，xlimit.Limiter 满足该接口。
type RateLimiter interface {
	Allow(ctx context.Context, key string) (*xlimit.Result, error)
}

// FlagCache 本地售罄标记，xcache.Memory 满足该接口。
type FlagCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) bool
	Del(key string)
}

// Admission 秒杀准入。
type Admission struct {
	rdb  redis.UniversalClient
	ids  IDGenerator
	opts *admissionOptions
}

// NewAdmission 创建准入服务。
func NewAdmission(rdb redis.UniversalClient, ids IDGenerator, opts ...AdmissionOption) (*Admission, error) {
	if rdb == nil || ids == nil {
		return nil, ErrNilDependency
	}
	o := defaultAdmissionOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Admission{rdb: rdb, ids: ids, opts: o}, nil
}

// Admit 校验资格并写入下单意图。
//
// 拒绝以 Result.Status 返回，err 只表示基础设施故障。
// 订单号在脚本执行前分配，被拒绝时该号码作废。
func (a *Admission) Admit(ctx context.Context, voucherID, userID int64) (res Result, err error) {
	if voucherID <= 0 || userID <= 0 {
		return Result{}, ErrInvalidID
	}
	ctx = xlog.WithOrder(ctx, xlog.OrderFields{UserID: userID, VoucherID: voucherID})
	ctx, span := xmetrics.Start(ctx, a.opts.observer, xmetrics.SpanOptions{
		Component: "seckill",
		Operation: "admit",
		Kind:      xmetrics.KindServer,
		Attrs: []xmetrics.Attr{
			xmetrics.Int64("voucher_id", voucherID),
			xmetrics.Int64("user_id", userID),
		},
	})
	defer func() {
		outcome := res.Status.String()
		if err != nil {
			outcome = "error"
		}
		span.End(xmetrics.Result{Err: err, Outcome: outcome})
	}()

	if a.soldOut(voucherID) {
		return Result{Status: SoldOut}, nil
	}
	if limited, err := a.limited(ctx, userID); err != nil || limited {
		if err != nil {
			return Result{}, err
		}
		return Result{Status: RateLimited}, nil
	}

	orderID, err := a.ids.NextID(ctx, OrderIDTag)
	if err != nil {
		return Result{}, fmt.Errorf("seckill: allocate order id: %w", err)
	}

	keys := []string{stockKey(voucherID), orderKey(voucherID), windowKey(voucherID), a.opts.stream}
	code, err := admitScript.Run(ctx, a.rdb, keys,
		strconv.FormatInt(voucherID, 10),
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(orderID, 10),
		a.opts.clock().Unix(),
	).Int64()
	if err != nil {
		return Result{}, fmt.Errorf("seckill: run admission script: %w", err)
	}

	status := Status(code)
	switch status {
	case Admitted:
		a.opts.logger.DebugContext(ctx, "seckill: admitted", xlog.OrderID(orderID))
		return Result{Status: Admitted, OrderID: orderID}, nil
	case SoldOut:
		a.markSoldOut(voucherID)
		return Result{Status: SoldOut}, nil
	case DuplicatePurchase, NotStarted, Ended:
		return Result{Status: status}, nil
	default:
		return Result{}, fmt.Errorf("%w: %d", ErrUnexpectedCode, code)
	}
}

func (a *Admission) soldOut(voucherID int64) bool {
	if a.opts.flags == nil {
		return false
	}
	_, ok := a.opts.flags.Get(soldOutKey(voucherID))
	return ok
}

func (a *Admission) markSoldOut(voucherID int64) {
	if a.opts.flags != nil {
		a.opts.flags.Set(soldOutKey(voucherID), []byte{1}, a.opts.soldOutTTL)
	}
}

// ClearSoldOut 清除本地售罄标记，补货或重新发布后调用。
func (a *Admission) ClearSoldOut(voucherID int64) {
	if a.opts.flags != nil {
		a.opts.flags.Del(soldOutKey(voucherID))
	}
}

func (a *Admission) limited(ctx context.Context, userID int64) (bool, error) {
	if a.opts.limiter == nil {
		return false, nil
	}
	r, err := a.opts.limiter.Allow(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		return false, fmt.Errorf("seckill: rate limit: %w", err)
	}
	if r.Degraded {
		a.opts.logger.WarnContext(ctx, "seckill: rate limiter degraded")
	}
	return !r.Allowed, nil
}

// PublishVoucher 发布秒杀券：落库、写入 Redis 库存与时间窗口、预热热点缓存、清除售罄标记。
//
// 重新发布会覆盖库存，已购用户集合保留。其他实例的售罄标记经
// ChannelVoucherPublished 广播清除，见 SyncSoldOut。
func (a *Admission) PublishVoucher(ctx context.Context, v *domain.SeckillVoucher) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if a.opts.catalog == nil {
		return ErrNoCatalog
	}
	if err := a.opts.catalog.repo.CreateVoucher(ctx, v); err != nil {
		return err
	}

	_, err := a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, stockKey(v.VoucherID), v.Stock, 0)
		p.Del(ctx, windowKey(v.VoucherID))
		window := map[string]any{}
		if !v.BeginTime.IsZero() {
			window[windowBegin] = v.BeginTime.Unix()
		}
		if !v.EndTime.IsZero() {
			window[windowEnd] = v.EndTime.Unix()
		}
		if len(window) > 0 {
			p.HSet(ctx, windowKey(v.VoucherID), window)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seckill: publish voucher %d: %w", v.VoucherID, err)
	}

	if err := a.opts.catalog.Warm(ctx, v.VoucherID); err != nil {
		return err
	}
	if err := a.opts.catalog.Invalidate(ctx, v.VoucherID); err != nil {
		return err
	}
	a.ClearSoldOut(v.VoucherID)
	a.broadcastPublished(ctx, v.VoucherID)
	a.opts.logger.InfoContext(ctx, "seckill: voucher published",
		xlog.VoucherID(v.VoucherID), slog.Int64("stock", v.Stock))
	return nil
}

// Stock 读取 Redis 中的剩余库存，不存在时返回 0。
func (a *Admission) Stock(ctx context.Context, voucherID int64) (int64, error) {
	n, err := a.rdb.Get(ctx, stockKey(voucherID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
