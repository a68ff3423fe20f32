package seckill

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/omeyang/xseckill/pkg/observability/xlog"
)

// ChannelVoucherPublished 券发布广播频道，消息体为券 id。
const ChannelVoucherPublished = "seckill:voucher:published"

// SyncSoldOut 订阅券发布广播并清除本地售罄标记，阻塞到 ctx 取消。
//
// 订阅建立前或断线期间错过的广播由标记 TTL 兜底。
func (a *Admission) SyncSoldOut(ctx context.Context) error {
	if a.opts.flags == nil {
		<-ctx.Done()
		return nil
	}
	ps := a.rdb.Subscribe(ctx, ChannelVoucherPublished)
	defer func() { _ = ps.Close() }()

	// 等待订阅确认，之后的广播不会丢
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("seckill: subscribe %s: %w", ChannelVoucherPublished, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			id, err := strconv.ParseInt(msg.Payload, 10, 64)
			if err != nil {
				a.opts.logger.WarnContext(ctx, "seckill: bad publish broadcast",
					slog.String("payload", msg.Payload))
				continue
			}
			a.ClearSoldOut(id)
			a.opts.logger.DebugContext(ctx, "seckill: sold-out flag cleared", xlog.VoucherID(id))
		}
	}
}

func (a *Admission) broadcastPublished(ctx context.Context, voucherID int64) {
	err := a.rdb.Publish(ctx, ChannelVoucherPublished, strconv.FormatInt(voucherID, 10)).Err()
	if err != nil {
		a.opts.logger.WarnContext(ctx, "seckill: broadcast publish failed, other instances wait for flag ttl",
			xlog.VoucherID(voucherID), xlog.Err(err))
	}
}
