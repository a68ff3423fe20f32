package xlog

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNilHandler base handler 为 nil。
var ErrNilHandler = errors.New("xlog: base handler is nil")

// 日志字段名。
const (
	KeyError     = "error"
	KeyUserID    = "user_id"
	KeyVoucherID = "voucher_id"
	KeyOrderID   = "order_id"
	KeyMessageID = "msg_id"
	KeyConsumer  = "consumer"
)

// OrderFields 一次秒杀请求或一条订单消息的标识，零值字段不输出。
type OrderFields struct {
	UserID    int64
	VoucherID int64
	OrderID   int64
	MessageID string
	Consumer  string
}

type orderKey struct{}

// WithOrder 将订单标识写入 ctx，已有字段按非零值合并。
func WithOrder(ctx context.Context, f OrderFields) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if prev, ok := ctx.Value(orderKey{}).(OrderFields); ok {
		f = merge(prev, f)
	}
	return context.WithValue(ctx, orderKey{}, f)
}

// OrderFromContext 读取 WithOrder 写入的标识。
func OrderFromContext(ctx context.Context) (OrderFields, bool) {
	if ctx == nil {
		return OrderFields{}, false
	}
	f, ok := ctx.Value(orderKey{}).(OrderFields)
	return f, ok
}

func merge(prev, next OrderFields) OrderFields {
	if next.UserID == 0 {
		next.UserID = prev.UserID
	}
	if next.VoucherID == 0 {
		next.VoucherID = prev.VoucherID
	}
	if next.OrderID == 0 {
		next.OrderID = prev.OrderID
	}
	if next.MessageID == "" {
		next.MessageID = prev.MessageID
	}
	if next.Consumer == "" {
		next.Consumer = prev.Consumer
	}
	return next
}

// maxEnrichAttrs OrderFields 的字段数
const maxEnrichAttrs = 5

func (f OrderFields) appendAttrs(attrs []slog.Attr) []slog.Attr {
	if f.UserID != 0 {
		attrs = append(attrs, slog.Int64(KeyUserID, f.UserID))
	}
	if f.VoucherID != 0 {
		attrs = append(attrs, slog.Int64(KeyVoucherID, f.VoucherID))
	}
	if f.OrderID != 0 {
		attrs = append(attrs, slog.Int64(KeyOrderID, f.OrderID))
	}
	if f.MessageID != "" {
		attrs = append(attrs, slog.String(KeyMessageID, f.MessageID))
	}
	if f.Consumer != "" {
		attrs = append(attrs, slog.String(KeyConsumer, f.Consumer))
	}
	return attrs
}

// EnrichHandler 装饰底层 handler，从 ctx 注入 OrderFields。
//
// 对 logger 调用 WithGroup 后注入的字段也会归入该分组。
type EnrichHandler struct {
	base slog.Handler
}

// NewEnrichHandler 创建 EnrichHandler。
func NewEnrichHandler(base slog.Handler) (*EnrichHandler, error) {
	if base == nil {
		return nil, ErrNilHandler
	}
	return &EnrichHandler{base: base}, nil
}

func (h *EnrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle 按 slog 约定先 Clone record 再追加属性。
func (h *EnrichHandler) Handle(ctx context.Context, r slog.Record) error {
	if f, ok := OrderFromContext(ctx); ok {
		var buf [maxEnrichAttrs]slog.Attr
		if attrs := f.appendAttrs(buf[:0]); len(attrs) > 0 {
			r = r.Clone()
			r.AddAttrs(attrs...)
		}
	}
	return h.base.Handle(ctx, r)
}

func (h *EnrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EnrichHandler{base: h.base.WithAttrs(attrs)}
}

func (h *EnrichHandler) WithGroup(name string) slog.Handler {
	return &EnrichHandler{base: h.base.WithGroup(name)}
}
