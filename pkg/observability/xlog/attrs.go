package xlog

import (
	"log/slog"
	"time"
)

// Err 标准错误字段，err 为 nil 时返回空属性。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any(KeyError, err)
}

// Duration 耗时，单位毫秒。
func Duration(d time.Duration) slog.Attr {
	return slog.Float64("duration_ms", float64(d)/float64(time.Millisecond))
}

// Component 组件名。
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// VoucherID 优惠券 ID。
func VoucherID(id int64) slog.Attr {
	return slog.Int64(KeyVoucherID, id)
}

// UserID 用户 ID。
func UserID(id int64) slog.Attr {
	return slog.Int64(KeyUserID, id)
}

// OrderID 订单 ID。
func OrderID(id int64) slog.Attr {
	return slog.Int64(KeyOrderID, id)
}
