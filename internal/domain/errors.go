package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStockExhausted 条件扣减影响 0 行。
	ErrStockExhausted = errors.New("domain: stock exhausted")

	// ErrDuplicateOrder 唯一索引 (user_id, voucher_id) 冲突。
	ErrDuplicateOrder = errors.New("domain: duplicate order")

	// ErrVoucherNotFound 秒杀券不存在。
	ErrVoucherNotFound = errors.New("domain: voucher not found")

	// ErrMalformedIntent 队列消息无法解码。
	ErrMalformedIntent = errors.New("domain: malformed order intent")

	// ErrInvalidVoucher 秒杀券字段不合法。
	ErrInvalidVoucher = errors.New("domain: invalid voucher")
)

// MalformedIntentError 记录出错字段，errors.Is(err, ErrMalformedIntent) 为 true。
type MalformedIntentError struct {
	Field  string
	Reason string
}

func (e *MalformedIntentError) Error() string {
	return fmt.Sprintf("%s: field %q %s", ErrMalformedIntent, e.Field, e.Reason)
}

func (e *MalformedIntentError) Unwrap() error {
	return ErrMalformedIntent
}

// Validate 检查发布前的秒杀券。
func (v *SeckillVoucher) Validate() error {
	switch {
	case v == nil:
		return fmt.Errorf("%w: nil", ErrInvalidVoucher)
	case v.VoucherID <= 0:
		return fmt.Errorf("%w: voucher id must be positive", ErrInvalidVoucher)
	case v.Stock < 0:
		return fmt.Errorf("%w: stock must be non-negative", ErrInvalidVoucher)
	case !v.EndTime.IsZero() && v.EndTime.Before(v.BeginTime):
		return fmt.Errorf("%w: end time before begin time", ErrInvalidVoucher)
	}
	return nil
}
