package domain

import (
	"strconv"
	"time"
)

// OrderStatusUnpaid 新建订单的状态。
const OrderStatusUnpaid int32 = 1

// SeckillVoucher 秒杀券及其关系库库存。
type SeckillVoucher struct {
	VoucherID int64     `gorm:"primaryKey;autoIncrement:false" json:"voucher_id"`
	Stock     int64     `gorm:"not null" json:"stock"`
	BeginTime time.Time `gorm:"not null" json:"begin_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SeckillVoucher) TableName() string {
	return "tb_seckill_voucher"
}

// Window 返回活动时间窗口。
func (v *SeckillVoucher) Window() (begin, end time.Time) {
	return v.BeginTime, v.EndTime
}

// VoucherOrder 秒杀订单，ID 在准入时预分配。
type VoucherOrder struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserID    int64     `gorm:"not null;uniqueIndex:uk_user_voucher,priority:1" json:"user_id"`
	VoucherID int64     `gorm:"not null;uniqueIndex:uk_user_voucher,priority:2" json:"voucher_id"`
	Status    int32     `gorm:"type:tinyint;not null" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (VoucherOrder) TableName() string {
	return "tb_voucher_order"
}

// OrderIntent 已准入、待落库的下单意图。
type OrderIntent struct {
	OrderID   int64
	UserID    int64
	VoucherID int64
}

// Stream 字段名。
const (
	FieldOrderID   = "id"
	FieldUserID    = "userId"
	FieldVoucherID = "voucherId"
)

// Order 转换为待插入的订单。
func (i OrderIntent) Order() *VoucherOrder {
	return &VoucherOrder{
		ID:        i.OrderID,
		UserID:    i.UserID,
		VoucherID: i.VoucherID,
		Status:    OrderStatusUnpaid,
	}
}

// Values 编码为 stream 字段，数值以十进制字符串表示。
func (i OrderIntent) Values() map[string]any {
	return map[string]any{
		FieldOrderID:   strconv.FormatInt(i.OrderID, 10),
		FieldUserID:    strconv.FormatInt(i.UserID, 10),
		FieldVoucherID: strconv.FormatInt(i.VoucherID, 10),
	}
}

// ParseOrderIntent 从 stream 字段解码，缺失字段或非正整数返回 ErrMalformedIntent。
func ParseOrderIntent(values map[string]any) (OrderIntent, error) {
	var (
		intent OrderIntent
		err    error
	)
	if intent.OrderID, err = parseID(values, FieldOrderID); err != nil {
		return OrderIntent{}, err
	}
	if intent.UserID, err = parseID(values, FieldUserID); err != nil {
		return OrderIntent{}, err
	}
	if intent.VoucherID, err = parseID(values, FieldVoucherID); err != nil {
		return OrderIntent{}, err
	}
	return intent, nil
}

func parseID(values map[string]any, field string) (int64, error) {
	raw, ok := values[field]
	if !ok {
		return 0, &MalformedIntentError{Field: field, Reason: "missing"}
	}
	s, ok := raw.(string)
	if !ok {
		return 0, &MalformedIntentError{Field: field, Reason: "not a string"}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, &MalformedIntentError{Field: field, Reason: "not a positive integer: " + strconv.Quote(s)}
	}
	return n, nil
}
