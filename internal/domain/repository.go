package domain

import "context"

// Repository 关系库仓储。
type Repository interface {
	// FindVoucher 不存在时返回 (nil, nil)。
	FindVoucher(ctx context.Context, voucherID int64) (*SeckillVoucher, error)

	// CreateVoucher 新建或覆盖秒杀券。
	CreateVoucher(ctx context.Context, v *SeckillVoucher) error

	// FindOrder 不存在时返回 (nil, nil)。
	FindOrder(ctx context.Context, orderID int64) (*VoucherOrder, error)

	// CountOrdersByVoucher 已落库订单数。
	CountOrdersByVoucher(ctx context.Context, voucherID int64) (int64, error)

	// InTx 在单个事务内执行 fn，fn 返回错误时回滚。
	InTx(ctx context.Context, fn func(ctx context.Context, tx OrderTx) error) error
}

// OrderTx 事务内可用的操作。
type OrderTx interface {
	// CountOrders 指定用户对指定券的订单数。
	CountOrders(ctx context.Context, userID, voucherID int64) (int64, error)

	// DecrementStock 执行 stock = stock - 1 WHERE voucher_id = ? AND stock > 0，返回影响行数。
	DecrementStock(ctx context.Context, voucherID int64) (int64, error)

	// InsertOrder 唯一索引冲突时返回 ErrDuplicateOrder。
	InsertOrder(ctx context.Context, order *VoucherOrder) error
}
