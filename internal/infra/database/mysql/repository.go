package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/omeyang/xseckill/internal/domain"
)

// Repository 实现 domain.Repository。
type Repository struct {
	db *gorm.DB
}

// NewRepository 创建仓储。
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindVoucher(ctx context.Context, voucherID int64) (*domain.SeckillVoucher, error) {
	var v domain.SeckillVoucher
	err := r.db.WithContext(ctx).Where("voucher_id = ?", voucherID).Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mysql: find voucher %d: %w", voucherID, err)
	}
	return &v, nil
}

// CreateVoucher 主键冲突时覆盖库存与时间窗口。
func (r *Repository) CreateVoucher(ctx context.Context, v *domain.SeckillVoucher) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "voucher_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stock", "begin_time", "end_time", "updated_at"}),
	}).Create(v).Error
	if err != nil {
		return fmt.Errorf("mysql: create voucher %d: %w", v.VoucherID, err)
	}
	return nil
}

func (r *Repository) FindOrder(ctx context.Context, orderID int64) (*domain.VoucherOrder, error) {
	var o domain.VoucherOrder
	err := r.db.WithContext(ctx).Where("id = ?", orderID).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mysql: find order %d: %w", orderID, err)
	}
	return &o, nil
}

func (r *Repository) CountOrdersByVoucher(ctx context.Context, voucherID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.VoucherOrder{}).
		Where("voucher_id = ?", voucherID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("mysql: count orders: %w", err)
	}
	return n, nil
}

func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.OrderTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &orderTx{db: tx})
	})
}

type orderTx struct {
	db *gorm.DB
}

func (t *orderTx) CountOrders(ctx context.Context, userID, voucherID int64) (int64, error) {
	var n int64
	err := t.db.WithContext(ctx).Model(&domain.VoucherOrder{}).
		Where("user_id = ? AND voucher_id = ?", userID, voucherID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("mysql: count orders: %w", err)
	}
	return n, nil
}

// DecrementStock 条件扣减，stock > 0 防止超卖。
func (t *orderTx) DecrementStock(ctx context.Context, voucherID int64) (int64, error) {
	res := t.db.WithContext(ctx).Model(&domain.SeckillVoucher{}).
		Where("voucher_id = ? AND stock > 0", voucherID).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("mysql: decrement stock %d: %w", voucherID, res.Error)
	}
	return res.RowsAffected, nil
}

func (t *orderTx) InsertOrder(ctx context.Context, order *domain.VoucherOrder) error {
	err := t.db.WithContext(ctx).Create(order).Error
	if isDuplicate(err) {
		return fmt.Errorf("%w: order %d", domain.ErrDuplicateOrder, order.ID)
	}
	if err != nil {
		return fmt.Errorf("mysql: insert order %d: %w", order.ID, err)
	}
	return nil
}

// isDuplicate TranslateError 覆盖 MySQL 1062，文本匹配兜底未翻译的驱动。
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

var _ domain.Repository = (*Repository)(nil)
