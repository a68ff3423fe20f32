package mysql

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/omeyang/xseckill/internal/domain"
)

func newTestRepo(t *testing.T) (*Repository, *gorm.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{
		Driver:       DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "seckill.db"),
		MaxOpenConns: 1,
		AutoMigrate:  true,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	require.NoError(t, Ping(ctx, db))
	return NewRepository(db), db
}

func seedVoucher(t *testing.T, r *Repository, id, stock int64) {
	t.Helper()
	now := time.Now()
	require.NoError(t, r.CreateVoucher(context.Background(), &domain.SeckillVoucher{
		VoucherID: id, Stock: stock, BeginTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
	}))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestRepository_FindVoucher_WhenAbsent_ReturnsNil(t *testing.T) {
	r, _ := newTestRepo(t)

	v, err := r.FindVoucher(context.Background(), 404)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRepository_CreateVoucher_Upserts(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	seedVoucher(t, r, 1, 100)
	seedVoucher(t, r, 1, 5)

	v, err := r.FindVoucher(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(5), v.Stock)
}

func TestOrderTx_DecrementStock_StopsAtZero(t *testing.T) {
	// Given: 库存为 1
	r, _ := newTestRepo(t)
	ctx := context.Background()
	seedVoucher(t, r, 1, 1)

	// When: 连续扣减两次
	var first, second int64
	require.NoError(t, r.InTx(ctx, func(ctx context.Context, tx domain.OrderTx) error {
		var err error
		if first, err = tx.DecrementStock(ctx, 1); err != nil {
			return err
		}
		second, err = tx.DecrementStock(ctx, 1)
		return err
	}))

	// Then: 第二次影响 0 行，库存不为负
	assert.Equal(t, int64(1), first)
	assert.Zero(t, second)
	v, err := r.FindVoucher(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, v.Stock)
}

func TestOrderTx_InsertOrder_WhenDuplicateUserVoucher_ReturnsErrDuplicateOrder(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	seedVoucher(t, r, 1, 10)

	insert := func(orderID int64) error {
		return r.InTx(ctx, func(ctx context.Context, tx domain.OrderTx) error {
			return tx.InsertOrder(ctx, domain.OrderIntent{OrderID: orderID, UserID: 9, VoucherID: 1}.Order())
		})
	}
	require.NoError(t, insert(100))

	err := insert(101)
	assert.ErrorIs(t, err, domain.ErrDuplicateOrder)

	n, err := r.CountOrdersByVoucher(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRepository_InTx_RollsBackOnError(t *testing.T) {
	// Given: 事务内先扣减再失败
	r, _ := newTestRepo(t)
	ctx := context.Background()
	seedVoucher(t, r, 1, 3)
	boom := errors.New("boom")

	err := r.InTx(ctx, func(ctx context.Context, tx domain.OrderTx) error {
		if _, err := tx.DecrementStock(ctx, 1); err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, &domain.VoucherOrder{ID: 1, UserID: 1, VoucherID: 1, Status: domain.OrderStatusUnpaid}); err != nil {
			return err
		}
		return boom
	})

	// Then: 扣减与插入都被回滚
	assert.ErrorIs(t, err, boom)
	v, err := r.FindVoucher(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v.Stock)
	o, err := r.FindOrder(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestOrderTx_CountOrders(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	seedVoucher(t, r, 1, 10)
	require.NoError(t, r.InTx(ctx, func(ctx context.Context, tx domain.OrderTx) error {
		return tx.InsertOrder(ctx, domain.OrderIntent{OrderID: 5, UserID: 2, VoucherID: 1}.Order())
	}))

	require.NoError(t, r.InTx(ctx, func(ctx context.Context, tx domain.OrderTx) error {
		n, err := tx.CountOrders(ctx, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		n, err = tx.CountOrders(ctx, 3, 1)
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	}))

	o, err := r.FindOrder(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, int64(2), o.UserID)
}

func TestOrderTx_DecrementStock_ConcurrentNeverOversells(t *testing.T) {
	// Given: 库存 5，20 个并发事务
	r, _ := newTestRepo(t)
	ctx := context.Background()
	seedVoucher(t, r, 1, 5)

	var ok atomic.Int64
	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			err := r.InTx(ctx, func(ctx context.Context, tx domain.OrderTx) error {
				n, err := tx.DecrementStock(ctx, 1)
				if err != nil {
					return err
				}
				if n == 0 {
					return domain.ErrStockExhausted
				}
				return nil
			})
			if err == nil {
				ok.Add(1)
			}
		})
	}
	wg.Wait()

	// Then: 恰好 5 次成功
	assert.Equal(t, int64(5), ok.Load())
	v, err := r.FindVoucher(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, v.Stock)
}
