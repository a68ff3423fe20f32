package seckill

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xseckill/internal/domain"
	"github.com/omeyang/xseckill/internal/infra/database/mysql"
	"github.com/omeyang/xseckill/pkg/distributed/xdlock"
	"github.com/omeyang/xseckill/pkg/storage/xcache"
	"github.com/omeyang/xseckill/pkg/util/xid"
)

// fixture 一套进程内的秒杀依赖：miniredis + SQLite。
type fixture struct {
	mr        *miniredis.Miniredis
	rdb       *redis.Client
	repo      *mysql.Repository
	locks     *xdlock.RedisFactory
	cache     *xcache.Client
	flags     *xcache.Memory
	catalog   *VoucherCatalog
	admission *Admission
	queue     *StreamQueue
	now       time.Time
}

func newFixture(t *testing.T, admissionOpts ...AdmissionOption) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	f.mr = miniredis.RunT(t)
	f.rdb = redis.NewClient(&redis.Options{Addr: f.mr.Addr()})
	t.Cleanup(func() { _ = f.rdb.Close() })

	db, err := mysql.Open(ctx, mysql.Config{
		Driver:       mysql.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "seckill.db"),
		MaxOpenConns: 1,
		AutoMigrate:  true,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mysql.Close(db) })
	f.repo = mysql.NewRepository(db)

	f.locks, err = xdlock.NewRedisFactory(f.rdb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.locks.Close() })

	f.cache, err = xcache.NewClient(f.rdb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.cache.Close() })

	f.flags, err = xcache.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.flags.Close() })

	f.catalog, err = NewVoucherCatalog(f.cache, f.repo, time.Minute, time.Minute)
	require.NoError(t, err)

	ids, err := xid.NewRedisGenerator(f.rdb)
	require.NoError(t, err)

	opts := append([]AdmissionOption{
		WithCatalog(f.catalog),
		WithSoldOutCache(f.flags, time.Minute),
		WithClock(func() time.Time { return f.now }),
	}, admissionOpts...)
	f.admission, err = NewAdmission(f.rdb, ids, opts...)
	require.NoError(t, err)

	f.queue, err = NewStreamQueue(f.rdb, "", "", "", nil)
	require.NoError(t, err)
	require.NoError(t, f.queue.EnsureGroup(ctx))
	return f
}

func (f *fixture) publish(t *testing.T, voucherID, stock int64) {
	t.Helper()
	require.NoError(t, f.admission.PublishVoucher(context.Background(), &domain.SeckillVoucher{
		VoucherID: voucherID,
		Stock:     stock,
		BeginTime: f.now.Add(-time.Hour),
		EndTime:   f.now.Add(time.Hour),
	}))
}

func (f *fixture) newWorker(t *testing.T, opts ...WorkerOption) *Worker {
	t.Helper()
	base := []WorkerOption{
		WithBlock(50 * time.Millisecond),
		WithIdleSleep(5 * time.Millisecond),
		WithErrorSleep(10 * time.Millisecond),
	}
	w, err := NewWorker(f.queue, f.repo, f.locks, append(base, opts...)...)
	require.NoError(t, err)
	return w
}

// start 在后台运行 worker，测试结束时取消并等待退出。
func (f *fixture) start(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("worker did not stop")
		}
	})
}

func (f *fixture) pending(t *testing.T) int64 {
	t.Helper()
	n, err := f.queue.Pending(context.Background())
	require.NoError(t, err)
	return n
}

func (f *fixture) orders(t *testing.T, voucherID int64) int64 {
	t.Helper()
	n, err := f.repo.CountOrdersByVoucher(context.Background(), voucherID)
	require.NoError(t, err)
	return n
}

func (f *fixture) dbStock(t *testing.T, voucherID int64) int64 {
	t.Helper()
	v, err := f.repo.FindVoucher(context.Background(), voucherID)
	require.NoError(t, err)
	require.NotNil(t, v)
	return v.Stock
}

func (f *fixture) enqueue(t *testing.T, values map[string]any) string {
	t.Helper()
	id, err := f.rdb.XAdd(context.Background(), &redis.XAddArgs{Stream: f.queue.Stream(), Values: values}).Result()
	require.NoError(t, err)
	return id
}
