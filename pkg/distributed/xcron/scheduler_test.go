package xcron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xseckill/pkg/distributed/xdlock"
	"github.com/omeyang/xseckill/pkg/resilience/xretry"
)

type stubLocker struct {
	handle LockHandle
	err    error
	calls  atomic.Int32
}

func (l *stubLocker) TryLock(context.Context, string, time.Duration) (LockHandle, error) {
	l.calls.Add(1)
	return l.handle, l.err
}

type stubHandle struct {
	renewErr error
	unlocked atomic.Bool
}

func (h *stubHandle) Unlock(context.Context) error { h.unlocked.Store(true); return nil }
func (h *stubHandle) Renew(context.Context) error  { return h.renewErr }

func newXdlockLocker(t *testing.T) *XdlockLocker {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	factory, err := xdlock.NewRedisFactory(rdb)
	require.NoError(t, err)
	locker, err := NewXdlockLocker(factory)
	require.NoError(t, err)
	return locker
}

func stop(t *testing.T, s *Scheduler) {
	t.Helper()
	select {
	case <-s.Stop().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_AddFunc_Validation(t *testing.T) {
	s := New()
	defer stop(t, s)

	_, err := s.AddFunc("@every 1m", nil)
	assert.ErrorIs(t, err, ErrNilJob)

	_, err = s.AddJob("@every 1m", nil)
	assert.ErrorIs(t, err, ErrNilJob)

	_, err = s.AddFunc("not a spec", func(context.Context) error { return nil })
	assert.Error(t, err)

	id, err := s.AddFunc("@every 1m", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Len(t, s.Entries(), 1)
	s.Remove(id)
	assert.Empty(t, s.Entries())
}

func TestScheduler_Immediate_RunsOnceAndRecordsStats(t *testing.T) {
	s := New()
	var runs atomic.Int32

	_, err := s.AddFunc("@every 1h", func(context.Context) error {
		runs.Add(1)
		return nil
	}, WithName("warmup"), WithImmediate())
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	stop(t, s)

	assert.Equal(t, int64(1), s.Stats().SuccessCount())
	js, ok := s.Stats().Job("warmup")
	require.True(t, ok)
	assert.Equal(t, int64(1), js.Executions)
	assert.NoError(t, js.LastError)
}

func TestScheduler_Run_WhenLockHeldElsewhere_Skips(t *testing.T) {
	// Given: 锁始终被其他实例持有
	locker := &stubLocker{}
	s := New(WithLocker(locker))
	var runs atomic.Int32

	// When: 立即执行一次
	_, err := s.AddFunc("@every 1h", func(context.Context) error {
		runs.Add(1)
		return nil
	}, WithName("pending-sweep"), WithImmediate())
	require.NoError(t, err)
	waitFor(t, func() bool { return s.Stats().SkipCount() == 1 })
	stop(t, s)

	// Then: 任务未执行，计为 skip
	assert.Zero(t, runs.Load())
	assert.Equal(t, int64(1), s.Stats().SkipCount())
	assert.Zero(t, s.Stats().TotalExecutions())
}

func TestScheduler_Run_WhenLockServiceFails_Skips(t *testing.T) {
	locker := &stubLocker{err: errors.New("redis down")}
	s := New(WithLocker(locker))

	_, err := s.AddFunc("@every 1h", func(context.Context) error {
		t.Error("job must not run without the lock")
		return nil
	}, WithName("pending-sweep"), WithImmediate())
	require.NoError(t, err)
	waitFor(t, func() bool { return s.Stats().SkipCount() == 1 })
	stop(t, s)

	assert.Zero(t, s.Stats().TotalExecutions())
}

func TestScheduler_Run_WithoutName_DoesNotLock(t *testing.T) {
	locker := &stubLocker{}
	s := New(WithLocker(locker))
	var runs atomic.Int32

	_, err := s.AddFunc("@every 1h", func(context.Context) error {
		runs.Add(1)
		return nil
	}, WithImmediate())
	require.NoError(t, err)
	waitFor(t, func() bool { return s.Stats().TotalExecutions() == 1 })
	stop(t, s)

	assert.Equal(t, int32(1), runs.Load())
	assert.Zero(t, locker.calls.Load())
}

func TestScheduler_Run_ReleasesLockAfterJob(t *testing.T) {
	handle := &stubHandle{}
	s := New(WithLocker(&stubLocker{handle: handle}))

	_, err := s.AddFunc("@every 1h", func(context.Context) error {
		return errors.New("boom")
	}, WithName("warmup"), WithImmediate())
	require.NoError(t, err)
	waitFor(t, func() bool { return s.Stats().FailureCount() == 1 })
	stop(t, s)

	assert.True(t, handle.unlocked.Load())
	assert.Equal(t, int64(1), s.Stats().FailureCount())
	js, _ := s.Stats().Job("warmup")
	assert.EqualError(t, js.LastError, "boom")
}

func TestScheduler_Run_WhenRenewFails_CancelsJob(t *testing.T) {
	// Given: 续期总是失败的锁
	handle := &stubHandle{renewErr: ErrLockNotHeld}
	s := New(WithLocker(&stubLocker{handle: handle}))

	// When: 任务阻塞等待 ctx
	canceled := make(chan struct{})
	_, err := s.AddFunc("@every 1h", func(ctx context.Context) error {
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	}, WithName("long"), WithLockTTL(MinLockTTL), WithImmediate())
	require.NoError(t, err)

	// Then: 第一次续期（1s 后）失败即取消任务
	select {
	case <-canceled:
	case <-time.After(3 * time.Second):
		t.Fatal("job was not canceled after renewal failure")
	}
	stop(t, s)
	assert.True(t, handle.unlocked.Load())
}

func TestScheduler_Run_RetriesFailedJob(t *testing.T) {
	s := New()
	var attempts atomic.Int32

	_, err := s.AddFunc("@every 1h", func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRetry(xretry.Policy{Attempts: 3, Delay: time.Millisecond}), WithImmediate())
	require.NoError(t, err)
	waitFor(t, func() bool { return s.Stats().TotalExecutions() == 1 })
	stop(t, s)

	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, int64(1), s.Stats().SuccessCount())
}

func TestScheduler_Run_WithTimeout(t *testing.T) {
	s := New()
	var got atomic.Value

	_, err := s.AddFunc("@every 1h", func(ctx context.Context) error {
		<-ctx.Done()
		got.Store(ctx.Err())
		return ctx.Err()
	}, WithTimeout(20*time.Millisecond), WithImmediate())
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return got.Load() != nil }, time.Second, 5*time.Millisecond)
	stop(t, s)
	assert.ErrorIs(t, got.Load().(error), context.DeadlineExceeded)
}

func TestScheduler_XdlockLocker_OnlyOneInstanceRuns(t *testing.T) {
	// Given: 两个调度器共享同一个 Redis 锁
	locker := newXdlockLocker(t)
	a := New(WithLocker(locker))
	b := New(WithLocker(locker))

	release := make(chan struct{})
	var runs atomic.Int32
	job := func(context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}

	// When: A 持锁执行中，B 立即执行同名任务
	_, err := a.AddFunc("@every 1h", job, WithName("pending-sweep"), WithImmediate())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err = b.AddFunc("@every 1h", job, WithName("pending-sweep"), WithImmediate())
	require.NoError(t, err)
	waitFor(t, func() bool { return b.Stats().SkipCount() == 1 })
	stop(t, b)

	// Then: B 跳过
	assert.Equal(t, int64(1), b.Stats().SkipCount())
	close(release)
	stop(t, a)
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, int64(1), a.Stats().SuccessCount())
}

func TestScheduler_Run_StopsOnContextCancel(t *testing.T) {
	s := New(WithSeconds())
	var runs atomic.Int32
	_, err := s.AddFunc("* * * * * *", func(context.Context) error {
		runs.Add(1)
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNewXdlockLocker_NilFactory(t *testing.T) {
	_, err := NewXdlockLocker(nil)
	assert.ErrorIs(t, err, ErrNilFactory)
}
