package xcron

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
)

// JobID 任务标识，即 cron.EntryID。
type JobID = cron.EntryID

// Job 定时任务，应响应 ctx 取消。
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc 函数适配器。
type JobFunc func(ctx context.Context) error

// Run 实现 Job。
func (f JobFunc) Run(ctx context.Context) error {
	return f(ctx)
}

var (
	// ErrNilJob 任务为 nil。
	ErrNilJob = errors.New("xcron: job cannot be nil")

	// ErrNilFactory xdlock.Factory 为 nil。
	ErrNilFactory = errors.New("xcron: xdlock factory cannot be nil")

	// ErrLockNotHeld 续期或释放时锁已丢失。
	ErrLockNotHeld = errors.New("xcron: lock not held by this instance")
)
