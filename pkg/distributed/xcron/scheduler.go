package xcron

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler 定时任务调度器。
type Scheduler struct {
	cron  *cron.Cron
	opts  *schedulerOptions
	stats *Stats

	// 立即执行的任务与停止时取消的上下文
	baseCtx    context.Context
	baseCancel context.CancelFunc
	immediate  sync.WaitGroup
	stopOnce   sync.Once
	stopped    context.Context
}

// New 创建调度器，默认不加锁、本地时区、分钟精度。
func New(opts ...SchedulerOption) *Scheduler {
	options := defaultSchedulerOptions()
	for _, opt := range opts {
		opt(options)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(options.location), cron.WithParser(options.parser)),
		opts:       options,
		stats:      newStats(),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// AddFunc 添加函数任务。
func (s *Scheduler) AddFunc(spec string, fn func(ctx context.Context) error, opts ...JobOption) (JobID, error) {
	if fn == nil {
		return 0, ErrNilJob
	}
	return s.AddJob(spec, JobFunc(fn), opts...)
}

// AddJob 添加任务。spec 如 "@every 30s"、"0 * * * *"。
func (s *Scheduler) AddJob(spec string, job Job, opts ...JobOption) (JobID, error) {
	if job == nil {
		return 0, ErrNilJob
	}
	jobOpts := defaultJobOptions()
	for _, opt := range opts {
		opt(jobOpts)
	}
	locker := jobOpts.locker
	if locker == nil {
		locker = s.opts.locker
	}

	w := &jobWrapper{
		job:      job,
		opts:     jobOpts,
		locker:   locker,
		logger:   s.opts.logger,
		observer: s.opts.observer,
		stats:    s.stats,
		baseCtx:  s.baseCtx,
	}
	id, err := s.cron.AddJob(spec, w)
	if err != nil {
		return 0, fmt.Errorf("xcron: add job %q: %w", spec, err)
	}

	if jobOpts.immediate {
		s.immediate.Go(w.Run)
	}
	return id, nil
}

// Remove 移除任务，正在执行的不受影响。
func (s *Scheduler) Remove(id JobID) {
	s.cron.Remove(id)
}

// Start 非阻塞启动。
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并取消任务 ctx，返回的 ctx 在运行中的任务全部结束后 Done。
func (s *Scheduler) Stop() context.Context {
	s.stopOnce.Do(func() {
		s.baseCancel()
		cronCtx := s.cron.Stop()
		stopped, done := context.WithCancel(context.Background())
		go func() {
			<-cronCtx.Done()
			s.immediate.Wait()
			done()
		}()
		s.stopped = stopped
	})
	return s.stopped
}

// Run 启动调度并阻塞到 ctx 取消，返回前等待运行中的任务结束。
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	<-s.Stop().Done()
	return nil
}

// Entries 已注册的任务。
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Stats 执行统计。
func (s *Scheduler) Stats() *Stats {
	return s.stats
}
