package xpool

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// WorkerPool 固定大小的工作池，并发安全。
type WorkerPool[T any] struct {
	workers   int
	queueSize int
	handler   func(T)
	opts      options

	queue chan T
	wg    sync.WaitGroup

	mu      sync.RWMutex // 保护 started/stopped 与 queue 关闭
	started bool
	stopped bool

	stats counters
}

type counters struct {
	submitted atomic.Uint64
	completed atomic.Uint64
	rejected  atomic.Uint64
	panicked  atomic.Uint64
}

// Stats 工作池运行统计。
type Stats struct {
	Submitted uint64
	Completed uint64
	Rejected  uint64
	Panicked  uint64
	Queued    int
}

// NewWorkerPool 创建工作池，需要调用 Start 启动 worker。
func NewWorkerPool[T any](workers, queueSize int, handler func(T), opts ...Option) (*WorkerPool[T], error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if workers < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}
	if queueSize < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQueueSize, queueSize)
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return &WorkerPool[T]{
		workers:   workers,
		queueSize: queueSize,
		handler:   handler,
		opts:      o,
		queue:     make(chan T, queueSize),
	}, nil
}

// Start 启动 worker，重复调用无副作用。
func (p *WorkerPool[T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.wg.Add(p.workers)
	for range p.workers {
		go p.worker()
	}
}

func (p *WorkerPool[T]) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(task)
	}
}

func (p *WorkerPool[T]) run(task T) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.panicked.Add(1)
			p.opts.logger.Error("xpool: task panic recovered",
				slog.String("pool", p.opts.name),
				slog.Any("panic", r),
			)
			return
		}
		p.stats.completed.Add(1)
	}()
	p.handler(task)
}

// Submit 非阻塞提交任务。队列满返回 ErrQueueFull，已停止返回 ErrPoolStopped。
func (p *WorkerPool[T]) Submit(task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- task:
		p.stats.submitted.Add(1)
		return nil
	default:
		p.stats.rejected.Add(1)
		p.opts.logger.Warn("xpool: queue full, task rejected",
			slog.String("pool", p.opts.name),
			slog.Int("queue_size", p.queueSize),
		)
		return ErrQueueFull
	}
}

// Stop 停止接收新任务并等待已入队任务完成，重复调用无副作用。
// 未 Start 的工作池在 Stop 时丢弃队列中的任务。
func (p *WorkerPool[T]) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats 返回运行统计快照。
func (p *WorkerPool[T]) Stats() Stats {
	return Stats{
		Submitted: p.stats.submitted.Load(),
		Completed: p.stats.completed.Load(),
		Rejected:  p.stats.rejected.Load(),
		Panicked:  p.stats.panicked.Load(),
		Queued:    len(p.queue),
	}
}

// Workers 返回 worker 数量。
func (p *WorkerPool[T]) Workers() int {
	return p.workers
}

// QueueSize 返回队列容量。
func (p *WorkerPool[T]) QueueSize() int {
	return p.queueSize
}
