package xpool

import "errors"

var (
	// ErrNilHandler handler 为 nil。
	ErrNilHandler = errors.New("xpool: handler cannot be nil")

	// ErrPoolStopped 工作池已停止。
	ErrPoolStopped = errors.New("xpool: pool is stopped")

	// ErrQueueFull 队列已满，任务被拒绝。
	ErrQueueFull = errors.New("xpool: queue is full")

	// ErrInvalidWorkers worker 数量无效。
	ErrInvalidWorkers = errors.New("xpool: invalid worker count")

	// ErrInvalidQueueSize 队列长度无效。
	ErrInvalidQueueSize = errors.New("xpool: invalid queue size")
)
