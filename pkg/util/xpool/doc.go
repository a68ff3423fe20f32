// Package xpool 提供固定大小的泛型工作池。
//
// 工作池由固定数量的 worker goroutine 和一个有界队列组成。Submit 不阻塞：
// 队列满时立即返回 [ErrQueueFull]，由调用方决定降级方式。
// 单个任务 panic 会被恢复并记录日志，不影响其他任务。
//
//	pool, err := xpool.NewWorkerPool(10, 256, func(task func()) { task() },
//	    xpool.WithName("cache-rebuild"),
//	    xpool.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	pool.Start()
//	defer pool.Stop()
//
//	if err := pool.Submit(rebuild); err != nil {
//	    // 队列已满或已停止
//	}
//
// Stop 会等待已入队任务执行完毕。
package xpool
