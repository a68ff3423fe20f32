// Package xcron 基于 robfig/cron/v3 的定时任务调度，支持分布式锁互斥。
//
// 多副本部署时，为任务设置名称并配置 Locker，同一时刻只有拿到锁的实例执行：
//
//	factory, _ := xdlock.NewRedisFactory(rdb)
//	locker, _ := xcron.NewXdlockLocker(factory)
//	s := xcron.New(xcron.WithLocker(locker), xcron.WithLogger(logger))
//	s.AddFunc("@every 30s", sweep, xcron.WithName("pending-sweep"))
//	err := s.Run(ctx) // 阻塞直到 ctx 取消，返回前等待运行中的任务
//
// 锁持有期间按 TTL/3 自动续期，续期失败会取消任务 ctx。
// 未获取到锁的一次调度计为 skip，不视为失败。
package xcron
