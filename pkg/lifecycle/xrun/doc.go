// Package xrun 管理进程内长期运行组件的并发启动与协调关闭。
//
// 秒杀进程由多个组件组成：订单消费者池、待处理消息清扫任务、
// 配置监听等。任一组件返回错误或收到系统信号时，其余组件统一取消。
//
//	err := xrun.RunServices(ctx, worker, scheduler)
//	if errors.Is(err, xrun.ErrSignal) {
//	    // 正常退出
//	}
//
// 基于 [golang.org/x/sync/errgroup] 与 context.WithCancelCause。
package xrun
