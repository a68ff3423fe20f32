// Package xlog 基于 log/slog 的日志构建器。
//
// 特性：
//   - 动态级别：Logger.SetLevel 运行时生效，配置热更新时调用
//   - 订单上下文注入：EnrichHandler 从 ctx 提取 user_id、voucher_id、order_id、msg_id
//   - 文件轮转：SetRotation 基于 lumberjack
//   - 内部错误回调：Handler 写入失败时计数并通知，不向业务返回错误
//
// 业务组件统一接收 *slog.Logger，并使用 *Context 系列方法传递 ctx：
//
//	logger, cleanup, err := xlog.New().SetLevelString("info").SetFormat("json").Build()
//	defer cleanup()
//	ctx = xlog.WithOrder(ctx, xlog.OrderFields{UserID: 1, VoucherID: 2})
//	logger.InfoContext(ctx, "order admitted")
package xlog
