// Package observability 可观测性子包。
//
//   - xlog: 基于 log/slog 的日志构建器，注入订单上下文，支持文件轮转
//   - xmetrics: 统一观测接口（OpenTelemetry 指标 + 追踪）
package observability
