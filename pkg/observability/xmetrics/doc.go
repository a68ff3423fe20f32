// Package xmetrics 秒杀链路的统一观测接口（metrics + tracing）。
//
// 业务代码只依赖 Observer/Span；默认实现基于 OpenTelemetry。
//
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "seckill",
//		Operation: "admit",
//		Kind:      xmetrics.KindServer,
//	})
//	defer func() { span.End(xmetrics.Result{Err: err, Outcome: outcome}) }()
//
// 指标：
//   - seckill.operation.total
//   - seckill.operation.duration
//
// 属性：component / operation / status，Outcome 非空时附加 outcome，
// 用于区分 admitted、sold_out、duplicate 等业务结果。
package xmetrics
