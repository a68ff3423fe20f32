package app

import (
	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xseckill/pkg/config/xconf"
	"github.com/omeyang/xseckill/pkg/lifecycle/xrun"
	"github.com/omeyang/xseckill/pkg/observability/xlog"
	"github.com/omeyang/xseckill/pkg/observability/xmetrics"
)

type options struct {
	logger   *xlog.Logger
	redis    redis.UniversalClient
	observer xmetrics.Observer
	source   xconf.Config
	runOpts  []xrun.Option
}

// Option 装配选项。
type Option func(*options)

// WithLogger 使用已构建的日志，热重载会调整它的级别。
// 未设置时按配置构建。
func WithLogger(l *xlog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRedis 使用外部 Redis 客户端，App 不负责关闭它。
func WithRedis(rdb redis.UniversalClient) Option {
	return func(o *options) { o.redis = rdb }
}

// WithObserver 设置指标与追踪，默认使用全局 OTel provider。
func WithObserver(obs xmetrics.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithSource 配置来源，Run 会监视它的文件并在变更时调整日志级别。
func WithSource(src xconf.Config) Option {
	return func(o *options) { o.source = src }
}

// WithRunOptions 传给 xrun，例如测试中关闭信号处理。
func WithRunOptions(opts ...xrun.Option) Option {
	return func(o *options) { o.runOpts = append(o.runOpts, opts...) }
}
