package xpool

import "log/slog"

// Option 配置 WorkerPool。
type Option func(*options)

type options struct {
	logger *slog.Logger
	name   string
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		name:   "xpool",
	}
}

// WithLogger 设置日志记录器。nil 保持默认。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 设置工作池名称，出现在日志中。
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}
