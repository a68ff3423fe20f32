package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/omeyang/xseckill/internal/config"
	"github.com/omeyang/xseckill/pkg/config/xconf"
	"github.com/omeyang/xseckill/pkg/lifecycle/xrun"
	"github.com/omeyang/xseckill/pkg/observability/xlog"
)

// Run 运行 worker、cron、售罄标记同步与配置监视，阻塞到 ctx 取消或收到信号。
// 收到信号时返回 *xrun.SignalError，调用方可用 errors.Is(err, xrun.ErrSignal) 判断。
func (a *App) Run(ctx context.Context) error {
	logger := a.Logger.Slog()
	services := []xrun.Service{
		xrun.Named{Name: "soldout-sync", Service: xrun.ServiceFunc(a.Admission.SyncSoldOut)},
	}

	if a.Config.Worker.Enabled {
		services = append(services, xrun.Named{Name: "worker", Service: a.Worker})
	}
	if a.Config.Cron.Enabled {
		services = append(services, xrun.Named{Name: "cron", Service: a.Cron})
	}
	if a.opts.source != nil {
		w, err := xconf.Watch(a.opts.source, a.onReload)
		switch {
		case err == nil:
			services = append(services, xrun.Named{Name: "config-watch", Service: w})
		case errors.Is(err, xconf.ErrNotWatchable):
			logger.DebugContext(ctx, "app: config source not watchable")
		default:
			return err
		}
	}
	opts := append([]xrun.Option{xrun.WithName("seckilld"), xrun.WithLogger(logger)}, a.opts.runOpts...)
	return xrun.RunServicesWithOptions(ctx, opts, services...)
}

// onReload 热重载只调整日志级别，其余配置需要重启生效。
func (a *App) onReload(src xconf.Config, err error) {
	logger := a.Logger.Slog()
	if err != nil {
		logger.Warn("app: config reload failed, keeping previous", xlog.Err(err))
		return
	}
	cfg, err := config.FromSource(src)
	if err != nil {
		logger.Warn("app: reloaded config invalid, ignored", xlog.Err(err))
		return
	}
	level, err := xlog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return
	}
	if level != a.Logger.GetLevel() {
		a.Logger.SetLevel(level)
		logger.Info("app: log level changed", slog.String("level", level.String()))
	}
}
