package app

import (
	"log/slog"

	"github.com/omeyang/xseckill/internal/config"
	"github.com/omeyang/xseckill/pkg/observability/xlog"
)

// NewLogger 按日志配置构建，File 非空时写文件并轮转。
func NewLogger(cfg config.LogConfig, attrs ...slog.Attr) (*xlog.Logger, func() error, error) {
	b := xlog.New().
		SetLevelString(cfg.Level).
		SetFormat(cfg.Format).
		SetAttrs(attrs...)
	if cfg.File != "" {
		b = b.SetRotation(cfg.File, cfg.Rotation)
	}
	return b.Build()
}
