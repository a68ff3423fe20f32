package xlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ReplaceAttrFunc 属性替换函数，返回空 Key 的 Attr 表示删除。
type ReplaceAttrFunc func(groups []string, a slog.Attr) slog.Attr

// Rotation 文件轮转参数，零值字段使用默认值。
type Rotation struct {
	MaxSizeMB  int  `koanf:"max_size_mb"`
	MaxBackups int  `koanf:"max_backups"`
	MaxAgeDays int  `koanf:"max_age_days"`
	Compress   bool `koanf:"compress"`
}

const (
	defaultMaxSizeMB  = 500
	defaultMaxBackups = 7
	defaultMaxAgeDays = 30
)

// ErrEmptyFilename SetRotation 的文件名为空。
var ErrEmptyFilename = errors.New("xlog: rotation filename is empty")

// Builder 日志构建器，配置错误延迟到 Build 返回。
type Builder struct {
	output       io.Writer
	levelVar     *slog.LevelVar
	format       string
	addSource    bool
	enableEnrich bool
	replaceAttr  ReplaceAttrFunc
	closer       io.Closer
	onError      func(error)
	attrs        []slog.Attr
	err          error
}

// New 创建构建器：stderr、info、text、启用订单上下文注入。
func New() *Builder {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	return &Builder{
		output:       os.Stderr,
		levelVar:     levelVar,
		format:       "text",
		enableEnrich: true,
	}
}

// SetOutput 设置输出目标。
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w != nil {
		b.output = w
	}
	return b
}

// SetLevel 设置初始级别。
func (b *Builder) SetLevel(level Level) *Builder {
	b.levelVar.Set(slog.Level(level))
	return b
}

// SetLevelString 通过字符串设置级别。
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		b.err = err
		return b
	}
	return b.SetLevel(level)
}

// SetFormat text 或 json，空值按 text 处理。
func (b *Builder) SetFormat(format string) *Builder {
	normalized := strings.ToLower(strings.TrimSpace(format))
	switch normalized {
	case "":
		b.format = "text"
	case "text", "json":
		b.format = normalized
	default:
		b.err = fmt.Errorf("xlog: unknown format %q", format)
	}
	return b
}

// SetAddSource 是否输出源码位置。
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetEnrich 是否从 ctx 注入订单字段，默认启用。
func (b *Builder) SetEnrich(enable bool) *Builder {
	b.enableEnrich = enable
	return b
}

// SetReplaceAttr 设置属性替换函数，用于脱敏或重命名。
func (b *Builder) SetReplaceAttr(fn ReplaceAttrFunc) *Builder {
	b.replaceAttr = fn
	return b
}

// SetOnError Handler 写入失败时的回调，同步执行，应保持轻量。
func (b *Builder) SetOnError(fn func(error)) *Builder {
	b.onError = fn
	return b
}

// SetAttrs 每条日志都带的固定属性，如 service、instance。
func (b *Builder) SetAttrs(attrs ...slog.Attr) *Builder {
	b.attrs = append(b.attrs, attrs...)
	return b
}

// SetRotation 输出到 filename 并按大小轮转。父目录不存在时创建。
func (b *Builder) SetRotation(filename string, r Rotation) *Builder {
	if strings.TrimSpace(filename) == "" {
		b.err = ErrEmptyFilename
		return b
	}
	clean := filepath.Clean(filename)
	if err := os.MkdirAll(filepath.Dir(clean), 0o750); err != nil {
		b.err = fmt.Errorf("xlog: create log dir: %w", err)
		return b
	}
	lj := &lumberjack.Logger{
		Filename:   clean,
		MaxSize:    orDefault(r.MaxSizeMB, defaultMaxSizeMB),
		MaxBackups: orDefault(r.MaxBackups, defaultMaxBackups),
		MaxAge:     orDefault(r.MaxAgeDays, defaultMaxAgeDays),
		Compress:   r.Compress,
	}
	b.output = lj
	b.closer = lj
	return b
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Build 构建 Logger，返回幂等的 cleanup 用于关闭轮转文件。
func (b *Builder) Build() (*Logger, func() error, error) {
	if b.err != nil {
		return nil, nil, b.err
	}

	opts := &slog.HandlerOptions{
		Level:     b.levelVar,
		AddSource: b.addSource,
	}
	if b.replaceAttr != nil {
		opts.ReplaceAttr = b.replaceAttr
	}

	var handler slog.Handler
	if b.format == "json" {
		handler = slog.NewJSONHandler(b.output, opts)
	} else {
		handler = slog.NewTextHandler(b.output, opts)
	}
	if b.enableEnrich {
		handler = &EnrichHandler{base: handler}
	}
	if len(b.attrs) > 0 {
		handler = handler.WithAttrs(b.attrs)
	}

	errs := new(atomic.Uint64)
	handler = &errorHandler{
		base:      handler,
		onError:   b.onError,
		count:     errs,
		inHandler: new(atomic.Bool),
	}

	var once sync.Once
	closer := b.closer
	cleanup := func() error {
		var err error
		once.Do(func() {
			if closer != nil {
				err = closer.Close()
			}
		})
		return err
	}

	return &Logger{
		Logger:   slog.New(handler),
		levelVar: b.levelVar,
		errors:   errs,
	}, cleanup, nil
}

// Logger 带动态级别控制的 *slog.Logger。
type Logger struct {
	*slog.Logger
	levelVar *slog.LevelVar
	errors   *atomic.Uint64
}

// SetLevel 运行时调整级别，派生 logger 同步生效。
func (l *Logger) SetLevel(level Level) {
	l.levelVar.Set(slog.Level(level))
}

// GetLevel 当前级别。
func (l *Logger) GetLevel() Level {
	return Level(l.levelVar.Level())
}

// Slog 返回底层 *slog.Logger，供只接受标准库类型的组件使用。
func (l *Logger) Slog() *slog.Logger {
	return l.Logger
}

// ErrorCount Handler 写入失败次数。
func (l *Logger) ErrorCount() uint64 {
	return l.errors.Load()
}

// errorHandler 吞掉写入错误，计数并回调。回调内再次写日志失败不会递归。
type errorHandler struct {
	base      slog.Handler
	onError   func(error)
	count     *atomic.Uint64
	inHandler *atomic.Bool
}

func (h *errorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *errorHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.base.Handle(ctx, r)
	if err == nil {
		return nil
	}
	h.count.Add(1)
	if h.onError != nil && h.inHandler.CompareAndSwap(false, true) {
		defer h.inHandler.Store(false)
		func() {
			defer func() {
				if recover() != nil {
					h.count.Add(1)
				}
			}()
			h.onError(err)
		}()
	}
	return nil
}

func (h *errorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.base = h.base.WithAttrs(attrs)
	return &clone
}

func (h *errorHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.base = h.base.WithGroup(name)
	return &clone
}
