package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xseckill/internal/app"
	"github.com/omeyang/xseckill/internal/config"
	"github.com/omeyang/xseckill/internal/domain"
	"github.com/omeyang/xseckill/internal/seckill"
	"github.com/omeyang/xseckill/pkg/lifecycle/xrun"
)

// exitError 输出已完成，只需要非零退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit %d", e.code) }

// usageError 参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "运行履约 worker 与定时任务",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, src, err := config.Load(cmd.String("config"))
			if err != nil {
				return err
			}
			logger, cleanup, err := app.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			a, err := app.Build(ctx, cfg, app.WithLogger(logger), app.WithSource(src))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			err = a.Run(ctx)
			if errors.Is(err, xrun.ErrSignal) {
				return nil
			}
			return err
		},
	}
}

// oneShot 一次性命令的装配：不运行 worker 与定时任务。
func oneShot(ctx context.Context, cmd *cli.Command, fn func(*app.App) error) error {
	cfg, _, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	cfg.Cron.Enabled = false
	cfg.Worker.Enabled = false

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "发布或补货秒杀券",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "voucher", Aliases: []string{"v"}, Usage: "券 id", Required: true},
			&cli.Int64Flag{Name: "stock", Aliases: []string{"s"}, Usage: "库存", Required: true},
			&cli.StringFlag{Name: "begin", Usage: "开始时间（RFC3339），为空表示不限"},
			&cli.StringFlag{Name: "end", Usage: "结束时间（RFC3339），为空表示不限"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			begin, err := parseTime(cmd.String("begin"))
			if err != nil {
				return err
			}
			end, err := parseTime(cmd.String("end"))
			if err != nil {
				return err
			}
			v := &domain.SeckillVoucher{
				VoucherID: cmd.Int64("voucher"),
				Stock:     cmd.Int64("stock"),
				BeginTime: begin,
				EndTime:   end,
			}
			if err := v.Validate(); err != nil {
				return &usageError{msg: err.Error()}
			}
			return oneShot(ctx, cmd, func(a *app.App) error {
				if err := a.Admission.PublishVoucher(ctx, v); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.Root().Writer, "published voucher=%d stock=%d\n", v.VoucherID, v.Stock)
				return err
			})
		},
	}
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &usageError{msg: fmt.Sprintf("invalid time %q: want RFC3339", s)}
	}
	return t, nil
}

func admitCommand() *cli.Command {
	return &cli.Command{
		Name:  "admit",
		Usage: "以指定用户抢购一次",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "voucher", Aliases: []string{"v"}, Usage: "券 id", Required: true},
			&cli.Int64Flag{Name: "user", Aliases: []string{"u"}, Usage: "用户 id", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			voucherID, userID := cmd.Int64("voucher"), cmd.Int64("user")
			if voucherID <= 0 || userID <= 0 {
				return &usageError{msg: "voucher and user must be positive"}
			}
			return oneShot(ctx, cmd, func(a *app.App) error {
				res, err := a.Admission.Admit(ctx, voucherID, userID)
				if err != nil {
					return err
				}
				w := cmd.Root().Writer
				if res.Status != seckill.Admitted {
					fmt.Fprintf(w, "rejected: %s\n", res.Status)
					return &exitError{code: 1}
				}
				_, err = fmt.Fprintf(w, "admitted order=%d\n", res.OrderID)
				return err
			})
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "打印版本",
		Action: func(_ context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprintf(cmd.Root().Writer, "seckilld %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
			return err
		},
	}
}
