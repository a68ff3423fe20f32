package xid

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/sony/sonyflake/v2"
)

// Generator 基于 sonyflake 的进程内 ID 生成器，不访问外部存储。
type Generator struct {
	sf *sonyflake.Sonyflake
}

// NewGenerator 创建 Generator。
func NewGenerator(opts ...Option) (*Generator, error) {
	cfg := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	machineIDFn := cfg.machineID
	if machineIDFn == nil {
		machineIDFn = DefaultMachineID
	}

	settings := sonyflake.Settings{
		MachineID: func() (int, error) {
			id, err := machineIDFn()
			return int(id), err
		},
	}
	if cfg.checkMachineID != nil {
		settings.CheckMachineID = func(id int) bool {
			return cfg.checkMachineID(uint16(id))
		}
	}

	sf, err := sonyflake.New(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Generator{sf: sf}, nil
}

// New 生成新的 int64 ID。
func (g *Generator) New() (int64, error) {
	if g == nil || g.sf == nil {
		return 0, ErrNilGenerator
	}
	id, err := g.sf.NextID()
	if err != nil {
		if errors.Is(err, sonyflake.ErrOverTimeLimit) {
			return 0, fmt.Errorf("%w: %w", ErrOverTimeLimit, err)
		}
		return 0, err
	}
	return id, nil
}

// NewString 生成 base36 编码的 ID。
func (g *Generator) NewString() (string, error) {
	id, err := g.New()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 36), nil
}
