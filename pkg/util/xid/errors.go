package xid

import "errors"

var (
	// ErrNilClient Redis 客户端为 nil。
	ErrNilClient = errors.New("xid: nil redis client")

	// ErrEmptyTag 业务标签为空。
	ErrEmptyTag = errors.New("xid: empty business tag")

	// ErrBeforeEpoch 当前时间早于生成器 epoch（时钟异常）。
	ErrBeforeEpoch = errors.New("xid: clock is before epoch")

	// ErrCounterOverflow 当日计数器超出 32 位。
	ErrCounterOverflow = errors.New("xid: daily counter overflow")

	// ErrOverTimeLimit sonyflake 时间分量溢出，不可恢复。
	ErrOverTimeLimit = errors.New("xid: time component overflow")

	// ErrNoPrivateAddress 未找到私有 IPv4 地址。
	ErrNoPrivateAddress = errors.New("xid: no private IP address found")

	// ErrInvalidConfig 配置参数无效。
	ErrInvalidConfig = errors.New("xid: invalid config")

	// ErrNilGenerator 生成器为 nil 或未通过构造函数创建。
	ErrNilGenerator = errors.New("xid: nil generator (use NewGenerator to create)")
)
