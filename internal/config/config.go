package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/omeyang/xseckill/internal/infra/database/mysql"
	"github.com/omeyang/xseckill/pkg/config/xconf"
	"github.com/omeyang/xseckill/pkg/observability/xlog"
	"github.com/omeyang/xseckill/pkg/resilience/xlimit"
)

// EnvPrefix 环境变量覆盖前缀。
const EnvPrefix = "SECKILL_"

// ErrInvalid 配置校验失败。
var ErrInvalid = errors.New("config: invalid")

// Config 服务配置。
type Config struct {
	Redis   RedisConfig   `koanf:"redis"`
	MySQL   mysql.Config  `koanf:"mysql"`
	Seckill SeckillConfig `koanf:"seckill"`
	Cache   CacheConfig   `koanf:"cache"`
	Worker  WorkerConfig  `koanf:"worker"`
	Limit   LimitConfig   `koanf:"limit"`
	Log     LogConfig     `koanf:"log"`
	Cron    CronConfig    `koanf:"cron"`
}

// RedisConfig 单节点或哨兵。准入脚本跨多个 key，不支持 Cluster。
type RedisConfig struct {
	Addr          string        `koanf:"addr"`
	MasterName    string        `koanf:"master_name"`
	SentinelAddrs []string      `koanf:"sentinel_addrs"`
	Password      string        `koanf:"password"`
	DB            int           `koanf:"db"`
	PoolSize      int           `koanf:"pool_size"`
	DialTimeout   time.Duration `koanf:"dial_timeout"`
	// StartupAttempts 启动时 PING 的重试次数。
	StartupAttempts int `koanf:"startup_attempts"`
}

// SeckillConfig 准入与队列。
type SeckillConfig struct {
	Stream     string        `koanf:"stream"`
	DeadStream string        `koanf:"dead_stream"`
	Group      string        `koanf:"group"`
	SoldOutTTL time.Duration `koanf:"sold_out_ttl"`
	// WarmVouchers 定时预热热点缓存的券 id。
	WarmVouchers []int64 `koanf:"warm_vouchers"`
}

// CacheConfig 券缓存。
type CacheConfig struct {
	TTL            time.Duration `koanf:"ttl"`
	LogicalTTL     time.Duration `koanf:"logical_ttl"`
	NullTTL        time.Duration `koanf:"null_ttl"`
	LockTTL        time.Duration `koanf:"lock_ttl"`
	RebuildWorkers int           `koanf:"rebuild_workers"`
	RebuildQueue   int           `koanf:"rebuild_queue"`
	LocalMaxCost   int64         `koanf:"local_max_cost"`
}

// WorkerConfig 履约 worker。Consumer 在同一消费组内必须唯一且跨重启稳定，
// 默认取主机名；为空时生成随机名称，此时上次遗留的 pending 消息只能由 Sweep 认领。
type WorkerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Consumer        string        `koanf:"consumer"`
	Consumers       int           `koanf:"consumers"`
	Batch           int64         `koanf:"batch"`
	Block           time.Duration `koanf:"block"`
	IdleSleep       time.Duration `koanf:"idle_sleep"`
	ErrorSleep      time.Duration `koanf:"error_sleep"`
	LockLease       time.Duration `koanf:"lock_lease"`
	MinIdle         time.Duration `koanf:"min_idle"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

// LimitConfig 按用户限流，Rate 为 0 时关闭。
type LimitConfig struct {
	Rate     int                     `koanf:"rate"`
	Burst    int                     `koanf:"burst"`
	Period   time.Duration           `koanf:"period"`
	Fallback xlimit.FallbackStrategy `koanf:"fallback"`
}

// Enabled 是否启用限流。
func (l LimitConfig) Enabled() bool { return l.Rate > 0 }

// Rule 转换为 xlimit 规则。
func (l LimitConfig) Rule() xlimit.Rule {
	return xlimit.Rule{Name: "admit", Rate: l.Rate, Burst: l.Burst, Period: l.Period}
}

// LogConfig 日志。File 为空时输出到 stderr。
type LogConfig struct {
	Level    string        `koanf:"level"`
	Format   string        `koanf:"format"`
	File     string        `koanf:"file"`
	Rotation xlog.Rotation `koanf:"rotation"`
}

// CronConfig 定时任务，表达式为空表示不注册。
type CronConfig struct {
	Enabled   bool          `koanf:"enabled"`
	SweepSpec string        `koanf:"sweep_spec"`
	WarmSpec  string        `koanf:"warm_spec"`
	LockTTL   time.Duration `koanf:"lock_ttl"`
}

// DefaultConsumer 默认消费者名称：主机名，取不到时为 "c"。
// 同组内多个实例主机名相同（如同机多进程）时需显式配置 worker.consumer。
func DefaultConsumer() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "c"
	}
	return host
}

// Default 单机开发用的默认值。
func Default() Config {
	return Config{
		Redis: RedisConfig{
			Addr:            "127.0.0.1:6379",
			PoolSize:        64,
			DialTimeout:     3 * time.Second,
			StartupAttempts: 5,
		},
		MySQL: mysql.Config{
			Driver:          mysql.DriverMySQL,
			DSN:             "root:root@tcp(127.0.0.1:3306)/seckill?charset=utf8mb4&parseTime=true&loc=Local",
			MaxOpenConns:    32,
			MaxIdleConns:    8,
			ConnMaxLifetime: 30 * time.Minute,
			LogLevel:        "warn",
		},
		Seckill: SeckillConfig{
			Stream:     "stream.orders",
			DeadStream: "stream.orders.dead",
			Group:      "g1",
			SoldOutTTL: 5 * time.Second,
		},
		Cache: CacheConfig{
			TTL:            30 * time.Minute,
			LogicalTTL:     10 * time.Second,
			NullTTL:        2 * time.Minute,
			LockTTL:        10 * time.Second,
			RebuildWorkers: 10,
			RebuildQueue:   256,
			LocalMaxCost:   1 << 20,
		},
		Worker: WorkerConfig{
			Enabled:         true,
			Consumer:        DefaultConsumer(),
			Consumers:       1,
			Batch:           1,
			Block:           2 * time.Second,
			IdleSleep:       20 * time.Millisecond,
			ErrorSleep:      500 * time.Millisecond,
			LockLease:       30 * time.Second,
			MinIdle:         time.Minute,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Limit: LimitConfig{
			Period:   time.Second,
			Fallback: xlimit.FallbackOpen,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Cron: CronConfig{
			Enabled:   true,
			SweepSpec: "@every 30s",
			WarmSpec:  "@every 1m",
			LockTTL:   30 * time.Second,
		},
	}
}

// Load 从文件加载并叠加环境变量，path 为空时只使用默认值与环境变量。
// 返回的 xconf.Config 可交给 xconf.Watch 做热重载。
func Load(path string, opts ...xconf.Option) (Config, xconf.Config, error) {
	opts = append([]xconf.Option{xconf.WithEnv(EnvPrefix)}, opts...)

	var (
		src xconf.Config
		err error
	)
	if path == "" {
		src, err = xconf.NewFromBytes(nil, xconf.FormatYAML, opts...)
	} else {
		src, err = xconf.New(path, opts...)
	}
	if err != nil {
		return Config{}, nil, err
	}

	cfg, err := FromSource(src)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, src, nil
}

// FromSource 在默认值之上解码并校验。
func FromSource(src xconf.Config) (Config, error) {
	cfg := Default()
	if err := src.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 校验配置，一次列出全部问题。
func (c Config) Validate() error {
	var errs []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Sprintf(format, args...))
		}
	}

	check(c.Redis.Addr != "" || len(c.Redis.SentinelAddrs) > 0, "redis.addr or redis.sentinel_addrs is required")
	check(len(c.Redis.SentinelAddrs) == 0 || c.Redis.MasterName != "", "redis.master_name is required with sentinel_addrs")
	check(c.MySQL.DSN != "", "mysql.dsn is required")
	check(c.MySQL.Driver == "" || c.MySQL.Driver == mysql.DriverMySQL || c.MySQL.Driver == mysql.DriverSQLite,
		"mysql.driver %q is not supported", c.MySQL.Driver)
	check(c.Seckill.Stream != "" && c.Seckill.Group != "", "seckill.stream and seckill.group are required")
	check(c.Seckill.Stream != c.Seckill.DeadStream, "seckill.dead_stream must differ from seckill.stream")
	check(c.Cache.RebuildWorkers > 0 && c.Cache.RebuildQueue > 0, "cache.rebuild_workers and cache.rebuild_queue must be positive")
	check(c.Worker.Consumers > 0, "worker.consumers must be positive")
	check(c.Worker.Batch > 0, "worker.batch must be positive")
	check(c.Worker.Block > 0, "worker.block must be positive")
	if c.Limit.Enabled() {
		if err := c.Limit.Rule().Validate(); err != nil {
			errs = append(errs, err.Error())
		}
		check(c.Limit.Fallback == xlimit.FallbackOpen || c.Limit.Fallback == xlimit.FallbackClose,
			"limit.fallback %q must be open or close", c.Limit.Fallback)
	}
	if _, err := xlog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err.Error())
	}
	check(c.Log.Format == "" || c.Log.Format == "text" || c.Log.Format == "json", "log.format %q must be text or json", c.Log.Format)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

var dsnPassword = regexp.MustCompile(`^([^:@/]+):([^@]*)@`)

// String 用于启动日志，密码被遮盖。
func (c Config) String() string {
	masked := c
	if masked.Redis.Password != "" {
		masked.Redis.Password = "***"
	}
	masked.MySQL.DSN = maskDSN(c.MySQL.DSN)
	type plain Config
	return fmt.Sprintf("%+v", plain(masked))
}

func maskDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
			return u.String()
		}
		return dsn
	}
	return dsnPassword.ReplaceAllString(dsn, "$1:***@")
}
