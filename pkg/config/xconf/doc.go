// Package xconf 基于 koanf v2 的配置加载。
//
// 加载顺序：YAML/JSON 文件，再叠加环境变量覆盖。
// 环境变量以前缀开头，双下划线表示层级，单下划线保留在键名中：
//
//	SECKILL_REDIS__ADDR=10.0.0.1:6379     -> redis.addr
//	SECKILL_CACHE__NULL_TTL=1m            -> cache.null_ttl
//
// Watch 监视文件变更，防抖后重载（文件与环境变量一起重新叠加）。
package xconf
