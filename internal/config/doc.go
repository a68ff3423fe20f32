// Package config 秒杀服务的配置结构、默认值与校验。
//
// 配置文件为 YAML 或 JSON，环境变量 SECKILL_ 前缀覆盖，例如：
//
//	SECKILL_REDIS__ADDR=10.0.0.1:6379
//	SECKILL_MYSQL__DSN='user:pass@tcp(db:3306)/seckill?parseTime=true'
//	SECKILL_LOG__LEVEL=debug
package config
