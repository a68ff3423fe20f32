// Package util 通用工具子包。
//
//   - xid: Redis 日计数器订单号生成器与 sonyflake 进程内 ID
//   - xpool: 泛型 Worker Pool，用于缓存后台重建
package util
