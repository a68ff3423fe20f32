// Package storage 数据存储相关的子包。
//
//   - xcache: Redis 缓存客户端（互斥重建、逻辑过期、空值防穿透）与 ristretto 本地缓存
package storage
