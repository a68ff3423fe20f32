// Package mysql 基于 gorm 的 domain.Repository 实现。
//
// 生产环境使用 MySQL（gorm.io/driver/mysql），本地与测试可切换为纯 Go 的 SQLite。
package mysql
