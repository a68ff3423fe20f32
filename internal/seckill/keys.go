package seckill

import "strconv"

// Redis key 约定。
const (
	KeyStockPrefix  = "seckill:stock:"
	KeyOrderPrefix  = "seckill:order:"
	KeyWindowPrefix = "seckill:window:"

	// KeyVoucherCache 互斥重建的券缓存；KeyVoucherHot 逻辑过期的热点券缓存。
	KeyVoucherCache = "cache:voucher:"
	KeyVoucherHot   = "cache:voucher:hot:"
	LockVoucher     = "lock:voucher:"
	LockVoucherHot  = "lock:voucher:hot:"

	// LockUserOrder 履约时的用户锁资源名，xdlock 会再加 "lock:" 前缀。
	LockUserOrder = "seckill-order:"

	DefaultStream     = "stream.orders"
	DefaultDeadStream = "stream.orders.dead"
	DefaultGroup      = "g1"

	// OrderIDTag 订单号计数器标签。
	OrderIDTag = "order"

	windowBegin = "begin"
	windowEnd   = "end"
)

func stockKey(voucherID int64) string  { return KeyStockPrefix + strconv.FormatInt(voucherID, 10) }
func orderKey(voucherID int64) string  { return KeyOrderPrefix + strconv.FormatInt(voucherID, 10) }
func windowKey(voucherID int64) string { return KeyWindowPrefix + strconv.FormatInt(voucherID, 10) }
func userLock(userID int64) string     { return LockUserOrder + strconv.FormatInt(userID, 10) }
func soldOutKey(voucherID int64) string {
	return "soldout:" + strconv.FormatInt(voucherID, 10)
}
