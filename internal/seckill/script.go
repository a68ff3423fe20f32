package seckill

import "github.com/redis/go-redis/v9"

// admitScript 原子准入。
//
// KEYS: stock, order-set, window, stream
// ARGV: voucherId, userId, orderId, now(unix 秒)
// 返回：0 成功，1 库存不足，2 重复下单，3 未开始，4 已结束。
// 窗口 hash 不存在时不校验时间；库存 key 不存在视为售罄。
var admitScript = redis.NewScript(`
local stockKey, orderKey, windowKey, streamKey = KEYS[1], KEYS[2], KEYS[3], KEYS[4]
local voucherId, userId, orderId = ARGV[1], ARGV[2], ARGV[3]
local now = tonumber(ARGV[4])

local begin = redis.call('HGET', windowKey, 'begin')
if begin and now < tonumber(begin) then
  return 3
end
local finish = redis.call('HGET', windowKey, 'end')
if finish and now > tonumber(finish) then
  return 4
end

local stock = tonumber(redis.call('GET', stockKey))
if not stock or stock <= 0 then
  return 1
end

if redis.call('SISMEMBER', orderKey, userId) == 1 then
  return 2
end

redis.call('INCRBY', stockKey, -1)
redis.call('SADD', orderKey, userId)
redis.call('XADD', streamKey, '*', 'id', orderId, 'userId', userId, 'voucherId', voucherId)
return 0
`)
