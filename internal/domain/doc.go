// Package domain 秒杀领域模型与关系库仓储接口。
//
// 仓储只暴露三个带条件的写操作（计数、条件扣减、插入），
// 所有库存变更都必须通过 OrderTx.DecrementStock，并以影响行数作为唯一成功信号。
package domain
