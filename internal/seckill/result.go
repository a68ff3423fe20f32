package seckill

import (
	"errors"
	"strconv"
)

// Status 准入结果，0-4 与脚本返回码一致。
type Status int

const (
	Admitted Status = iota
	SoldOut
	DuplicatePurchase
	NotStarted
	Ended
	// RateLimited 由限流器产生，不经过脚本
	RateLimited
)

func (s Status) String() string {
	switch s {
	case Admitted:
		return "admitted"
	case SoldOut:
		return "sold_out"
	case DuplicatePurchase:
		return "duplicate"
	case NotStarted:
		return "not_started"
	case Ended:
		return "ended"
	case RateLimited:
		return "rate_limited"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// 准入拒绝。拒绝通过 Result 返回，Result.Err 转换为这些错误。
var (
	ErrSoldOut           = errors.New("seckill: sold out")
	ErrDuplicatePurchase = errors.New("seckill: user already purchased this voucher")
	ErrNotStarted        = errors.New("seckill: sale not started")
	ErrEnded             = errors.New("seckill: sale ended")
	ErrRateLimited       = errors.New("seckill: too many requests")
)

var (
	ErrInvalidID        = errors.New("seckill: id must be positive")
	ErrUnexpectedCode   = errors.New("seckill: unexpected admission script result")
	ErrNoCatalog        = errors.New("seckill: voucher catalog not configured")
	ErrUserLocked       = errors.New("seckill: user order lock held by another worker")
	ErrNilDependency    = errors.New("seckill: nil dependency")
	ErrMalformedMessage = errors.New("seckill: malformed stream message")
)

// Result 一次准入的结果。OrderID 仅在 Admitted 时有效。
type Result struct {
	Status  Status
	OrderID int64
}

// Err Admitted 返回 nil，其余返回对应的拒绝错误。
func (r Result) Err() error {
	switch r.Status {
	case Admitted:
		return nil
	case SoldOut:
		return ErrSoldOut
	case DuplicatePurchase:
		return ErrDuplicatePurchase
	case NotStarted:
		return ErrNotStarted
	case Ended:
		return ErrEnded
	case RateLimited:
		return ErrRateLimited
	default:
		return ErrUnexpectedCode
	}
}
