package xbreaker

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

type (
	// Counts 统计窗口内的请求计数
	Counts = gobreaker.Counts
	// State 熔断器状态
	State = gobreaker.State
)

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

var (
	// ErrOpenState 熔断打开，请求被拒绝
	ErrOpenState = gobreaker.ErrOpenState
	// ErrTooManyRequests 半开状态下探测请求已满
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// BreakerError 包装熔断器自身的拒绝错误。
type BreakerError struct {
	Err   error
	Name  string
	State State
}

func (e *BreakerError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("breaker %s: %v", e.Name, e.Err)
	}
	return e.Err.Error()
}

func (e *BreakerError) Unwrap() error { return e.Err }

// Retryable 熔断拒绝不应重试。
func (e *BreakerError) Retryable() bool { return false }

// wrapBreakerError 只包装本熔断器直接返回的拒绝错误，fn 自身的错误原样返回。
// 状态取自错误类型而不是 State()，避免执行结束后状态已变化。
func wrapBreakerError(err error, name string) error {
	if err == nil {
		return nil
	}
	var be *BreakerError
	if errors.As(err, &be) {
		return err
	}
	switch err { //nolint:errorlint // 仅匹配 gobreaker 直接返回的哨兵错误
	case gobreaker.ErrOpenState:
		return &BreakerError{Err: err, Name: name, State: StateOpen}
	case gobreaker.ErrTooManyRequests:
		return &BreakerError{Err: err, Name: name, State: StateHalfOpen}
	}
	return err
}

// IsOpen 熔断打开拒绝。
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState)
}

// IsBreakerError 是否为熔断器拒绝（打开或半开请求过多）。
func IsBreakerError(err error) bool {
	return IsOpen(err) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
