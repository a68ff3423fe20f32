package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal 收到系统信号退出。
	ErrSignal = errors.New("received signal")

	// ErrNilFunc 服务函数为 nil。
	ErrNilFunc = errors.New("xrun: nil function")

	// ErrNilService Service 为 nil。
	ErrNilService = errors.New("xrun: nil service")

	// ErrInvalidInterval Ticker 间隔必须为正数。
	ErrInvalidInterval = errors.New("xrun: interval must be positive")
)

// SignalError 记录触发退出的信号。errors.Is(err, ErrSignal) 为 true。
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	if e.Signal == nil {
		return "received signal <nil>"
	}
	return fmt.Sprintf("received signal %s", e.Signal)
}

func (e *SignalError) Is(target error) bool {
	return target == ErrSignal
}

func (e *SignalError) Unwrap() error {
	return ErrSignal
}
