package model

import (
	"errors"
	"fmt"
)

// 错误分类：
//   - InsufficientDataError  K线不够，等数据即可恢复
//   - ConfigurationError     配置非法，启动时直接失败
//   - ExecutionUnavailableError 行情/执行协作方超时，降级为拒绝
//   - 守卫拒绝不是错误，走Decision结构返回
// 组件内部任何未预期的panic由编排器统一捕获，转为ERROR状态

// K线窗口不足
type InsufficientDataError struct {
	Symbol string
	Need   int
	Have   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient bars for %s: need %d, have %d", e.Symbol, e.Need, e.Have)
}

// 配置错误 启动期fail fast
type ConfigurationError struct {
	Field  string
	Detail string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Detail)
}

// 行情源不可用（超时/断连），管道降级为拒绝而不是阻塞
type ExecutionUnavailableError struct {
	Cause error
}

func (e *ExecutionUnavailableError) Error() string {
	return fmt.Sprintf("execution collaborator unavailable: %v", e.Cause)
}

func (e *ExecutionUnavailableError) Unwrap() error {
	return e.Cause
}

var (
	// 未注册的策略
	ErrStrategyNotFound = errors.New("strategy not found")
	// 管道已暂停（风控触发）
	ErrPipelinePaused = errors.New("pipeline paused by risk tripwire")
)

func IsInsufficientData(err error) bool {
	var target *InsufficientDataError
	return errors.As(err, &target)
}

func IsExecutionUnavailable(err error) bool {
	var target *ExecutionUnavailableError
	return errors.As(err, &target)
}
