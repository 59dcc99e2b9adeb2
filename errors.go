package quickpick

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 错误代码常量
const (
	// 系统级错误 (1000-1999)
	ErrCodeSystem             ErrorCode = "QUICKPICK_1000"
	ErrCodeRedisConnection    ErrorCode = "QUICKPICK_1001"
	ErrCodeRedisTimeout       ErrorCode = "QUICKPICK_1002"
	ErrCodeConfigInvalid      ErrorCode = "QUICKPICK_1004"
	ErrCodeRandomSource       ErrorCode = "QUICKPICK_1006"
	ErrCodeInvariantViolation ErrorCode = "QUICKPICK_1007"

	// 业务级错误 (2000-2999), 即配置/输入错误
	ErrCodeInvalidParameters  ErrorCode = "QUICKPICK_2000"
	ErrCodeInvalidRange       ErrorCode = "QUICKPICK_2001"
	ErrCodeRangeTooLarge      ErrorCode = "QUICKPICK_2002"
	ErrCodeInvalidPickCount   ErrorCode = "QUICKPICK_2003"
	ErrCodePickExceedsRange   ErrorCode = "QUICKPICK_2004"
	ErrCodeInvalidTicketCount ErrorCode = "QUICKPICK_2005"
	ErrCodeBallOutOfRange     ErrorCode = "QUICKPICK_2006"
	ErrCodeInvalidMatchCount  ErrorCode = "QUICKPICK_2007"
	ErrCodeInvalidPoolSize    ErrorCode = "QUICKPICK_2008"
	ErrCodeTooManyTickets     ErrorCode = "QUICKPICK_2009"
	ErrCodeInvalidTicketKey   ErrorCode = "QUICKPICK_2010"
	ErrCodeInvalidLockTimeout ErrorCode = "QUICKPICK_2011"
	ErrCodeInvalidRetry       ErrorCode = "QUICKPICK_2012"
	ErrCodeInvalidLockCache   ErrorCode = "QUICKPICK_2013"

	// 生成错误 (3000-3999)
	ErrCodeUniqueGenerationFailed ErrorCode = "QUICKPICK_3000"
	ErrCodeCalculationOverflow    ErrorCode = "QUICKPICK_3001"
	ErrCodeGenerationInterrupted  ErrorCode = "QUICKPICK_3002"

	// 锁相关错误 (4000-4999)
	ErrCodeLockAcquisitionFailed ErrorCode = "QUICKPICK_4000"
	ErrCodeLockTimeout           ErrorCode = "QUICKPICK_4001"
	ErrCodeLockReleaseFailure    ErrorCode = "QUICKPICK_4002"

	// 限流相关错误 (5000-5999)
	ErrCodeRateLimitExceeded  ErrorCode = "QUICKPICK_5000"
	ErrCodeCircuitBreakerOpen ErrorCode = "QUICKPICK_5002"

	// 状态相关错误 (6000-6999)
	ErrCodeBatchNotFound         ErrorCode = "QUICKPICK_6000"
	ErrCodeBatchSaveFailure      ErrorCode = "QUICKPICK_6001"
	ErrCodeBatchLoadFailure      ErrorCode = "QUICKPICK_6002"
	ErrCodeBatchCorrupted        ErrorCode = "QUICKPICK_6003"
	ErrCodeSerializationFailed   ErrorCode = "QUICKPICK_6004"
	ErrCodeDeserializationFailed ErrorCode = "QUICKPICK_6005"
)

// ErrorSeverity 错误严重程度
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "critical"
	SeverityHigh     ErrorSeverity = "high"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityLow      ErrorSeverity = "low"
	SeverityInfo     ErrorSeverity = "info"
)

// LotteryError 带错误码的错误类型
type LotteryError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Details    string         `json:"details,omitempty"`
	Severity   ErrorSeverity  `json:"severity"`
	Timestamp  time.Time      `json:"timestamp"`
	Operation  string         `json:"operation,omitempty"`
	StackTrace string         `json:"stack_trace,omitempty"`
	Cause      error          `json:"-"`
	Retryable  bool           `json:"retryable"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Error 实现 error 接口
func (e *LotteryError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap 接口
func (e *LotteryError) Unwrap() error { return e.Cause }

// Is matches any *LotteryError carrying the same code, so
// errors.Is(err, ErrPickExceedsRange) works on detailed copies.
func (e *LotteryError) Is(target error) bool {
	if t, ok := target.(*LotteryError); ok {
		return e.Code == t.Code
	}
	return false
}

// clone returns a shallow copy so the predefined errors are never mutated
func (e *LotteryError) clone() *LotteryError {
	c := *e
	c.Timestamp = time.Now()
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// WithCause returns a copy of e wrapping cause
func (e *LotteryError) WithCause(cause error) *LotteryError {
	c := e.clone()
	c.Cause = cause
	return c
}

// WithDetails returns a copy of e with formatted details
func (e *LotteryError) WithDetails(format string, args ...any) *LotteryError {
	c := e.clone()
	c.Details = fmt.Sprintf(format, args...)
	return c
}

// WithOperation returns a copy of e tagged with the failing operation
func (e *LotteryError) WithOperation(operation string) *LotteryError {
	c := e.clone()
	c.Operation = operation
	return c
}

// WithMetadata returns a copy of e carrying an extra key/value
func (e *LotteryError) WithMetadata(key string, value any) *LotteryError {
	c := e.clone()
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata[key] = value
	return c
}

// WithStackTrace 添加堆栈跟踪
func (e *LotteryError) WithStackTrace() *LotteryError {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	c := e.clone()
	c.StackTrace = string(buf[:n])
	return c
}

// NewError 创建新的错误
func NewError(code ErrorCode, message string) *LotteryError {
	return &LotteryError{
		Code:      code,
		Message:   message,
		Severity:  SeverityMedium,
		Timestamp: time.Now(),
	}
}

// NewRetryableError 创建可重试的错误
func NewRetryableError(code ErrorCode, message string) *LotteryError {
	err := NewError(code, message)
	err.Retryable = true
	return err
}

// NewCriticalError 创建严重错误
func NewCriticalError(code ErrorCode, message string) *LotteryError {
	err := NewError(code, message)
	err.Severity = SeverityCritical
	return err
}

// 预定义的错误实例
var (
	// 系统级错误
	ErrSystemError           = NewCriticalError(ErrCodeSystem, "system error occurred")
	ErrRedisConnectionFailed = NewRetryableError(ErrCodeRedisConnection, "Redis connection failed")
	ErrRedisTimeout          = NewRetryableError(ErrCodeRedisTimeout, "Redis operation timeout")
	ErrConfigInvalid         = NewCriticalError(ErrCodeConfigInvalid, "configuration is invalid")
	ErrRandomSource          = NewError(ErrCodeRandomSource, "random source failed")
	ErrInvariantViolation    = NewCriticalError(ErrCodeInvariantViolation, "internal invariant violated")

	// 业务级错误
	ErrInvalidParameters  = NewError(ErrCodeInvalidParameters, "invalid parameters provided")
	ErrInvalidRange       = NewError(ErrCodeInvalidRange, "invalid range: low must be less than or equal to high")
	ErrRangeTooLarge      = NewError(ErrCodeRangeTooLarge, "invalid range: too many values")
	ErrInvalidPickCount   = NewError(ErrCodeInvalidPickCount, "invalid pick count: must be at least 1")
	ErrPickExceedsRange   = NewError(ErrCodePickExceedsRange, "invalid pick count: exceeds the range size")
	ErrInvalidTicketCount = NewError(ErrCodeInvalidTicketCount, "invalid ticket count: must be at least 1")
	ErrBallOutOfRange     = NewError(ErrCodeBallOutOfRange, "ball number outside of range")
	ErrInvalidMatchCount  = NewError(ErrCodeInvalidMatchCount, "invalid match count: exceeds the pick count")
	ErrInvalidPoolSize    = NewError(ErrCodeInvalidPoolSize, "invalid pool size: must be at least 1")
	ErrTooManyTickets     = NewError(ErrCodeTooManyTickets, "more unique tickets requested than combinations exist")
	ErrInvalidTicketKey   = NewError(ErrCodeInvalidTicketKey, "invalid ticket key")
	ErrInvalidLockTimeout = NewError(ErrCodeInvalidLockTimeout, "invalid lock timeout: must be between 1s and 5m")
	ErrInvalidRetry       = NewError(ErrCodeInvalidRetry, "invalid retry settings: attempts must be between 0 and 10 and interval not negative")
	ErrInvalidLockCache   = NewError(ErrCodeInvalidLockCache, "invalid lock cache TTL: must be between 1s and 5m")

	// 生成错误
	ErrUniqueGenerationFailed = NewError(ErrCodeUniqueGenerationFailed, "unique ticket generation gave up")
	ErrCalculationOverflow    = NewError(ErrCodeCalculationOverflow, "arithmetic overflow")
	ErrGenerationInterrupted  = NewError(ErrCodeGenerationInterrupted, "generation interrupted")

	// 锁相关错误
	ErrLockAcquisitionFailed = NewRetryableError(ErrCodeLockAcquisitionFailed, "failed to acquire distributed lock")
	ErrLockTimeout           = NewRetryableError(ErrCodeLockTimeout, "lock acquisition timeout")
	ErrLockReleaseFailure    = NewError(ErrCodeLockReleaseFailure, "failed to release lock")

	// 限流相关错误
	ErrRateLimitExceeded  = NewRetryableError(ErrCodeRateLimitExceeded, "rate limit exceeded")
	ErrCircuitBreakerOpen = NewRetryableError(ErrCodeCircuitBreakerOpen, "circuit breaker is open")

	// 状态相关错误
	ErrBatchNotFound         = NewError(ErrCodeBatchNotFound, "batch not found")
	ErrBatchSaveFailure      = NewRetryableError(ErrCodeBatchSaveFailure, "failed to save batch")
	ErrBatchLoadFailure      = NewRetryableError(ErrCodeBatchLoadFailure, "failed to load batch")
	ErrBatchCorrupted        = NewError(ErrCodeBatchCorrupted, "batch data is corrupted")
	ErrSerializationFailed   = NewError(ErrCodeSerializationFailed, "serialization failed")
	ErrDeserializationFailed = NewError(ErrCodeDeserializationFailed, "deserialization failed")
)

// IsDomainError reports whether err is a configuration/input error (code range 2xxx).
func IsDomainError(err error) bool {
	var le *LotteryError
	if !errors.As(err, &le) {
		return false
	}
	return strings.HasPrefix(string(le.Code), "QUICKPICK_2")
}

// invariantf panics with a critical ErrInvariantViolation. It is reserved for
// states that valid input can never produce.
func invariantf(format string, args ...any) {
	panic(ErrInvariantViolation.WithDetails(format, args...).WithStackTrace())
}

// ErrorHandler 错误处理器接口
type ErrorHandler interface {
	HandleError(ctx context.Context, err error) error
	ShouldRetry(err error) bool
	GetRetryDelay(attempt int, err error) time.Duration
}

// DefaultErrorHandler 默认错误处理器
type DefaultErrorHandler struct {
	logger        Logger
	baseDelay     time.Duration
	maxDelay      time.Duration
	backoffFactor float64
}

// NewDefaultErrorHandler 创建默认错误处理器
func NewDefaultErrorHandler(logger Logger, baseDelay time.Duration) *DefaultErrorHandler {
	if baseDelay <= 0 {
		baseDelay = DefaultRetryInterval
	}
	return &DefaultErrorHandler{
		logger:        logger,
		baseDelay:     baseDelay,
		maxDelay:      5 * time.Second,
		backoffFactor: 2.0,
	}
}

// HandleError converts err into a *LotteryError and logs it
func (h *DefaultErrorHandler) HandleError(_ context.Context, err error) error {
	if err == nil {
		return nil
	}

	var lotteryErr *LotteryError
	if !errors.As(err, &lotteryErr) {
		lotteryErr = ErrSystemError.WithDetails("%s", err.Error()).WithCause(err)
		lotteryErr.Retryable = IsRetryableError(err)
	}

	h.logError(lotteryErr)
	return lotteryErr
}

// ShouldRetry 判断是否应该重试
func (h *DefaultErrorHandler) ShouldRetry(err error) bool {
	var lotteryErr *LotteryError
	if errors.As(err, &lotteryErr) {
		return lotteryErr.Retryable
	}
	return IsRetryableError(err)
}

// GetRetryDelay 指数退避 (±25% 抖动)
func (h *DefaultErrorHandler) GetRetryDelay(attempt int, _ error) time.Duration {
	if attempt <= 0 {
		return h.baseDelay
	}

	delay := time.Duration(float64(h.baseDelay) * math.Pow(h.backoffFactor, float64(attempt-1)))
	delay += time.Duration(float64(delay) * 0.25 * (2*rand.Float64() - 1))

	if delay > h.maxDelay {
		delay = h.maxDelay
	}
	return delay
}

func (h *DefaultErrorHandler) logError(err *LotteryError) {
	switch err.Severity {
	case SeverityCritical, SeverityHigh, SeverityMedium:
		h.logger.Error("%s error: %s", err.Severity, err.Error())
	default:
		h.logger.Info("%s error: %s", err.Severity, err.Error())
	}
}

// IsRetryableError 检查是否为可重试错误
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"network is unreachable",
		"temporary failure",
		"server closed",
		"broken pipe",
		"i/o timeout",
		"dial tcp",
		"read tcp",
		"write tcp",
		"no route to host",
		"redis: connection pool timeout",
		"redis: client is closed",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// ErrorRecovery 错误恢复策略
type ErrorRecovery struct {
	handler    ErrorHandler
	maxRetries int
	logger     Logger
}

// NewErrorRecovery 创建错误恢复策略
func NewErrorRecovery(handler ErrorHandler, maxRetries int, logger Logger) *ErrorRecovery {
	return &ErrorRecovery{
		handler:    handler,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// ExecuteWithRetry runs operation until it succeeds, fails with a
// non-retryable error, or maxRetries is exhausted.
func (r *ErrorRecovery) ExecuteWithRetry(ctx context.Context, name string, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return ErrGenerationInterrupted.WithOperation(name).WithCause(err)
		}

		err := operation()
		if err == nil {
			if attempt > 0 {
				r.logger.Info("%s succeeded after %d retries", name, attempt)
			}
			return nil
		}

		lastErr = r.handler.HandleError(ctx, err)
		if !r.handler.ShouldRetry(lastErr) {
			r.logger.Debug("%s error is not retryable: %v", name, lastErr)
			return lastErr
		}

		if attempt < r.maxRetries {
			delay := r.handler.GetRetryDelay(attempt+1, lastErr)
			r.logger.Debug("Retrying %s in %v (attempt %d/%d)", name, delay, attempt+1, r.maxRetries)

			select {
			case <-ctx.Done():
				return ErrGenerationInterrupted.WithOperation(name).WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return ErrSystemError.WithOperation(name).
		WithDetails("operation failed after %d attempts", r.maxRetries+1).
		WithCause(lastErr)
}
