package quickpick

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerEngine 带熔断器的票据生成器
//
// Only infrastructure failures count against the breaker. Invalid input, a
// busy lock key, rate limiting and a missing batch are answers, not faults.
type CircuitBreakerEngine struct {
	engine TicketGenerator

	mu       sync.RWMutex
	breaker  *gobreaker.CircuitBreaker
	logger   Logger
	config   *CircuitBreakerConfig
	exporter *MetricsExporter
}

var _ TicketGenerator = (*CircuitBreakerEngine)(nil)

// NewCircuitBreakerEngine 创建带熔断器的票据生成器
func NewCircuitBreakerEngine(engine TicketGenerator, config *CircuitBreakerConfig, logger Logger) *CircuitBreakerEngine {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	if logger == nil {
		logger = NewSilentLogger()
	}

	c := &CircuitBreakerEngine{engine: engine, logger: logger, config: config}
	if config.Enabled {
		c.breaker = c.newBreaker()
	}
	return c
}

func (c *CircuitBreakerEngine) newBreaker() *gobreaker.CircuitBreaker {
	config := c.config
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 当请求数达到最小要求且失败率超过阈值时触发熔断
			return counts.Requests >= config.MinRequests &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureRatio
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if config.OnStateChange {
				c.logger.Info("Circuit breaker '%s' state changed from %s to %s", name, from, to)
			}
			if x := c.metricsExporter(); x != nil {
				x.observeBreaker(name, to)
			}
		},
	})
}

// countsAsSuccess tells the breaker which errors leave the backend healthy
func countsAsSuccess(err error) bool {
	switch {
	case err == nil,
		IsDomainError(err),
		errors.Is(err, ErrLockAcquisitionFailed),
		errors.Is(err, ErrRateLimitExceeded),
		errors.Is(err, ErrBatchNotFound),
		errors.Is(err, ErrUniqueGenerationFailed),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}

// SetMetricsExporter publishes state changes as a Prometheus gauge
func (c *CircuitBreakerEngine) SetMetricsExporter(exporter *MetricsExporter) {
	c.mu.Lock()
	c.exporter = exporter
	c.mu.Unlock()

	// State may fire OnStateChange, which reads the exporter under mu
	if breaker := c.current(); exporter != nil && breaker != nil {
		exporter.observeBreaker(c.config.Name, breaker.State())
	}
}

func (c *CircuitBreakerEngine) metricsExporter() *MetricsExporter {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.exporter
}

func (c *CircuitBreakerEngine) current() *gobreaker.CircuitBreaker {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.breaker
}

// executeWithBreaker 使用熔断器执行操作
func executeWithBreaker[T any](c *CircuitBreakerEngine, operation func() (T, error)) (T, error) {
	breaker := c.current()
	if breaker == nil {
		// 熔断器未启用，直接执行
		return operation()
	}

	var zero T
	result, err := breaker.Execute(func() (any, error) { return operation() })
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return zero, ErrCircuitBreakerOpen.WithDetails("circuit breaker is open, requests are being rejected")
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return zero, ErrCircuitBreakerOpen.WithDetails("too many requests, circuit breaker is half-open")
	case err != nil:
		return zero, err
	}
	return result.(T), nil
}

// GenerateBatch 生成一批票据
func (c *CircuitBreakerEngine) GenerateBatch(ctx context.Context, lockKey string, cfg *TicketConfig) (*Batch, error) {
	return executeWithBreaker(c, func() (*Batch, error) {
		return c.engine.GenerateBatch(ctx, lockKey, cfg)
	})
}

// LoadBatch 加载批次
func (c *CircuitBreakerEngine) LoadBatch(ctx context.Context, lockKey, batchID string) (*Batch, error) {
	return executeWithBreaker(c, func() (*Batch, error) {
		return c.engine.LoadBatch(ctx, lockKey, batchID)
	})
}

// ListBatches 列出批次
func (c *CircuitBreakerEngine) ListBatches(ctx context.Context, lockKey string) ([]*Batch, error) {
	return executeWithBreaker(c, func() ([]*Batch, error) {
		return c.engine.ListBatches(ctx, lockKey)
	})
}

// DeleteBatch 删除批次
func (c *CircuitBreakerEngine) DeleteBatch(ctx context.Context, lockKey, batchID string) error {
	_, err := executeWithBreaker(c, func() (struct{}, error) {
		return struct{}{}, c.engine.DeleteBatch(ctx, lockKey, batchID)
	})
	return err
}

// Probability is pure computation and bypasses the breaker
func (c *CircuitBreakerEngine) Probability(n, k, m int) (Probability, error) {
	return c.engine.Probability(n, k, m)
}

// GetCircuitBreakerState 获取熔断器状态
func (c *CircuitBreakerEngine) GetCircuitBreakerState() string {
	breaker := c.current()
	if breaker == nil {
		return "disabled"
	}

	switch breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// GetCircuitBreakerCounts 获取熔断器统计信息
func (c *CircuitBreakerEngine) GetCircuitBreakerCounts() gobreaker.Counts {
	breaker := c.current()
	if breaker == nil {
		return gobreaker.Counts{}
	}
	return breaker.Counts()
}

// ResetCircuitBreaker 重置熔断器 (gobreaker 没有 Reset 方法，重新创建实例)
func (c *CircuitBreakerEngine) ResetCircuitBreaker() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.breaker == nil {
		return
	}
	c.breaker = c.newBreaker()
	c.logger.Info("Circuit breaker '%s' has been reset (recreated)", c.config.Name)
}

// CircuitBreakerHealthCheck 熔断器健康检查
type CircuitBreakerHealthCheck struct {
	engine *CircuitBreakerEngine
}

// NewCircuitBreakerHealthCheck 创建熔断器健康检查
func NewCircuitBreakerHealthCheck(engine *CircuitBreakerEngine) *CircuitBreakerHealthCheck {
	return &CircuitBreakerHealthCheck{engine: engine}
}

// Check 执行健康检查
func (h *CircuitBreakerHealthCheck) Check() map[string]any {
	result := map[string]any{
		"circuit_breaker_enabled": h.engine.config.Enabled,
		"timestamp":               time.Now().Unix(),
	}

	state := h.engine.GetCircuitBreakerState()
	result["state"] = state
	if state == "disabled" {
		result["healthy"] = true
		return result
	}

	counts := h.engine.GetCircuitBreakerCounts()
	result["requests"] = counts.Requests
	result["total_successes"] = counts.TotalSuccesses
	result["total_failures"] = counts.TotalFailures
	result["consecutive_failures"] = counts.ConsecutiveFailures

	failureRate := 0.0
	if counts.Requests > 0 {
		failureRate = float64(counts.TotalFailures) / float64(counts.Requests)
	}
	result["failure_rate"] = failureRate

	// 半开状态下，如果连续失败次数过多，认为不健康
	result["healthy"] = state == "closed" || (state == "half-open" && counts.ConsecutiveFailures <= 2)
	return result
}
