package quickpick

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Distributed Lock Implementation Strategy:
// - Lock Acquisition: Use Redis SET NX (single network call)
// - Lock Release: Use Lua script so only the owner can release
// One lock key serializes every batch drawn for the same game, so two
// callers never persist overlapping batches under one key.

// releaseLockScript deletes the lock only while it still holds our value.
// Otherwise an expired holder could delete a lock taken over by someone else.
const releaseLockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLockManager manages Redis distributed locks
type DistributedLockManager struct {
	redisClient   *redis.Client
	lockTimeout   time.Duration
	retryAttempts int
	retryInterval time.Duration
	lockCacheTTL  time.Duration // 锁缓存TTL

	// 锁缓存: 最近获取失败的锁, 在 TTL 内直接失败而不访问 Redis
	lockCache sync.Map

	performanceMonitor *PerformanceMonitor
}

// NewLockManager creates a new distributed lock manager with default retry settings
func NewLockManager(redisClient *redis.Client, lockTimeout time.Duration) *DistributedLockManager {
	return NewLockManagerWithRetry(redisClient, lockTimeout, DefaultRetryAttempts, DefaultRetryInterval, DefaultLockCacheTTL)
}

// NewLockManagerWithRetry creates a new distributed lock manager with custom retry settings
func NewLockManagerWithRetry(
	redisClient *redis.Client,
	lockTimeout time.Duration, retryAttempts int, retryInterval, lockCacheTTL time.Duration,
) *DistributedLockManager {
	return &DistributedLockManager{
		redisClient:   redisClient,
		lockTimeout:   lockTimeout,
		retryAttempts: retryAttempts,
		retryInterval: retryInterval,
		lockCacheTTL:  lockCacheTTL,

		performanceMonitor: NewPerformanceMonitor(),
	}
}

// newLockManagerFromConfig builds the manager the engine uses
func newLockManagerFromConfig(redisClient *redis.Client, cfg *EngineConfig, monitor *PerformanceMonitor) *DistributedLockManager {
	m := NewLockManagerWithRetry(redisClient, cfg.LockTimeout, cfg.RetryAttempts, cfg.RetryInterval, cfg.LockCacheTTL)
	if monitor != nil {
		m.performanceMonitor = monitor
	}
	return m
}

func validateLockArgs(lockKey, lockValue string) error {
	if lockKey == "" || lockValue == "" {
		return ErrInvalidParameters.WithDetails("lock key and value are required")
	}
	return nil
}

// sleepCtx waits d or until ctx is done
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// recentlyFailed reports whether lockKey failed within the cache TTL
func (m *DistributedLockManager) recentlyFailed(lockKey string) bool {
	cached, ok := m.lockCache.Load(lockKey)
	if !ok {
		return false
	}
	if time.Since(cached.(time.Time)) < m.lockCacheTTL {
		return true
	}
	m.lockCache.Delete(lockKey)
	return false
}

// AcquireLock attempts to acquire a distributed lock using SET NX, retrying
// up to retryAttempts times.
//
// A key that could not be acquired within the last lockCacheTTL fails
// immediately with ErrLockAcquisitionFailed without a Redis round trip.
func (m *DistributedLockManager) AcquireLock(ctx context.Context, lockKey, lockValue string, expireTime time.Duration) (bool, error) {
	if err := validateLockArgs(lockKey, lockValue); err != nil {
		return false, err
	}
	if expireTime <= 0 {
		expireTime = DefaultLockExpiration
	}

	start := time.Now()
	if m.recentlyFailed(lockKey) {
		m.performanceMonitor.RecordLockAcquisition(false, time.Since(start))
		return false, ErrLockAcquisitionFailed.WithDetails("lock %q busy (cached)", lockKey)
	}

	// Add prefix to lock key
	fullLockKey := LockKeyPrefix + lockKey

	for attempt := 0; attempt <= m.retryAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, m.retryInterval); err != nil {
				return false, err
			}
		} else if err := ctx.Err(); err != nil {
			return false, err
		}

		acquired, err := m.redisClient.SetNX(ctx, fullLockKey, lockValue, expireTime).Result()
		if err != nil {
			m.performanceMonitor.RecordRedisError()
			if attempt == m.retryAttempts {
				m.performanceMonitor.RecordLockAcquisition(false, time.Since(start))
				return false, ErrRedisConnectionFailed.WithCause(err)
			}
			continue
		}

		if acquired {
			m.lockCache.Delete(lockKey)
			m.performanceMonitor.RecordLockAcquisition(true, time.Since(start))
			return true, nil
		}
	}

	// All attempts failed
	m.lockCache.Store(lockKey, time.Now())
	m.performanceMonitor.RecordLockAcquisition(false, time.Since(start))
	return false, ErrLockAcquisitionFailed.WithDetails("lock %q held by another owner", lockKey)
}

// ReleaseLock releases the lock if lockValue still owns it.
// It returns false without error when the lock expired or changed hands.
func (m *DistributedLockManager) ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error) {
	if err := validateLockArgs(lockKey, lockValue); err != nil {
		return false, err
	}

	// Add prefix to lock key
	fullLockKey := LockKeyPrefix + lockKey

	var lastErr error
	for attempt := 0; attempt <= m.retryAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, m.retryInterval); err != nil {
				return false, err
			}
		}

		// Execute Lua script for atomic lock release
		result, err := m.redisClient.Eval(ctx, releaseLockScript, []string{fullLockKey}, lockValue).Int64()
		if err != nil {
			m.performanceMonitor.RecordRedisError()
			lastErr = err
			continue
		}

		if result == 1 {
			m.performanceMonitor.RecordLockRelease()
			return true, nil
		}
		// Lock was not found or value didn't match - no need to retry
		return false, nil
	}

	return false, ErrLockReleaseFailure.WithCause(lastErr)
}

// AcquireLockWithTimeout keeps trying until the lock is acquired or timeout
// elapses, in which case ErrLockTimeout is returned.
func (m *DistributedLockManager) AcquireLockWithTimeout(
	ctx context.Context, lockKey, lockValue string, expireTime, timeout time.Duration,
) (bool, error) {
	if err := validateLockArgs(lockKey, lockValue); err != nil {
		return false, err
	}
	if expireTime <= 0 {
		expireTime = DefaultLockExpiration
	}
	if timeout <= 0 {
		timeout = m.lockTimeout
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fullLockKey := LockKeyPrefix + lockKey
	start := time.Now()
	for {
		acquired, err := m.redisClient.SetNX(timeoutCtx, fullLockKey, lockValue, expireTime).Result()
		if err == nil && acquired {
			m.performanceMonitor.RecordLockAcquisition(true, time.Since(start))
			return true, nil
		}
		if err != nil && timeoutCtx.Err() == nil {
			m.performanceMonitor.RecordRedisError()
		}

		if sleepCtx(timeoutCtx, m.retryInterval) != nil || timeoutCtx.Err() != nil {
			m.performanceMonitor.RecordLockAcquisition(false, time.Since(start))
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, ErrLockTimeout.WithDetails("lock %q not acquired within %v", lockKey, timeout)
		}
	}
}

// TryAcquireLock attempts to acquire a lock once, without retries or the lock cache
func (m *DistributedLockManager) TryAcquireLock(ctx context.Context, lockKey, lockValue string, expireTime time.Duration) (bool, error) {
	if err := validateLockArgs(lockKey, lockValue); err != nil {
		return false, err
	}
	if expireTime <= 0 {
		expireTime = DefaultLockExpiration
	}

	acquired, err := m.redisClient.SetNX(ctx, LockKeyPrefix+lockKey, lockValue, expireTime).Result()
	if err != nil {
		m.performanceMonitor.RecordRedisError()
		return false, ErrRedisConnectionFailed.WithCause(err)
	}
	return acquired, nil
}

// GetPerformanceMetrics 获取性能指标
func (m *DistributedLockManager) GetPerformanceMetrics() PerformanceMetrics {
	return m.performanceMonitor.GetMetrics()
}

// SetPerformanceMonitor 设置性能监控器
func (m *DistributedLockManager) SetPerformanceMonitor(monitor *PerformanceMonitor) {
	if monitor != nil {
		m.performanceMonitor = monitor
	}
}
