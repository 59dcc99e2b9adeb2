package quickpick

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/time/rate"
)

// SourceFactory returns one independent RandomSource per generation worker
type SourceFactory func(workers int) []RandomSource

// CryptoSources is the default factory: one buffered crypto/rand source per worker
func CryptoSources(workers int) []RandomSource {
	sources := make([]RandomSource, workers)
	for i := range sources {
		sources[i] = NewCachedRandomSource(DefaultRandomCacheSize)
	}
	return sources
}

// SeededSources returns a factory of deterministic sources. Batches are
// reproducible only while they are generated by a single worker.
func SeededSources(seed uint64) SourceFactory {
	return func(workers int) []RandomSource {
		if workers == 1 {
			return []RandomSource{NewSeededRandomSource(seed)}
		}
		return NewSeededRandomSource(seed).Split(workers)
	}
}

// QuickPickEngine generates ticket batches under a Redis lock and keeps them in Redis
type QuickPickEngine struct {
	redisClient   *redis.Client
	lockManager   *DistributedLockManager
	store         *BatchStore
	configManager *ConfigManager
	limiter       *rate.Limiter // nil = 不限流
	sources       SourceFactory
	logger        Logger
	mu            sync.RWMutex // 保护配置, lockManager, store 和 limiter

	performanceMonitor *PerformanceMonitor
}

var _ TicketGenerator = (*QuickPickEngine)(nil)

// NewQuickPickEngine creates a new engine with the default configuration
func NewQuickPickEngine(redisClient *redis.Client) *QuickPickEngine {
	return NewQuickPickEngineWithConfigAndLogger(redisClient, NewDefaultConfigManager(), &DefaultLogger{level: LevelInfo})
}

// NewQuickPickEngineWithConfig creates a new engine with custom configuration
func NewQuickPickEngineWithConfig(redisClient *redis.Client, cm *ConfigManager) *QuickPickEngine {
	return NewQuickPickEngineWithConfigAndLogger(redisClient, cm, &DefaultLogger{level: LevelInfo})
}

// NewQuickPickEngineWithLogger creates a new engine with custom logger
func NewQuickPickEngineWithLogger(redisClient *redis.Client, logger Logger) *QuickPickEngine {
	return NewQuickPickEngineWithConfigAndLogger(redisClient, NewDefaultConfigManager(), logger)
}

// NewQuickPickEngineWithConfigAndLogger creates a new engine with custom configuration and logger.
// A manager that has not loaded anything yet is given DefaultConfig.
func NewQuickPickEngineWithConfigAndLogger(redisClient *redis.Client, cm *ConfigManager, logger Logger) *QuickPickEngine {
	if cm == nil {
		cm = NewDefaultConfigManager()
	}
	if cm.GetConfig() == nil {
		cm.setConfig(DefaultConfig())
	}
	if logger == nil {
		logger = NewSilentLogger()
	}

	e := &QuickPickEngine{
		redisClient:   redisClient,
		configManager: cm,
		sources:       CryptoSources,
		logger:        logger,

		performanceMonitor: NewPerformanceMonitor(),
	}
	e.rebuild(cm.GetConfig().Engine)
	return e
}

// rebuild recreates everything derived from the engine section. Callers hold mu
// or own e exclusively.
func (e *QuickPickEngine) rebuild(cfg *EngineConfig) {
	e.lockManager = newLockManagerFromConfig(e.redisClient, cfg, e.performanceMonitor)
	e.store = e.newStore(cfg)
	e.limiter = nil
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
}

func (e *QuickPickEngine) newStore(cfg *EngineConfig) *BatchStore {
	store := NewBatchStoreWithRetry(e.redisClient, e.logger, cfg.RetryAttempts, cfg.RetryInterval, cfg.BatchTTL)
	// validated together with the rest of cfg
	c, _ := ParseCompression(cfg.Compression)
	store.SetCompression(c)
	return store
}

// GetConfig returns the current engine configuration
func (e *QuickPickEngine) GetConfig() *Config {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.configManager.GetConfig()
}

// UpdateConfig validates and applies a new configuration at runtime
func (e *QuickPickEngine) UpdateConfig(newConfig *Config) error {
	if newConfig == nil {
		e.logger.Error("UpdateConfig failed: nil configuration")
		return ErrInvalidParameters.WithDetails("nil configuration")
	}
	if err := newConfig.Validate(); err != nil {
		e.logger.Error("UpdateConfig validation failed: %v", err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.configManager.setConfig(newConfig)
	e.rebuild(newConfig.Engine)

	e.logger.Info(
		"Configuration updated: LockTimeout=%v, RetryAttempts=%d, Workers=%d, ParallelThreshold=%d, RateLimit=%v",
		newConfig.Engine.LockTimeout, newConfig.Engine.RetryAttempts,
		newConfig.Engine.Workers, newConfig.Engine.ParallelThreshold, newConfig.Engine.RateLimit)
	return nil
}

// WatchConfig applies every valid change of the config file as it happens
func (e *QuickPickEngine) WatchConfig() {
	e.configManager.SetLogger(e.logger)
	e.configManager.WatchConfig(func(c *Config) {
		if err := e.UpdateConfig(c); err != nil {
			e.logger.Error("Reloaded configuration rejected: %v", err)
		}
	})
}

// SetSourceFactory replaces the random sources used for new batches
func (e *QuickPickEngine) SetSourceFactory(f SourceFactory) {
	if f == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sources = f
}

// SetLogger updates the logger at runtime
func (e *QuickPickEngine) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.logger = logger
	e.store = e.newStore(e.configManager.GetConfig().Engine)
	e.logger.Info("New logger activated")
}

// GetLogger returns the current logger
func (e *QuickPickEngine) GetLogger() Logger {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.logger
}

// engineState is what one call needs from the engine, read once under mu
type engineState struct {
	cfg         *EngineConfig
	lockManager *DistributedLockManager
	store       *BatchStore
	limiter     *rate.Limiter
	sources     SourceFactory
	logger      Logger
}

func (e *QuickPickEngine) snapshot() engineState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return engineState{
		cfg:         e.configManager.GetConfig().Engine,
		lockManager: e.lockManager,
		store:       e.store,
		limiter:     e.limiter,
		sources:     e.sources,
		logger:      e.logger,
	}
}

// GenerateBatch draws a batch of unique tickets under lockKey and persists it
func (e *QuickPickEngine) GenerateBatch(ctx context.Context, lockKey string, cfg *TicketConfig) (*Batch, error) {
	return e.GenerateBatchWithProgress(ctx, lockKey, cfg, nil)
}

// GenerateBatchWithProgress is GenerateBatch reporting accepted tickets to progress
func (e *QuickPickEngine) GenerateBatchWithProgress(
	ctx context.Context, lockKey string, cfg *TicketConfig, progress ProgressCallback,
) (*Batch, error) {
	startTime := time.Now()

	batch, err := e.doGenerateBatch(ctx, lockKey, cfg, progress)

	// 记录性能指标
	tickets, draws := 0, 0
	if batch != nil {
		tickets, draws = len(batch.Tickets), batch.Attempts
	}
	e.performanceMonitor.RecordBatch(err == nil, tickets, draws, time.Since(startTime))

	return batch, err
}

func (e *QuickPickEngine) doGenerateBatch(
	ctx context.Context, lockKey string, cfg *TicketConfig, progress ProgressCallback,
) (*Batch, error) {
	st := e.snapshot()
	if lockKey == "" || cfg == nil {
		st.logger.Error("GenerateBatch failed: empty lock key or nil ticket config")
		return nil, ErrInvalidParameters.WithDetails("lock key and ticket config are required")
	}
	st.logger.Debug("GenerateBatch called with lockKey=%s, %s", lockKey, cfg)

	if st.limiter != nil && !st.limiter.Allow() {
		st.logger.Debug("GenerateBatch rate limited: lockKey=%s", lockKey)
		return nil, ErrRateLimitExceeded.WithDetails("lockKey=%s", lockKey)
	}

	// Generate a unique lock value for this operation
	lockValue := generateLockValue()
	acquired, err := st.lockManager.AcquireLock(ctx, lockKey, lockValue, st.cfg.LockTimeout)
	if err != nil {
		st.logger.Error("GenerateBatch lock acquisition error for key %s: %v", lockKey, err)
		return nil, err
	}
	if !acquired {
		return nil, ErrLockAcquisitionFailed.WithDetails("lock %q", lockKey)
	}

	// Ensure lock is released
	defer func() {
		released, releaseErr := st.lockManager.ReleaseLock(context.WithoutCancel(ctx), lockKey, lockValue)
		if releaseErr != nil {
			st.logger.Error("Failed to release lock for key %s: %v", lockKey, releaseErr)
		} else if !released {
			st.logger.Debug("Lock for key %s was already released or expired", lockKey)
		}
	}()

	workers := 1
	if t := cfg.Tickets().Value(); st.cfg.ParallelThreshold > 0 && t >= st.cfg.ParallelThreshold {
		workers = workerCount(st.cfg.Workers, t)
	}
	gen, err := generateParallel(ctx, st.sources(workers), cfg, progress)
	if err != nil {
		st.logger.Error("GenerateBatch generation failed: lockKey=%s, %s: %v", lockKey, cfg, err)
		return nil, err
	}

	batch := newBatch(newBatchID(), lockKey, cfg, gen)
	if err := st.store.Save(ctx, batch); err != nil {
		if errors.Is(err, ErrBatchSaveFailure) {
			e.performanceMonitor.RecordRedisError()
		}
		return nil, err
	}

	st.logger.Info("GenerateBatch successful: lockKey=%s, batch=%s, tickets=%d, strategy=%s, attempts=%d, workers=%d",
		lockKey, batch.ID, len(batch.Tickets), batch.Strategy, batch.Attempts, workers)
	return batch, nil
}

// LoadBatch loads a previously generated batch
func (e *QuickPickEngine) LoadBatch(ctx context.Context, lockKey, batchID string) (*Batch, error) {
	st := e.snapshot()
	batch, err := st.store.Load(ctx, lockKey, batchID)
	if err != nil {
		st.logger.Debug("LoadBatch failed: lockKey=%s, batch=%s: %v", lockKey, batchID, err)
		return nil, err
	}
	return batch, nil
}

// ListBatches returns all live batches under lockKey
func (e *QuickPickEngine) ListBatches(ctx context.Context, lockKey string) ([]*Batch, error) {
	return e.snapshot().store.List(ctx, lockKey)
}

// DeleteBatch removes a persisted batch
func (e *QuickPickEngine) DeleteBatch(ctx context.Context, lockKey, batchID string) error {
	st := e.snapshot()
	if err := st.store.Delete(ctx, lockKey, batchID); err != nil {
		return err
	}
	st.logger.Info("Batch deleted: lockKey=%s, batch=%s", lockKey, batchID)
	return nil
}

// Probability computes the odds of matching m of k numbers drawn from n
func (e *QuickPickEngine) Probability(n, k, m int) (Probability, error) {
	return CalculateProbability(n, k, m)
}

// PerformanceMetrics 获取性能指标
func (e *QuickPickEngine) PerformanceMetrics() PerformanceMetrics {
	return e.performanceMonitor.GetMetrics()
}

// ResetPerformanceMetrics 重置性能指标
func (e *QuickPickEngine) ResetPerformanceMetrics() {
	e.performanceMonitor.ResetMetrics()
}

// EnablePerformanceMonitoring 启用性能监控
func (e *QuickPickEngine) EnablePerformanceMonitoring() {
	e.performanceMonitor.Enable()
}

// DisablePerformanceMonitoring 禁用性能监控
func (e *QuickPickEngine) DisablePerformanceMonitoring() {
	e.performanceMonitor.Disable()
}

// SetMetricsExporter mirrors the engine's metrics into Prometheus
func (e *QuickPickEngine) SetMetricsExporter(exporter *MetricsExporter) {
	e.performanceMonitor.SetExporter(exporter)
}
