package quickpick

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngineConfig(mutate func(*EngineConfig)) *Config {
	cfg := DefaultConfig()
	cfg.Engine.RetryAttempts = 1
	cfg.Engine.RetryInterval = time.Millisecond
	if mutate != nil {
		mutate(cfg.Engine)
	}
	return cfg
}

func newMockEngine(t *testing.T, mutate func(*EngineConfig)) (*QuickPickEngine, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	t.Cleanup(func() { db.Close() })

	cm, err := NewConfigManagerFromConfig(testEngineConfig(mutate))
	require.NoError(t, err)

	e := NewQuickPickEngineWithConfigAndLogger(db, cm, NewSilentLogger())
	e.SetSourceFactory(SeededSources(42))
	return e, mock
}

// expectBatch queues lock, save and release for one GenerateBatch call
func expectBatch(mock redismock.ClientMock, lockKey string, saveErr error) {
	mock.Regexp().ExpectSetNX(LockKeyPrefix+lockKey, `.*`, DefaultLockTimeout).SetVal(true)
	set := mock.Regexp().ExpectSet(BatchKeyPrefix+lockKey+`:.*`, `.*`, DefaultBatchTTL)
	if saveErr != nil {
		set.SetErr(saveErr)
	} else {
		set.SetVal("OK")
	}
	mock.Regexp().ExpectEval(regexp.QuoteMeta(releaseLockScript), []string{LockKeyPrefix + lockKey}, `.*`).SetVal(int64(1))
}

func megaSena(t *testing.T, tickets int) *TicketConfig {
	cfg, err := NewTicketConfig(tickets, 1, 60, 6)
	require.NoError(t, err)
	return cfg
}

func TestQuickPickEngine_GenerateBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("generated_and_saved", func(t *testing.T) {
		e, mock := newMockEngine(t, nil)
		expectBatch(mock, "weekly", nil)

		b, err := e.GenerateBatch(ctx, "weekly", megaSena(t, 10))
		require.NoError(t, err)
		require.NoError(t, b.Validate())
		assert.Equal(t, "weekly", b.LockKey)
		assert.Len(t, b.Tickets, 10)
		assert.NoError(t, mock.ExpectationsWereMet())

		metrics := e.PerformanceMetrics()
		assert.Equal(t, int64(1), metrics.SuccessfulBatches)
		assert.Equal(t, int64(10), metrics.TicketsGenerated)
		assert.Equal(t, int64(1), metrics.LockAcquisitions)
		assert.Equal(t, int64(1), metrics.LockReleases)
	})

	t.Run("seeded_batches_repeat", func(t *testing.T) {
		e, mock := newMockEngine(t, nil)
		expectBatch(mock, "weekly", nil)
		expectBatch(mock, "weekly", nil)

		first, err := e.GenerateBatch(ctx, "weekly", megaSena(t, 5))
		require.NoError(t, err)
		second, err := e.GenerateBatch(ctx, "weekly", megaSena(t, 5))
		require.NoError(t, err)

		assert.Equal(t, first.Tickets, second.Tickets)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("invalid_arguments", func(t *testing.T) {
		e, mock := newMockEngine(t, nil)

		_, err := e.GenerateBatch(ctx, "", megaSena(t, 1))
		assert.ErrorIs(t, err, ErrInvalidParameters)
		_, err = e.GenerateBatch(ctx, "weekly", nil)
		assert.ErrorIs(t, err, ErrInvalidParameters)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, int64(2), e.PerformanceMetrics().FailedBatches)
	})

	t.Run("lock_held", func(t *testing.T) {
		e, mock := newMockEngine(t, nil)
		mock.Regexp().ExpectSetNX(LockKeyPrefix+"weekly", `.*`, DefaultLockTimeout).SetVal(false)
		mock.Regexp().ExpectSetNX(LockKeyPrefix+"weekly", `.*`, DefaultLockTimeout).SetVal(false)

		_, err := e.GenerateBatch(ctx, "weekly", megaSena(t, 1))
		assert.ErrorIs(t, err, ErrLockAcquisitionFailed)

		// 缓存命中, 不访问 Redis
		_, err = e.GenerateBatch(ctx, "weekly", megaSena(t, 1))
		assert.ErrorIs(t, err, ErrLockAcquisitionFailed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("save_failure_releases_lock", func(t *testing.T) {
		e, mock := newMockEngine(t, nil)
		expectBatch(mock, "weekly", redis.TxFailedErr)

		_, err := e.GenerateBatch(ctx, "weekly", megaSena(t, 3))
		assert.ErrorIs(t, err, ErrBatchSaveFailure)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, int64(1), e.PerformanceMetrics().RedisErrors)
	})

	t.Run("source_failure_releases_lock", func(t *testing.T) {
		e, mock := newMockEngine(t, nil)
		e.SetSourceFactory(func(workers int) []RandomSource {
			return []RandomSource{failingSource{err: errors.New("entropy exhausted")}}
		})
		mock.Regexp().ExpectSetNX(LockKeyPrefix+"weekly", `.*`, DefaultLockTimeout).SetVal(true)
		mock.Regexp().ExpectEval(regexp.QuoteMeta(releaseLockScript), []string{LockKeyPrefix + "weekly"}, `.*`).SetVal(int64(1))

		_, err := e.GenerateBatch(ctx, "weekly", megaSena(t, 3))
		assert.ErrorIs(t, err, ErrRandomSource)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rate_limited", func(t *testing.T) {
		e, mock := newMockEngine(t, func(c *EngineConfig) {
			c.RateLimit = 0.001
			c.RateBurst = 1
		})
		expectBatch(mock, "weekly", nil)

		_, err := e.GenerateBatch(ctx, "weekly", megaSena(t, 1))
		require.NoError(t, err)
		_, err = e.GenerateBatch(ctx, "weekly", megaSena(t, 1))
		assert.ErrorIs(t, err, ErrRateLimitExceeded)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("parallel_with_progress", func(t *testing.T) {
		e, mock := newMockEngine(t, func(c *EngineConfig) {
			c.ParallelThreshold = 100
			c.Workers = 4
		})
		expectBatch(mock, "weekly", nil)

		var mu sync.Mutex
		last := 0
		b, err := e.GenerateBatchWithProgress(ctx, "weekly", megaSena(t, 2000), func(accepted, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 2000, total)
			last = accepted
		})
		require.NoError(t, err)
		require.NoError(t, b.Validate())
		assert.Len(t, b.Tickets, 2000)
		assert.Equal(t, 2000, last)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("enumerated", func(t *testing.T) {
		e, mock := newMockEngine(t, nil)
		expectBatch(mock, "tiny", nil)

		cfg, err := NewTicketConfig(10, 1, 5, 2) // C(5,2) = 10
		require.NoError(t, err)
		b, err := e.GenerateBatch(ctx, "tiny", cfg)
		require.NoError(t, err)
		assert.True(t, b.Enumerated)
		assert.Len(t, b.Tickets, 10)
	})

	t.Run("too_many_tickets_rejected_before_engine", func(t *testing.T) {
		_, err := NewTicketConfig(11, 1, 5, 2)
		assert.ErrorIs(t, err, ErrTooManyTickets)
	})
}

func TestQuickPickEngine_Batches(t *testing.T) {
	ctx := context.Background()
	e, mock := newMockEngine(t, nil)
	data := mustSerialize(t, testBatch())

	mock.ExpectGet("quickpick:batch:weekly:b-1").SetVal(data)
	b, err := e.LoadBatch(ctx, "weekly", "b-1")
	require.NoError(t, err)
	assert.Equal(t, "b-1", b.ID)

	mock.ExpectGet("quickpick:batch:weekly:b-9").RedisNil()
	_, err = e.LoadBatch(ctx, "weekly", "b-9")
	assert.ErrorIs(t, err, ErrBatchNotFound)

	mock.ExpectScan(0, "quickpick:batch:weekly:*", scanBatchCount).SetVal([]string{"quickpick:batch:weekly:b-1"}, 0)
	mock.ExpectGet("quickpick:batch:weekly:b-1").SetVal(data)
	batches, err := e.ListBatches(ctx, "weekly")
	require.NoError(t, err)
	assert.Len(t, batches, 1)

	mock.ExpectDel("quickpick:batch:weekly:b-1").SetVal(1)
	require.NoError(t, e.DeleteBatch(ctx, "weekly", "b-1"))

	mock.ExpectDel("quickpick:batch:weekly:b-1").SetVal(0)
	assert.ErrorIs(t, e.DeleteBatch(ctx, "weekly", "b-1"), ErrBatchNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuickPickEngine_Probability(t *testing.T) {
	e, _ := newMockEngine(t, nil)

	p, err := e.Probability(60, 6, 6)
	require.NoError(t, err)
	assert.Equal(t, "1/50063860", p.String())

	_, err = e.Probability(60, 6, 7)
	assert.ErrorIs(t, err, ErrInvalidMatchCount)
}

func TestQuickPickEngine_UpdateConfig(t *testing.T) {
	e, mock := newMockEngine(t, nil)

	assert.ErrorIs(t, e.UpdateConfig(nil), ErrInvalidParameters)

	bad := testEngineConfig(func(c *EngineConfig) { c.LockTimeout = time.Millisecond })
	assert.ErrorIs(t, e.UpdateConfig(bad), ErrInvalidLockTimeout)
	assert.Equal(t, DefaultLockTimeout, e.GetConfig().Engine.LockTimeout)

	good := testEngineConfig(func(c *EngineConfig) {
		c.LockTimeout = 10 * time.Second
		c.BatchTTL = time.Hour
	})
	require.NoError(t, e.UpdateConfig(good))
	assert.Equal(t, 10*time.Second, e.GetConfig().Engine.LockTimeout)

	// 新配置对下一个批次生效
	mock.Regexp().ExpectSetNX(LockKeyPrefix+"weekly", `.*`, 10*time.Second).SetVal(true)
	mock.Regexp().ExpectSet(BatchKeyPrefix+`weekly:.*`, `.*`, time.Hour).SetVal("OK")
	mock.Regexp().ExpectEval(regexp.QuoteMeta(releaseLockScript), []string{LockKeyPrefix + "weekly"}, `.*`).SetVal(int64(1))

	_, err := e.GenerateBatch(context.Background(), "weekly", megaSena(t, 2))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuickPickEngine_Constructors(t *testing.T) {
	db, _ := redismock.NewClientMock()
	defer db.Close()

	engines := map[string]*QuickPickEngine{
		"default":     NewQuickPickEngine(db),
		"config":      NewQuickPickEngineWithConfig(db, nil),
		"logger":      NewQuickPickEngineWithLogger(db, nil),
		"config_nil":  NewQuickPickEngineWithConfigAndLogger(db, NewConfigManager(), NewSilentLogger()),
		"with_config": NewQuickPickEngineWithConfig(db, NewDefaultConfigManager()),
	}
	for name, e := range engines {
		t.Run(name, func(t *testing.T) {
			require.NotNil(t, e.GetConfig())
			assert.NotNil(t, e.GetLogger())
			assert.NotNil(t, e.lockManager)
			assert.NotNil(t, e.store)
			assert.Nil(t, e.limiter)
		})
	}
}

func TestQuickPickEngine_Logger(t *testing.T) {
	e, _ := newMockEngine(t, nil)
	logger := NewDefaultLogger(LevelError)

	e.SetLogger(nil)
	assert.IsType(t, &SilentLogger{}, e.GetLogger())

	e.SetLogger(logger)
	assert.Same(t, logger, e.GetLogger())
	assert.Same(t, logger, e.store.logger)
}

func TestQuickPickEngine_PerformanceMonitoring(t *testing.T) {
	ctx := context.Background()
	e, mock := newMockEngine(t, nil)
	exporter := NewMetricsExporter(nil)
	e.SetMetricsExporter(exporter)

	e.DisablePerformanceMonitoring()
	expectBatch(mock, "weekly", nil)
	_, err := e.GenerateBatch(ctx, "weekly", megaSena(t, 1))
	require.NoError(t, err)
	assert.Zero(t, e.PerformanceMetrics().TotalBatches)

	e.EnablePerformanceMonitoring()
	expectBatch(mock, "weekly", nil)
	_, err = e.GenerateBatch(ctx, "weekly", megaSena(t, 4))
	require.NoError(t, err)

	metrics := e.PerformanceMetrics()
	assert.Equal(t, int64(1), metrics.TotalBatches)
	assert.Equal(t, int64(4), metrics.TicketsGenerated)
	assert.Equal(t, 100.0, metrics.GetSuccessRate())

	e.ResetPerformanceMetrics()
	assert.Zero(t, e.PerformanceMetrics().TotalBatches)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuickPickEngine_RedisIntegration(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()

	e := NewQuickPickEngineWithLogger(rdb, NewSilentLogger())
	cfg := megaSena(t, 25)

	b, err := e.GenerateBatch(ctx, "integration", cfg)
	require.NoError(t, err)
	require.NoError(t, b.Validate())

	// 锁已释放
	exists, err := rdb.Exists(ctx, LockKeyPrefix+"integration").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	loaded, err := e.LoadBatch(ctx, "integration", b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Tickets, loaded.Tickets)

	batches, err := e.ListBatches(ctx, "integration")
	require.NoError(t, err)
	assert.Len(t, batches, 1)

	// 锁被占用时失败
	require.NoError(t, rdb.Set(ctx, LockKeyPrefix+"busy", "other", time.Minute).Err())
	_, err = e.GenerateBatch(ctx, "busy", cfg)
	assert.ErrorIs(t, err, ErrLockAcquisitionFailed)

	require.NoError(t, e.DeleteBatch(ctx, "integration", b.ID))
}

func TestQuickPickEngine_ConcurrentBatches(t *testing.T) {
	rdb := setupTestRedis(t)
	ctx := context.Background()

	e := NewQuickPickEngineWithLogger(rdb, NewSilentLogger())
	cfg := megaSena(t, 50)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := e.GenerateBatch(ctx, "concurrent", cfg)
			if err == nil {
				err = b.Validate()
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrLockAcquisitionFailed)
	}
	assert.GreaterOrEqual(t, succeeded, 1)

	batches, err := e.ListBatches(ctx, "concurrent")
	require.NoError(t, err)
	assert.Len(t, batches, succeeded)
}
