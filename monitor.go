package quickpick

import (
	"sync"
	"sync/atomic"
	"time"
)

// PerformanceMetrics 性能指标收集器
type PerformanceMetrics struct {
	// 批次统计
	TotalBatches      int64 `json:"total_batches"`      // 总批次数
	SuccessfulBatches int64 `json:"successful_batches"` // 成功批次数
	FailedBatches     int64 `json:"failed_batches"`     // 失败批次数
	TicketsGenerated  int64 `json:"tickets_generated"`  // 生成的票数
	GenerationDraws   int64 `json:"generation_draws"`   // 候选票数(含重复)

	// 锁操作统计
	LockAcquisitions    int64 `json:"lock_acquisitions"`     // 锁获取次数
	LockAcquisitionTime int64 `json:"lock_acquisition_time"` // 锁获取总时间(纳秒)
	LockReleases        int64 `json:"lock_releases"`         // 锁释放次数
	LockFailures        int64 `json:"lock_failures"`         // 锁获取失败次数

	// 性能统计
	AverageBatchTime int64 `json:"average_batch_time"` // 平均批次时间(纳秒)
	TotalBatchTime   int64 `json:"total_batch_time"`   // 总批次时间(纳秒)

	// Redis统计
	RedisErrors int64 `json:"redis_errors"` // Redis错误数

	// 时间戳
	StartTime      int64 `json:"start_time"`       // 开始时间
	LastUpdateTime int64 `json:"last_update_time"` // 最后更新时间
}

// GetSuccessRate 获取成功率(百分比)
func (pm *PerformanceMetrics) GetSuccessRate() float64 {
	total := atomic.LoadInt64(&pm.TotalBatches)
	if total == 0 {
		return 0.0
	}
	successful := atomic.LoadInt64(&pm.SuccessfulBatches)
	return float64(successful) / float64(total) * 100.0
}

// GetDuplicateRate returns the share of candidate tickets rejected as duplicates
func (pm *PerformanceMetrics) GetDuplicateRate() float64 {
	draws := atomic.LoadInt64(&pm.GenerationDraws)
	if draws == 0 {
		return 0.0
	}
	return 1 - float64(atomic.LoadInt64(&pm.TicketsGenerated))/float64(draws)
}

// GetAverageLockTime 获取平均锁获取时间
func (pm *PerformanceMetrics) GetAverageLockTime() time.Duration {
	acquisitions := atomic.LoadInt64(&pm.LockAcquisitions)
	if acquisitions == 0 {
		return 0
	}
	totalTime := atomic.LoadInt64(&pm.LockAcquisitionTime)
	return time.Duration(totalTime / acquisitions)
}

// GetThroughput 获取吞吐量(每秒票数)
func (pm *PerformanceMetrics) GetThroughput() float64 {
	startTime := atomic.LoadInt64(&pm.StartTime)
	lastUpdate := atomic.LoadInt64(&pm.LastUpdateTime)
	if startTime == 0 || lastUpdate <= startTime {
		return 0.0
	}

	duration := time.Duration(lastUpdate - startTime)
	return float64(atomic.LoadInt64(&pm.TicketsGenerated)) / duration.Seconds()
}

// Reset 重置性能指标
func (pm *PerformanceMetrics) Reset() {
	atomic.StoreInt64(&pm.TotalBatches, 0)
	atomic.StoreInt64(&pm.SuccessfulBatches, 0)
	atomic.StoreInt64(&pm.FailedBatches, 0)
	atomic.StoreInt64(&pm.TicketsGenerated, 0)
	atomic.StoreInt64(&pm.GenerationDraws, 0)
	atomic.StoreInt64(&pm.LockAcquisitions, 0)
	atomic.StoreInt64(&pm.LockAcquisitionTime, 0)
	atomic.StoreInt64(&pm.LockReleases, 0)
	atomic.StoreInt64(&pm.LockFailures, 0)
	atomic.StoreInt64(&pm.AverageBatchTime, 0)
	atomic.StoreInt64(&pm.TotalBatchTime, 0)
	atomic.StoreInt64(&pm.RedisErrors, 0)
	now := time.Now().UnixNano()
	atomic.StoreInt64(&pm.StartTime, now)
	atomic.StoreInt64(&pm.LastUpdateTime, now)
}

// ================================================================================

// PerformanceMonitor 性能监控器
type PerformanceMonitor struct {
	metrics *PerformanceMetrics
	mu      sync.RWMutex
	enabled bool

	// 可选的 Prometheus 导出
	exporter *MetricsExporter
}

// NewPerformanceMonitor 创建新的性能监控器
func NewPerformanceMonitor() *PerformanceMonitor {
	pm := &PerformanceMonitor{
		metrics: &PerformanceMetrics{},
		enabled: true,
	}
	pm.metrics.Reset()
	return pm
}

// Enable 启用性能监控
func (pm *PerformanceMonitor) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.enabled = true
}

// Disable 禁用性能监控
func (pm *PerformanceMonitor) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.enabled = false
}

// IsEnabled 检查是否启用了性能监控
func (pm *PerformanceMonitor) IsEnabled() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.enabled
}

// SetExporter mirrors every recorded event into Prometheus metrics
func (pm *PerformanceMonitor) SetExporter(exporter *MetricsExporter) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.exporter = exporter
}

// active returns whether to record and the exporter, if any
func (pm *PerformanceMonitor) active() (bool, *MetricsExporter) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.enabled, pm.exporter
}

// RecordBatch 记录一次批次生成
func (pm *PerformanceMonitor) RecordBatch(success bool, tickets, draws int, duration time.Duration) {
	enabled, exporter := pm.active()
	if !enabled {
		return
	}

	atomic.AddInt64(&pm.metrics.TotalBatches, 1)
	atomic.AddInt64(&pm.metrics.TotalBatchTime, int64(duration))
	atomic.AddInt64(&pm.metrics.GenerationDraws, int64(draws))

	if success {
		atomic.AddInt64(&pm.metrics.SuccessfulBatches, 1)
		atomic.AddInt64(&pm.metrics.TicketsGenerated, int64(tickets))
	} else {
		atomic.AddInt64(&pm.metrics.FailedBatches, 1)
	}

	// 更新平均批次时间
	total := atomic.LoadInt64(&pm.metrics.TotalBatches)
	totalTime := atomic.LoadInt64(&pm.metrics.TotalBatchTime)
	atomic.StoreInt64(&pm.metrics.AverageBatchTime, totalTime/total)

	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())

	if exporter != nil {
		exporter.observeBatch(success, tickets, draws, duration)
	}
}

// RecordLockAcquisition 记录锁获取操作
func (pm *PerformanceMonitor) RecordLockAcquisition(success bool, duration time.Duration) {
	enabled, exporter := pm.active()
	if !enabled {
		return
	}

	if success {
		atomic.AddInt64(&pm.metrics.LockAcquisitions, 1)
		atomic.AddInt64(&pm.metrics.LockAcquisitionTime, int64(duration))
	} else {
		atomic.AddInt64(&pm.metrics.LockFailures, 1)
	}
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())

	if exporter != nil {
		exporter.observeLock(success, duration)
	}
}

// RecordLockRelease 记录锁释放操作
func (pm *PerformanceMonitor) RecordLockRelease() {
	if enabled, _ := pm.active(); !enabled {
		return
	}

	atomic.AddInt64(&pm.metrics.LockReleases, 1)
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())
}

// RecordRedisError 记录Redis错误
func (pm *PerformanceMonitor) RecordRedisError() {
	enabled, exporter := pm.active()
	if !enabled {
		return
	}

	atomic.AddInt64(&pm.metrics.RedisErrors, 1)
	atomic.StoreInt64(&pm.metrics.LastUpdateTime, time.Now().UnixNano())

	if exporter != nil {
		exporter.redisErrors.Inc()
	}
}

// GetMetrics 获取性能指标的副本
func (pm *PerformanceMonitor) GetMetrics() PerformanceMetrics {
	return PerformanceMetrics{
		TotalBatches:        atomic.LoadInt64(&pm.metrics.TotalBatches),
		SuccessfulBatches:   atomic.LoadInt64(&pm.metrics.SuccessfulBatches),
		FailedBatches:       atomic.LoadInt64(&pm.metrics.FailedBatches),
		TicketsGenerated:    atomic.LoadInt64(&pm.metrics.TicketsGenerated),
		GenerationDraws:     atomic.LoadInt64(&pm.metrics.GenerationDraws),
		LockAcquisitions:    atomic.LoadInt64(&pm.metrics.LockAcquisitions),
		LockAcquisitionTime: atomic.LoadInt64(&pm.metrics.LockAcquisitionTime),
		LockReleases:        atomic.LoadInt64(&pm.metrics.LockReleases),
		LockFailures:        atomic.LoadInt64(&pm.metrics.LockFailures),
		AverageBatchTime:    atomic.LoadInt64(&pm.metrics.AverageBatchTime),
		TotalBatchTime:      atomic.LoadInt64(&pm.metrics.TotalBatchTime),
		RedisErrors:         atomic.LoadInt64(&pm.metrics.RedisErrors),
		StartTime:           atomic.LoadInt64(&pm.metrics.StartTime),
		LastUpdateTime:      atomic.LoadInt64(&pm.metrics.LastUpdateTime),
	}
}

// ResetMetrics 重置性能指标
func (pm *PerformanceMonitor) ResetMetrics() { pm.metrics.Reset() }
