package quickpick

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

// MetricsExporter publishes engine activity as Prometheus metrics
type MetricsExporter struct {
	batches     *prometheus.CounterVec
	tickets     prometheus.Counter
	draws       prometheus.Counter
	redisErrors prometheus.Counter
	lockResults *prometheus.CounterVec
	batchTime   prometheus.Histogram
	lockWait    prometheus.Histogram
	breaker     *prometheus.GaugeVec
}

// NewMetricsExporter creates the metrics and registers them with reg.
// A nil reg leaves them unregistered, which is what tests want.
func NewMetricsExporter(reg prometheus.Registerer) *MetricsExporter {
	factory := promauto.With(reg)

	return &MetricsExporter{
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quickpick_batches_total",
			Help: "Ticket batches generated, by result",
		}, []string{"result"}),
		tickets: factory.NewCounter(prometheus.CounterOpts{
			Name: "quickpick_tickets_total",
			Help: "Unique tickets accepted",
		}),
		draws: factory.NewCounter(prometheus.CounterOpts{
			Name: "quickpick_candidate_tickets_total",
			Help: "Candidate tickets drawn, duplicates included",
		}),
		redisErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "quickpick_redis_errors_total",
			Help: "Redis command failures",
		}),
		lockResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quickpick_lock_acquisitions_total",
			Help: "Distributed lock acquisitions, by result",
		}, []string{"result"}),
		batchTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quickpick_batch_duration_seconds",
			Help:    "Time to generate and store a batch",
			Buckets: prometheus.DefBuckets,
		}),
		lockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quickpick_lock_wait_seconds",
			Help:    "Time spent acquiring the distributed lock",
			Buckets: prometheus.DefBuckets,
		}),
		breaker: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quickpick_circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		}, []string{"name"}),
	}
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (x *MetricsExporter) observeBatch(success bool, tickets, draws int, d time.Duration) {
	x.batches.WithLabelValues(resultLabel(success)).Inc()
	x.draws.Add(float64(draws))
	if success {
		x.tickets.Add(float64(tickets))
	}
	x.batchTime.Observe(d.Seconds())
}

func (x *MetricsExporter) observeLock(success bool, d time.Duration) {
	x.lockResults.WithLabelValues(resultLabel(success)).Inc()
	if success {
		x.lockWait.Observe(d.Seconds())
	}
}

func (x *MetricsExporter) observeBreaker(name string, state gobreaker.State) {
	x.breaker.WithLabelValues(name).Set(float64(state))
}
