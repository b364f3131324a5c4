package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the fund aggregation collectors. A nil *Metrics is a valid
// no-op recorder.
type Metrics struct {
	totals        *prometheus.CounterVec
	totalsLatency *prometheus.HistogramVec
	cache         *prometheus.CounterVec
	cacheEntries  prometheus.Gauge
	fundsRecorded prometheus.Counter
	notifyFailed  *prometheus.CounterVec
	lastBlock     prometheus.Gauge
	logsProcessed *prometheus.CounterVec
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Metrics
)

// Default returns the metrics registered with the global Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultRegistry = New(prometheus.DefaultRegisterer)
	})
	return defaultRegistry
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		totals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundscope_totals_requests_total",
			Help: "Totals computations by source and outcome.",
		}, []string{"source", "outcome"}),
		totalsLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fundscope_totals_duration_seconds",
			Help:    "Latency of uncached totals computations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundscope_totals_cache_total",
			Help: "Totals cache lookups and evictions by result.",
		}, []string{"result"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundscope_totals_cache_entries",
			Help: "Totals currently held in the cache.",
		}),
		fundsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fundscope_funds_recorded_total",
			Help: "Number of funds committed to the ledger.",
		}),
		notifyFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundscope_notifications_failed_total",
			Help: "Failed request funded deliveries by subscriber.",
		}, []string{"subscriber"}),
		lastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundscope_watcher_last_block",
			Help: "Last block processed by the Funded event watcher.",
		}),
		logsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fundscope_watcher_logs_total",
			Help: "Funded logs handled by the watcher by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.totals,
			m.totalsLatency,
			m.cache,
			m.cacheEntries,
			m.fundsRecorded,
			m.notifyFailed,
			m.lastBlock,
			m.logsProcessed,
		)
	}
	return m
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func (m *Metrics) ObserveTotals(source, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	source = labelOrUnknown(source)
	m.totals.WithLabelValues(source, labelOrUnknown(outcome)).Inc()
	m.totalsLatency.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cache.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cache.WithLabelValues("miss").Inc()
}

func (m *Metrics) CacheEvict() {
	if m == nil {
		return
	}
	m.cache.WithLabelValues("evict").Inc()
}

func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

func (m *Metrics) FundRecorded() {
	if m == nil {
		return
	}
	m.fundsRecorded.Inc()
}

func (m *Metrics) NotificationFailed(subscriber string) {
	if m == nil {
		return
	}
	m.notifyFailed.WithLabelValues(labelOrUnknown(subscriber)).Inc()
}

func (m *Metrics) SetLastBlock(block uint64) {
	if m == nil {
		return
	}
	m.lastBlock.Set(float64(block))
}

func (m *Metrics) WatcherLog(result string) {
	if m == nil {
		return
	}
	m.logsProcessed.WithLabelValues(labelOrUnknown(result)).Inc()
}

