package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MonitorMetrics holds Prometheus metrics for the monitor loop and notification delivery.
// All methods are safe to call on a nil receiver.
type MonitorMetrics struct {
	TicksTotal             prometheus.Counter
	TickDuration           prometheus.Histogram
	TransactionsReported   *prometheus.CounterVec
	RecordsSkipped         *prometheus.CounterVec
	Notifications          *prometheus.CounterVec
	AddressFailures        prometheus.Counter
	BalanceRefreshFailures prometheus.Counter
	WatchedAddresses       prometheus.Gauge
	AnalyticsDropped       prometheus.Counter
}

// NewMonitorMetrics creates monitor metrics registered on reg
func NewMonitorMetrics(reg prometheus.Registerer) *MonitorMetrics {
	factory := promauto.With(reg)
	return &MonitorMetrics{
		TicksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "monitor_ticks_total",
			Help: "Total number of completed monitor ticks",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_tick_duration_seconds",
			Help:    "Time taken to run one monitor tick",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		TransactionsReported: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_transactions_reported_total",
			Help: "Total number of transactions forwarded to handlers",
		}, []string{"status"}),
		RecordsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_records_skipped_total",
			Help: "Total number of ledger records skipped during classification",
		}, []string{"reason"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_notifications_total",
			Help: "Notification delivery attempts by outcome and payload variant",
		}, []string{"outcome", "variant"}),
		AddressFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "monitor_address_failures_total",
			Help: "Total number of failed per-address polling cycles",
		}),
		BalanceRefreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "monitor_balance_refresh_failures_total",
			Help: "Total number of failed balance refreshes",
		}),
		WatchedAddresses: factory.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_watched_addresses",
			Help: "Number of addresses being monitored",
		}),
		AnalyticsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "monitor_analytics_dropped_total",
			Help: "Analytics events dropped because the queue was full",
		}),
	}
}

// ObserveTick records a completed tick
func (m *MonitorMetrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	m.TickDuration.Observe(d.Seconds())
}

// IncReported counts a forwarded transaction
func (m *MonitorMetrics) IncReported(status string) {
	if m == nil {
		return
	}
	m.TransactionsReported.WithLabelValues(status).Inc()
}

// IncSkipped counts a skipped record
func (m *MonitorMetrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.RecordsSkipped.WithLabelValues(reason).Inc()
}

// IncNotification counts a delivery attempt
func (m *MonitorMetrics) IncNotification(outcome, variant string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome, variant).Inc()
}

// IncAddressFailure counts a failed polling cycle
func (m *MonitorMetrics) IncAddressFailure() {
	if m == nil {
		return
	}
	m.AddressFailures.Inc()
}

// IncBalanceFailure counts a failed balance refresh
func (m *MonitorMetrics) IncBalanceFailure() {
	if m == nil {
		return
	}
	m.BalanceRefreshFailures.Inc()
}

// SetWatched sets the number of watched addresses
func (m *MonitorMetrics) SetWatched(n int) {
	if m == nil {
		return
	}
	m.WatchedAddresses.Set(float64(n))
}

// IncAnalyticsDropped counts a dropped analytics event
func (m *MonitorMetrics) IncAnalyticsDropped() {
	if m == nil {
		return
	}
	m.AnalyticsDropped.Inc()
}
