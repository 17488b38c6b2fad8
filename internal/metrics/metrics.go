package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the execution subsystem.
// A nil *Metrics is valid and turns every recording call into a no-op,
// so components can run without observability wired up.
type Metrics struct {
	OrdersSubmitted prometheus.Counter
	OrdersRejected  prometheus.Counter
	OrdersExpired   prometheus.Counter
	FillsApplied    prometheus.Counter
	DuplicateFills  prometheus.Counter
	RetriesTotal    prometheus.Counter
	DLQTotal        prometheus.Counter

	CircuitState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	OpenOrders   prometheus.Gauge
	DLQSize      prometheus.Gauge

	FillLatency prometheus.Histogram
}

// New registers and returns all execution metrics.
func New() *Metrics {
	m := &Metrics{
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execution_orders_submitted_total",
			Help: "Orders accepted by the OMS and sent to the venue",
		}),
		OrdersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execution_orders_rejected_total",
			Help: "Orders that ended REJECTED",
		}),
		OrdersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execution_orders_expired_total",
			Help: "Orders expired by the OMS timeout monitor",
		}),
		FillsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execution_fills_applied_total",
			Help: "Fills reconciled into order and position state",
		}),
		DuplicateFills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execution_fills_duplicate_total",
			Help: "Fill deliveries ignored as duplicates",
		}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execution_retries_total",
			Help: "Adapter call retries performed by the resiliency layer",
		}),
		DLQTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execution_dlq_total",
			Help: "Requests routed to the dead-letter queue",
		}),
		CircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execution_circuit_state",
			Help: "Circuit breaker state: 0=closed, 1=open, 2=half-open",
		}),
		OpenOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execution_open_orders",
			Help: "Currently active orders in the OMS",
		}),
		DLQSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execution_dlq_size",
			Help: "Current dead-letter queue depth",
		}),
		FillLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "execution_fill_latency_seconds",
			Help:    "Time from order creation to fill receipt",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}

	prometheus.MustRegister(
		m.OrdersSubmitted,
		m.OrdersRejected,
		m.OrdersExpired,
		m.FillsApplied,
		m.DuplicateFills,
		m.RetriesTotal,
		m.DLQTotal,
		m.CircuitState,
		m.OpenOrders,
		m.DLQSize,
		m.FillLatency,
	)
	return m
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) IncOrdersSubmitted() {
	if m != nil {
		m.OrdersSubmitted.Inc()
	}
}

func (m *Metrics) IncOrdersRejected() {
	if m != nil {
		m.OrdersRejected.Inc()
	}
}

func (m *Metrics) IncOrdersExpired() {
	if m != nil {
		m.OrdersExpired.Inc()
	}
}

func (m *Metrics) ObserveFill(latencySeconds float64) {
	if m != nil {
		m.FillsApplied.Inc()
		m.FillLatency.Observe(latencySeconds)
	}
}

func (m *Metrics) IncDuplicateFills() {
	if m != nil {
		m.DuplicateFills.Inc()
	}
}

func (m *Metrics) IncRetries() {
	if m != nil {
		m.RetriesTotal.Inc()
	}
}

func (m *Metrics) IncDLQ() {
	if m != nil {
		m.DLQTotal.Inc()
	}
}

func (m *Metrics) SetCircuitState(state float64) {
	if m != nil {
		m.CircuitState.Set(state)
	}
}

func (m *Metrics) SetOpenOrders(n int) {
	if m != nil {
		m.OpenOrders.Set(float64(n))
	}
}

func (m *Metrics) SetDLQSize(n int) {
	if m != nil {
		m.DLQSize.Set(float64(n))
	}
}
