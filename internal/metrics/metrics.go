package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the reservation engine.
// All observe methods are nil-safe so services can run unmetered.
type BookingMetrics struct {
	reservationsTotal  *prometheus.CounterVec
	cancellationsTotal prometheus.Counter
	completionsTotal   prometheus.Counter
	payoutsTotal       prometheus.Counter
	reserveLatency     prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookingledger",
			Subsystem: "reservation",
			Name:      "reserve_total",
			Help:      "Total Reserve calls by outcome",
		}, []string{"outcome"}),
		cancellationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookingledger",
			Subsystem: "lifecycle",
			Name:      "cancellations_total",
			Help:      "Total successful cancellations",
		}),
		completionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookingledger",
			Subsystem: "lifecycle",
			Name:      "completions_total",
			Help:      "Total successful completions",
		}),
		payoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookingledger",
			Subsystem: "payout",
			Name:      "requests_total",
			Help:      "Total payout requests created",
		}),
		reserveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bookingledger",
			Subsystem: "reservation",
			Name:      "reserve_latency_seconds",
			Help:      "Latency of Reserve including lock wait",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationsTotal, m.cancellationsTotal, m.completionsTotal, m.payoutsTotal, m.reserveLatency)
	return m
}

func (m *BookingMetrics) ObserveReserve(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(outcome).Inc()
	m.reserveLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveCancellation() {
	if m == nil {
		return
	}
	m.cancellationsTotal.Inc()
}

func (m *BookingMetrics) ObserveCompletion() {
	if m == nil {
		return
	}
	m.completionsTotal.Inc()
}

func (m *BookingMetrics) ObservePayout() {
	if m == nil {
		return
	}
	m.payoutsTotal.Inc()
}
