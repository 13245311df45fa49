package metrics

import "github.com/prometheus/client_golang/prometheus"

// QualificationMetrics exposes counters/histograms for the qualification
// engine.
type QualificationMetrics struct {
	turnsTotal       *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	providerFailures *prometheus.CounterVec
	activeGauge      prometheus.Gauge
	timeoutsTotal    prometheus.Counter
}

func NewQualificationMetrics(reg prometheus.Registerer) *QualificationMetrics {
	m := &QualificationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadqual",
			Subsystem: "engine",
			Name:      "turns_total",
			Help:      "Processed qualification turns by resulting status",
		}, []string{"status"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadqual",
			Subsystem: "provider",
			Name:      "call_latency_seconds",
			Help:      "Latency of AI provider calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadqual",
			Subsystem: "provider",
			Name:      "failures_total",
			Help:      "AI provider calls that failed after retries",
		}, []string{"op"}),
		activeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "leadqual",
			Subsystem: "engine",
			Name:      "active_conversations",
			Help:      "Conversations currently in progress",
		}),
		timeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "leadqual",
			Subsystem: "engine",
			Name:      "timeouts_total",
			Help:      "Conversations terminated by the inactivity reaper",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.providerLatency, m.providerFailures, m.activeGauge, m.timeoutsTotal)
	return m
}

func (m *QualificationMetrics) ObserveTurn(status string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(status).Inc()
}

func (m *QualificationMetrics) ObserveProviderCall(op string, seconds float64) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(op).Observe(seconds)
}

func (m *QualificationMetrics) ObserveProviderFailure(op string) {
	if m == nil {
		return
	}
	m.providerFailures.WithLabelValues(op).Inc()
}

func (m *QualificationMetrics) SetActiveConversations(n int) {
	if m == nil {
		return
	}
	m.activeGauge.Set(float64(n))
}

func (m *QualificationMetrics) ObserveTimeout() {
	if m == nil {
		return
	}
	m.timeoutsTotal.Inc()
}
