package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for the intake conversation flow.
type BotMetrics struct {
	eventsTotal      *prometheus.CounterVec
	handoffTotal     *prometheus.CounterVec
	assistantTotal   *prometheus.CounterVec
	assistantLatency *prometheus.HistogramVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadbot",
			Subsystem: "intake",
			Name:      "events_total",
			Help:      "Total inbound conversation events",
		}, []string{"kind", "status"}),
		handoffTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadbot",
			Subsystem: "intake",
			Name:      "handoff_total",
			Help:      "Total operator handoff attempts",
		}, []string{"status"}),
		assistantTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadbot",
			Subsystem: "assistant",
			Name:      "requests_total",
			Help:      "Total assistant fallback requests",
		}, []string{"provider", "status"}),
		assistantLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadbot",
			Subsystem: "assistant",
			Name:      "latency_seconds",
			Help:      "Latency of assistant fallback requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.eventsTotal, m.handoffTotal, m.assistantTotal, m.assistantLatency)
	return m
}

func (m *BotMetrics) ObserveEvent(kind, status string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(kind, status).Inc()
}

func (m *BotMetrics) ObserveHandoff(status string) {
	if m == nil {
		return
	}
	m.handoffTotal.WithLabelValues(status).Inc()
}

func (m *BotMetrics) ObserveAssistant(provider, status string, seconds float64) {
	if m == nil {
		return
	}
	m.assistantTotal.WithLabelValues(provider, status).Inc()
	m.assistantLatency.WithLabelValues(provider).Observe(seconds)
}
