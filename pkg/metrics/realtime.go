package metrics

import "github.com/prometheus/client_golang/prometheus"

// RealtimeMetrics tracks SSE fan-out on one API instance.
type RealtimeMetrics struct {
	clients prometheus.Gauge
	dropped *prometheus.CounterVec
}

func NewRealtimeMetrics(reg prometheus.Registerer) *RealtimeMetrics {
	if reg == nil {
		return &RealtimeMetrics{}
	}
	clients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sareehub_realtime_clients",
		Help: "Connected SSE clients.",
	})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sareehub_realtime_dropped_total",
		Help: "Events dropped because a client buffer was full.",
	}, []string{"event_type"})
	reg.MustRegister(clients, dropped)
	return &RealtimeMetrics{clients: clients, dropped: dropped}
}

func (m *RealtimeMetrics) SetClients(n int) {
	if m == nil || m.clients == nil {
		return
	}
	m.clients.Set(float64(n))
}

func (m *RealtimeMetrics) IncDropped(eventType string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(eventType)).Inc()
}
