package eloverblik

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a Client reports to.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Requests       *prometheus.CounterVec
	Latency        *prometheus.HistogramVec
	TokenRefreshes prometheus.Counter
}

// NewMetrics creates the client collectors and registers them with reg.
// Pass a nil reg to create unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eloverblik",
				Subsystem: "client",
				Name:      "requests_total",
				Help:      "Requests sent to the Eloverblik API by endpoint, method and status code.",
			},
			[]string{"endpoint", "method", "code"},
		),
		Latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eloverblik",
				Subsystem: "client",
				Name:      "request_duration_seconds",
				Help:      "Latency of requests sent to the Eloverblik API.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		TokenRefreshes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "eloverblik",
				Subsystem: "client",
				Name:      "token_refreshes_total",
				Help:      "Access tokens obtained by exchanging the refresh token.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Requests, m.Latency, m.TokenRefreshes)
	}
	return m
}

func (m *Metrics) observe(endpoint, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.Requests.WithLabelValues(endpoint, method, label).Inc()
	m.Latency.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) tokenRefreshed() {
	if m == nil {
		return
	}
	m.TokenRefreshes.Inc()
}
