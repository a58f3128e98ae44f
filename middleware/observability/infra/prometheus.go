package infra

import (
	"context"
	"strconv"

	"middleware-pipeline/middleware/observability/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exporta as amostras como métricas Prometheus.
type PrometheusRecorder struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

// NewPrometheusRecorder registra os coletores em reg (prometheus.DefaultRegisterer se nil).
func NewPrometheusRecorder(namespace string, reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &PrometheusRecorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, status class and status code.",
		}, []string{"method", "class", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_request_failures_total",
			Help:      "Requests that ended in a panic or handler error, by class.",
		}, []string{"class"}),
	}
	for _, c := range []prometheus.Collector{p.requests, p.duration, p.failures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PrometheusRecorder) Record(_ context.Context, s domain.Sample) error {
	p.requests.WithLabelValues(s.Method, s.StatusClass(), strconv.Itoa(s.Status)).Inc()

	route := s.Route
	if route == "" {
		route = "unmatched"
	}
	p.duration.WithLabelValues(s.Method, route).Observe(s.Duration.Seconds())

	if s.Failed() {
		p.failures.WithLabelValues(string(s.ErrorClass)).Inc()
	}
	return nil
}

var _ domain.Sink = (*PrometheusRecorder)(nil)
