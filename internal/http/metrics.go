package http

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the transport collectors. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	retries  *prometheus.CounterVec
}

// NewMetrics creates the transport collectors and registers them. Collectors
// already registered by another client are reused.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sapcommissions",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status class.",
		}, []string{"method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sapcommissions",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP exchange latency, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sapcommissions",
			Subsystem: "http",
			Name:      "retries_total",
			Help:      "Attempts repeated after a connection error.",
		}, []string{"method"}),
	}

	if registerer == nil {
		return metrics, nil
	}

	var err error

	metrics.requests, err = register(registerer, metrics.requests)
	if err != nil {
		return nil, err
	}

	metrics.duration, err = register(registerer, metrics.duration)
	if err != nil {
		return nil, err
	}

	metrics.retries, err = register(registerer, metrics.retries)
	if err != nil {
		return nil, err
	}

	return metrics, nil
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) (T, error) {
	err := registerer.Register(collector)
	if err == nil {
		return collector, nil
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(T); ok {
			return existing, nil
		}
	}

	return collector, fmt.Errorf("registering transport metrics: %w", err)
}

func (m *Metrics) observe(method, status string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.requests.WithLabelValues(method, status).Inc()
	m.duration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (m *Metrics) observeRetry(method string) {
	if m == nil {
		return
	}

	m.retries.WithLabelValues(method).Inc()
}
