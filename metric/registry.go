// Package metric manages Prometheus metric registration for the wxt storage
// layer. A MetricsRegistry isolates this module's collectors in a dedicated
// Prometheus registry so embedding applications control exposition.
package metric

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leos/wxt/errors"
)

// MetricsRegistrar defines the interface for registering instance-specific
// metrics.
type MetricsRegistrar interface {
	RegisterCounter(instance, metricName string, counter prometheus.Counter) error
	RegisterGauge(instance, metricName string, gauge prometheus.Gauge) error
	RegisterHistogram(instance, metricName string, histogram prometheus.Histogram) error
	RegisterCounterVec(instance, metricName string, counterVec *prometheus.CounterVec) error
	RegisterGaugeVec(instance, metricName string, gaugeVec *prometheus.GaugeVec) error
	RegisterHistogramVec(instance, metricName string, histogramVec *prometheus.HistogramVec) error
	Unregister(instance, metricName string) bool
}

// MetricsRegistry manages the registration and lifecycle of metrics.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.Mutex
}

// NewMetricsRegistry creates an empty metrics registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		registeredMetrics:  make(map[string]prometheus.Collector),
	}
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Handler returns an HTTP handler exposing the registry in Prometheus text
// format.
func (r *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}

// register adds one collector under "<instance>.<metricName>", rejecting
// duplicates at both the registry and Prometheus level.
func (r *MetricsRegistry) register(operation, instance, metricName string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", instance, metricName)

	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for instance %s", metricName, instance),
			"MetricsRegistry", operation, "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "MetricsRegistry", operation,
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "MetricsRegistry", operation,
			"register collector with prometheus")
	}

	r.registeredMetrics[key] = collector
	return nil
}

// RegisterCounter registers a counter metric for an instance.
func (r *MetricsRegistry) RegisterCounter(instance, metricName string, counter prometheus.Counter) error {
	return r.register("RegisterCounter", instance, metricName, counter)
}

// RegisterGauge registers a gauge metric for an instance.
func (r *MetricsRegistry) RegisterGauge(instance, metricName string, gauge prometheus.Gauge) error {
	return r.register("RegisterGauge", instance, metricName, gauge)
}

// RegisterHistogram registers a histogram metric for an instance.
func (r *MetricsRegistry) RegisterHistogram(instance, metricName string, histogram prometheus.Histogram) error {
	return r.register("RegisterHistogram", instance, metricName, histogram)
}

// RegisterCounterVec registers a counter vector metric for an instance.
func (r *MetricsRegistry) RegisterCounterVec(instance, metricName string, counterVec *prometheus.CounterVec) error {
	return r.register("RegisterCounterVec", instance, metricName, counterVec)
}

// RegisterGaugeVec registers a gauge vector metric for an instance.
func (r *MetricsRegistry) RegisterGaugeVec(instance, metricName string, gaugeVec *prometheus.GaugeVec) error {
	return r.register("RegisterGaugeVec", instance, metricName, gaugeVec)
}

// RegisterHistogramVec registers a histogram vector metric for an instance.
func (r *MetricsRegistry) RegisterHistogramVec(instance, metricName string, histogramVec *prometheus.HistogramVec) error {
	return r.register("RegisterHistogramVec", instance, metricName, histogramVec)
}

// Unregister removes a metric from the registry.
func (r *MetricsRegistry) Unregister(instance, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", instance, metricName)

	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	success := r.prometheusRegistry.Unregister(collector)
	if success {
		delete(r.registeredMetrics, key)
	}

	return success
}
