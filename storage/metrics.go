package storage

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leos/wxt/metric"
)

// storageMetrics holds Prometheus metrics for storage operations, labeled by
// area.
type storageMetrics struct {
	reads       *prometheus.CounterVec
	writes      *prometheus.CounterVec
	removes     *prometheus.CounterVec
	watchEvents *prometheus.CounterVec
	migrations  *prometheus.CounterVec
}

// newStorageMetrics creates and registers storage metrics with the provided
// registry. The name becomes the instance label distinguishing multiple
// Storage instances sharing one registry.
func newStorageMetrics(registry *metric.MetricsRegistry, name string) (*storageMetrics, error) {
	counter := func(opName, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "wxt",
			Subsystem:   "storage",
			Name:        opName,
			ConstLabels: prometheus.Labels{"instance": name},
			Help:        help,
		}, []string{"area"})
	}

	m := &storageMetrics{
		reads:       counter("reads_total", "Total number of driver read calls"),
		writes:      counter("writes_total", "Total number of driver write calls"),
		removes:     counter("removes_total", "Total number of driver remove calls"),
		watchEvents: counter("watch_events_total", "Total number of change events dispatched to watchers"),
		migrations:  counter("migrations_total", "Total number of item migrations persisted"),
	}

	registrations := []struct {
		metricName string
		collector  *prometheus.CounterVec
	}{
		{"reads", m.reads},
		{"writes", m.writes},
		{"removes", m.removes},
		{"watch_events", m.watchEvents},
		{"migrations", m.migrations},
	}
	for _, reg := range registrations {
		if err := registry.RegisterCounterVec(name, reg.metricName, reg.collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}
