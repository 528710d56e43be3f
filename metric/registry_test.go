package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leos/wxt/errors"
)

func newTestCounter(name string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "wxt",
		Subsystem: "test",
		Name:      name,
		Help:      "test counter",
	})
}

func TestRegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	err := registry.RegisterCounter("storage", "ops", newTestCounter("ops_total"))
	require.NoError(t, err)
}

func TestRegisterCounter_DuplicateKey(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, registry.RegisterCounter("storage", "ops", newTestCounter("ops_total")))

	err := registry.RegisterCounter("storage", "ops", newTestCounter("other_total"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err), "duplicate registration should classify as invalid")
}

func TestRegisterCounter_PrometheusConflict(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, registry.RegisterCounter("storage", "ops", newTestCounter("ops_total")))

	// Same collector identity under a different registry key still collides
	// inside Prometheus itself.
	err := registry.RegisterCounter("storage", "ops2", newTestCounter("ops_total"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestRegisterVectors(t *testing.T) {
	registry := NewMetricsRegistry()

	counterVec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wxt",
		Subsystem: "test",
		Name:      "vec_total",
		Help:      "test counter vec",
	}, []string{"area"})
	require.NoError(t, registry.RegisterCounterVec("storage", "vec", counterVec))

	gaugeVec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "wxt",
		Subsystem: "test",
		Name:      "gauge_vec",
		Help:      "test gauge vec",
	}, []string{"area"})
	require.NoError(t, registry.RegisterGaugeVec("storage", "gauge", gaugeVec))
}

func TestUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NoError(t, registry.RegisterCounter("storage", "ops", newTestCounter("ops_total")))

	assert.True(t, registry.Unregister("storage", "ops"))
	assert.False(t, registry.Unregister("storage", "ops"), "second unregister should report absence")

	// Slot is free again after unregistration
	require.NoError(t, registry.RegisterCounter("storage", "ops", newTestCounter("ops_total")))
}

func TestHandler(t *testing.T) {
	registry := NewMetricsRegistry()
	assert.NotNil(t, registry.Handler())
}
