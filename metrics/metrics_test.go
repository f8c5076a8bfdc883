package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue sums the samples of name whose labels include want.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if v, ok := want[lp.GetName()]; ok && v != lp.GetValue() {
					continue metric
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNew(reg)
	m.ObserveRequest("gallery", "success", time.Second)
	m.ObserveRequest("gallery", "success", time.Second)
	m.ObserveRequest("gallery", "fetch", time.Second)

	assert.Equal(t, 2.0, counterValue(t, reg, "imagerelay_requests_total", map[string]string{"route": "gallery", "outcome": "success"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "imagerelay_requests_total", map[string]string{"outcome": "fetch"}))
}

func TestMustNewPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustNew(reg)
	assert.Panics(t, func() { MustNew(reg) })
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("r", "success", time.Second)
		m.ObserveStage("fetch", "ok", time.Second)
		m.ObserveVariant("main", 3, 1024)
	})
}
