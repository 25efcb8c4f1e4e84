package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.EventsProcessed("s", 3)
	m.BlockedOnMarket("s", true)
	m.Resolution("manual", "ok")
	assert.NotNil(t, m.Handler())
}

func TestBlockedOnMarket(t *testing.T) {
	m := New()
	m.BlockedOnMarket("bet", true)
	m.BlockedOnMarket("bet", true)
	assert.Equal(t, 2.0, value(t, m.blockedOnMarket.WithLabelValues("bet")))
	assert.Equal(t, 1.0, value(t, m.blockedStreams.WithLabelValues("bet")))

	m.BlockedOnMarket("bet", false)
	assert.Equal(t, 0.0, value(t, m.blockedStreams.WithLabelValues("bet")))
	assert.Equal(t, 2.0, value(t, m.blockedOnMarket.WithLabelValues("bet")))
}

func TestEventsProcessed(t *testing.T) {
	m := New()
	m.EventsProcessed("market", 5)
	m.EventsProcessed("market", 0)
	assert.Equal(t, 5.0, value(t, m.eventsProcessed.WithLabelValues("market")))
}
