// Package metrics holds the prometheus collectors of the indexer and the resolution engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prophyt"

// Metrics methods are safe on a nil receiver so components can run without a registry.
type Metrics struct {
	registry *prometheus.Registry

	eventsProcessed  *prometheus.CounterVec
	pollErrors       *prometheus.CounterVec
	cursorResets     *prometheus.CounterVec
	cursorSeq        *prometheus.GaugeVec
	blockedOnMarket  *prometheus.CounterVec
	blockedStreams   *prometheus.GaugeVec
	streamRestarts   *prometheus.CounterVec
	resolutions      *prometheus.CounterVec
	defaultOutcomes  prometheus.Counter
	sweepDuration    prometheus.Histogram
	feedDropped      prometheus.Counter
	priceRefreshErrs prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Ledger events applied per stream",
		}, []string{"stream"}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_errors_total",
			Help:      "Failed poll iterations per stream",
		}, []string{"stream"}),
		cursorResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cursor_resets_total",
			Help:      "Cursors cleared after the ledger reported a pruned position",
		}, []string{"stream"}),
		cursorSeq: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cursor_position_seq",
			Help:      "Event sequence of the last persisted cursor",
		}, []string{"stream"}),
		blockedOnMarket: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_on_missing_market_total",
			Help:      "Batches held back because the referenced market is not indexed yet",
		}, []string{"stream"}),
		blockedStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_blocked_on_missing_market",
			Help:      "1 while a stream is waiting for a missing market",
		}, []string{"stream"}),
		streamRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_restarts_total",
			Help:      "Stream loops restarted after a panic",
		}, []string{"stream"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Market resolution attempts by path and result",
		}, []string{"path", "result"}),
		defaultOutcomes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolution_default_outcome_total",
			Help:      "Markets resolved NO because no outcome signal was found",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of resolution sweeps",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		feedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_dropped_total",
			Help:      "Live feed messages dropped for slow subscribers",
		}),
		priceRefreshErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_refresh_errors_total",
			Help:      "Failed price cache refreshes",
		}),
	}
	registry.MustRegister(
		m.eventsProcessed,
		m.pollErrors,
		m.cursorResets,
		m.cursorSeq,
		m.blockedOnMarket,
		m.blockedStreams,
		m.streamRestarts,
		m.resolutions,
		m.defaultOutcomes,
		m.sweepDuration,
		m.feedDropped,
		m.priceRefreshErrs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) EventsProcessed(stream string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsProcessed.WithLabelValues(stream).Add(float64(n))
}

func (m *Metrics) PollError(stream string) {
	if m == nil {
		return
	}
	m.pollErrors.WithLabelValues(stream).Inc()
}

func (m *Metrics) CursorReset(stream string) {
	if m == nil {
		return
	}
	m.cursorResets.WithLabelValues(stream).Inc()
	m.cursorSeq.WithLabelValues(stream).Set(0)
}

func (m *Metrics) CursorPosition(stream string, seq uint64) {
	if m == nil {
		return
	}
	m.cursorSeq.WithLabelValues(stream).Set(float64(seq))
}

// BlockedOnMarket records whether a stream is currently held back by a missing market.
func (m *Metrics) BlockedOnMarket(stream string, blocked bool) {
	if m == nil {
		return
	}
	if blocked {
		m.blockedOnMarket.WithLabelValues(stream).Inc()
		m.blockedStreams.WithLabelValues(stream).Set(1)
		return
	}
	m.blockedStreams.WithLabelValues(stream).Set(0)
}

func (m *Metrics) StreamRestart(stream string) {
	if m == nil {
		return
	}
	m.streamRestarts.WithLabelValues(stream).Inc()
}

func (m *Metrics) Resolution(path, result string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(path, result).Inc()
}

func (m *Metrics) DefaultOutcome() {
	if m == nil {
		return
	}
	m.defaultOutcomes.Inc()
}

func (m *Metrics) SweepDuration(seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
}

func (m *Metrics) FeedDropped() {
	if m == nil {
		return
	}
	m.feedDropped.Inc()
}

func (m *Metrics) PriceRefreshError() {
	if m == nil {
		return
	}
	m.priceRefreshErrs.Inc()
}
