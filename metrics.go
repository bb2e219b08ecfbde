package ldcontext

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Lookup results recorded by storeMetrics.
const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultStale = "stale"
	resultError = "error"
)

// storeMetrics holds Prometheus metrics for ContextStore lookups.
type storeMetrics struct {
	lookups      *prometheus.CounterVec // By result (hit/miss/stale/error)
	fetches      *prometheus.CounterVec // By status (ok/error)
	fetchSeconds prometheus.Histogram
}

// newStoreMetrics creates the store metrics and registers them with reg.
// A nil reg keeps the metrics unregistered but usable.
func newStoreMetrics(reg prometheus.Registerer) (*storeMetrics, error) {
	m := &storeMetrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ldcontext",
			Subsystem: "store",
			Name:      "lookups_total",
			Help:      "Total number of context document lookups by result",
		}, []string{"result"}),

		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ldcontext",
			Subsystem: "store",
			Name:      "fetches_total",
			Help:      "Total number of documents fetched from the next loader",
		}, []string{"status"}),

		fetchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ldcontext",
			Subsystem: "store",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of fetches from the next loader in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	m.lookups, err = registerOrReuse(reg, m.lookups)
	if err != nil {
		return nil, err
	}
	m.fetches, err = registerOrReuse(reg, m.fetches)
	if err != nil {
		return nil, err
	}
	m.fetchSeconds, err = registerOrReuse(reg, m.fetchSeconds)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// registerOrReuse registers c, returning the already registered collector
// when several stores share one registry.
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}
