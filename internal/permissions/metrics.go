package permissions

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for permission management.
type Metrics struct {
	mutations *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	denials   *prometheus.CounterVec
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// NewMetrics registers the collectors against registerer, or against the
// default registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultMetricsOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opsboard_permission_mutations_total",
		Help: "Permission mutations partitioned by operation and outcome.",
	}, []string{"op", "outcome"})
	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opsboard_permission_refreshes_total",
		Help: "Directory refreshes partitioned by outcome.",
	}, []string{"outcome"})
	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opsboard_capability_denials_total",
		Help: "Requests rejected by the capability gate.",
	}, []string{"permission"})
	registerer.MustRegister(mutations, refreshes, denials)
	return &Metrics{mutations: mutations, refreshes: refreshes, denials: denials}
}

// ObserveMutation counts one mutation attempt.
func (m *Metrics) ObserveMutation(op string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, outcome(err)).Inc()
}

// ObserveRefresh counts one directory refresh.
func (m *Metrics) ObserveRefresh(err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome(err)).Inc()
}

// ObserveDenial counts one capability gate rejection.
func (m *Metrics) ObserveDenial(t Type) {
	if m == nil {
		return
	}
	m.denials.WithLabelValues(t.String()).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case isForbidden(err):
		return "forbidden"
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	case isInvalid(err):
		return "invalid"
	default:
		return "failure"
	}
}
