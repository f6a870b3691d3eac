package service

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flowedit/internal/collision"
	"flowedit/internal/interaction"
)

// Metrics holds the editor's prometheus counters on a private registry so
// several instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	Collisions      *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	Drags           *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Collisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowedit",
			Name:      "collision_resolutions_total",
			Help:      "Node drops settled by the collision resolver, by outcome.",
		}, []string{"outcome"}),
		PersistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowedit",
			Name:      "persistence_failures_total",
			Help:      "Persistence calls that failed or were dropped, by operation.",
		}, []string{"op"}),
		Drags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowedit",
			Name:      "drags_total",
			Help:      "Drag gestures started, by interaction mode.",
		}, []string{"mode"}),
	}
	m.registry.MustRegister(m.Collisions, m.PersistFailures, m.Drags)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) DragStarted(mode interaction.Mode) {
	if m == nil {
		return
	}
	m.Drags.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) CollisionSettled(outcome collision.Outcome) {
	if m == nil {
		return
	}
	m.Collisions.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) PersistenceFailed(op string) {
	if m == nil {
		return
	}
	m.PersistFailures.WithLabelValues(op).Inc()
}
