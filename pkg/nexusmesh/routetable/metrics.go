package routetable

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "nexusmesh"
	metricsSubsystem = "routetable"
)

// Metrics exposes route table state to Prometheus.
type Metrics struct {
	Routes       prometheus.Gauge
	LastSyncedAt prometheus.Gauge
	Syncs        *prometheus.CounterVec
	Updates      *prometheus.CounterVec
}

// NewMetrics registers the route table collectors with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Routes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "routes", Help: "Number of routes in the table",
		}),
		LastSyncedAt: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "last_synced_at", Help: "Unix timestamp of the last successful reconciliation",
		}),
		Syncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "syncs_total", Help: "Reconciliations against the registry listing",
		}, []string{"result"}),
		Updates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: metricsSubsystem,
			Name: "updates_total", Help: "Route announcements received",
		}, []string{"result"}),
	}
}

func (m *Metrics) synced(routes int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Syncs.WithLabelValues("error").Inc()
		return
	}
	m.Syncs.WithLabelValues("ok").Inc()
	m.LastSyncedAt.SetToCurrentTime()
	m.Routes.Set(float64(routes))
}

func (m *Metrics) updated(routes int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Updates.WithLabelValues("malformed").Inc()
		return
	}
	m.Updates.WithLabelValues("applied").Inc()
	m.Routes.Set(float64(routes))
}
