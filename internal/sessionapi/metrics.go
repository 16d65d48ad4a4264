package sessionapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts session protocol outcomes. A nil *Metrics is a valid no-op
// receiver so tests can run handlers without a registry.
type Metrics struct {
	admissions *prometheus.CounterVec
	verifies   *prometheus.CounterVec
	evictions  *prometheus.CounterVec
	logouts    prometheus.Counter
}

// NewMetrics registers the session protocol metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		admissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_admission_checks_total",
			Help: "Admission check outcomes.",
		}, []string{"result"}),
		verifies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_liveness_verifies_total",
			Help: "Liveness verification outcomes.",
		}, []string{"result"}),
		evictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_evictions_total",
			Help: "Eviction outcomes.",
		}, []string{"result"}),
		logouts: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_logouts_total",
			Help: "Device-initiated logouts.",
		}),
	}
}

func (m *Metrics) admission(result string) {
	if m != nil {
		m.admissions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) verify(result string) {
	if m != nil {
		m.verifies.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) eviction(result string) {
	if m != nil {
		m.evictions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) logout() {
	if m != nil {
		m.logouts.Inc()
	}
}
