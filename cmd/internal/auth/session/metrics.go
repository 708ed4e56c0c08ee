package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts session lifecycle outcomes. A nil *Metrics is a no-op.
type Metrics struct {
	issued       *prometheus.CounterVec
	revoked      *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	notifyFailed *prometheus.CounterVec
}

// NewMetrics registers the session collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "sessions_issued_total",
			Help:      "Session records created, by operation.",
		}, []string{"op"}),
		revoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "sessions_revoked_total",
			Help:      "Session records deleted, by reason.",
		}, []string{"reason"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "auth_rejected_total",
			Help:      "Rejected authentication attempts, by reason.",
		}, []string{"reason"}),
		notifyFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "notifications_failed_total",
			Help:      "Notifications that could not be delivered, by kind.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.issued, m.revoked, m.rejected, m.notifyFailed)
	}
	return m
}

func (m *Metrics) sessionIssued(op string) {
	if m != nil {
		m.issued.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) sessionsRevoked(reason string, n int64) {
	if m != nil && n > 0 {
		m.revoked.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) authRejected(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) notifyFailure(kind string) {
	if m != nil {
		m.notifyFailed.WithLabelValues(kind).Inc()
	}
}
