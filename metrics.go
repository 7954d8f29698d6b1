package sessionauth

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Prometheus instruments for session lifecycle events.
// When no registerer is wired, the instruments exist but are never scraped.
type metrics struct {
	sessionsCreated prometheus.Counter
	sessionsRemoved prometheus.Counter
	validations     *prometheus.CounterVec
	heartbeats      prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionauth",
			Name:      "sessions_created_total",
			Help:      "Sessions created, including replacements of prior logins.",
		}),
		sessionsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionauth",
			Name:      "sessions_removed_total",
			Help:      "Sessions removed explicitly or by staleness detection.",
		}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessionauth",
			Name:      "validations_total",
			Help:      "Session validations by outcome.",
		}, []string{"outcome"}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessionauth",
			Name:      "heartbeats_total",
			Help:      "Lightweight activity updates that found a live session.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.sessionsCreated, m.sessionsRemoved, m.validations, m.heartbeats)
	}

	return m
}

func (m *metrics) observeValidation(res *ValidationResult) {
	if res.Valid {
		m.validations.WithLabelValues("valid").Inc()
		return
	}
	m.validations.WithLabelValues(string(res.Kind)).Inc()
}
