// Package metrics exposes the prometheus collectors of the placement core.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	scans             *prometheus.CounterVec
	confirms          *prometheus.CounterVec
	tokensIssued      prometheus.Counter
	statusUpdates     *prometheus.CounterVec
	selections        prometheus.Counter
	cascadeFailures   prometheus.Counter
	sessionTransition *prometheus.CounterVec
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "placement",
			Name:      "scans_total",
			Help:      "Attendance scans by outcome code.",
		}, []string{"outcome"}),
		confirms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "placement",
			Name:      "confirms_total",
			Help:      "Attendance confirmations by outcome code.",
		}, []string{"outcome"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "placement",
			Name:      "qr_tokens_issued_total",
			Help:      "Signed QR tokens handed to students.",
		}),
		statusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "placement",
			Name:      "attendance_status_updates_total",
			Help:      "Round attendance rows moved to PASSED or FAILED.",
		}, []string{"status"}),
		selections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "placement",
			Name:      "final_selections_total",
			Help:      "Automatic final selections written by the cascade.",
		}),
		cascadeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "placement",
			Name:      "cascade_failures_total",
			Help:      "Final selection cascades that failed after the status write.",
		}),
		sessionTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "placement",
			Name:      "session_transitions_total",
			Help:      "Session lifecycle transitions by target status.",
		}, []string{"to"}),
	}
	reg.MustRegister(m.scans, m.confirms, m.tokensIssued, m.statusUpdates, m.selections, m.cascadeFailures, m.sessionTransition)
	return m
}

func (m *Metrics) Scan(outcome string) {
	if m != nil {
		m.scans.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Confirm(outcome string) {
	if m != nil {
		m.confirms.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) TokenIssued() {
	if m != nil {
		m.tokensIssued.Inc()
	}
}

func (m *Metrics) StatusUpdated(status string, n int) {
	if m != nil && n > 0 {
		m.statusUpdates.WithLabelValues(status).Add(float64(n))
	}
}

func (m *Metrics) SelectionCreated() {
	if m != nil {
		m.selections.Inc()
	}
}

func (m *Metrics) CascadeFailed() {
	if m != nil {
		m.cascadeFailures.Inc()
	}
}

func (m *Metrics) SessionTransition(to string) {
	if m != nil {
		m.sessionTransition.WithLabelValues(to).Inc()
	}
}
