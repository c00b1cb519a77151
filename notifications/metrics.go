package notifications

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts delivered and failed notices per label. A notice delivered by
// only some senders counts in both. A nil *Metrics is a no-op.
type Metrics struct {
	sent   *prometheus.CounterVec
	failed *prometheus.CounterVec
}

// NewMetrics registers the notification counters on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discussion_notifications_sent_total",
			Help: "Notices delivered to subscribers by at least one sender.",
		}, []string{"label"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "discussion_notifications_failed_total",
			Help: "Notices that at least one sender failed to deliver.",
		}, []string{"label"}),
	}
	if err := reg.Register(m.sent); err != nil {
		return nil, err
	}
	if err := reg.Register(m.failed); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(label string, users int, err error) {
	if m == nil || users == 0 {
		return
	}
	if err != nil {
		m.failed.WithLabelValues(label).Add(float64(users))
	}
	if delivered(err) {
		m.sent.WithLabelValues(label).Add(float64(users))
	}
}
