package mailqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultQueued  = "queued"
	resultInvalid = "invalid"
	resultFailed  = "failed"
)

// Metrics counts notifier outcomes. A nil *Metrics is a valid no-op.
type Metrics struct {
	enqueued *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		enqueued: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "eatsoon",
			Subsystem: "mail",
			Name:      "enqueued_total",
			Help:      "Invitation emails handed to the mail queue, by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) inc(result string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(result).Inc()
}
