package invitation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"eatsoon/cmd/internal/fnerr"
)

// Metrics records acceptance outcomes. A nil *Metrics is a valid no-op.
type Metrics struct {
	accepts  *prometheus.CounterVec
	attempts prometheus.Histogram
}

// NewMetrics registers acceptance metrics on reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		accepts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eatsoon",
			Subsystem: "invitation",
			Name:      "accept_total",
			Help:      "Invitation acceptance calls by outcome kind.",
		}, []string{"kind"}),
		attempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eatsoon",
			Subsystem: "invitation",
			Name:      "accept_attempts",
			Help:      "Transaction attempts per acceptance call.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
	}
}

func (m *Metrics) observe(err error, attempts int) {
	if m == nil {
		return
	}
	kind := "ok"
	if err != nil {
		kind = fnerr.Slug(fnerr.KindOf(err))
	}
	m.accepts.WithLabelValues(kind).Inc()
	if attempts > 0 {
		m.attempts.Observe(float64(attempts))
	}
}
