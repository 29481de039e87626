package outreach

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "sdr"

var (
	messagesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: subsystem,
			Name:      "messages_total",
			Help:      "Count of outreach messages attempted, by channel and status.",
		},
		[]string{"channel", "status"},
	)
	dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: subsystem,
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time of a bulk dispatch, including send intervals.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)
	dispatchInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: subsystem,
			Name:      "dispatch_in_flight",
			Help:      "Number of bulk dispatches currently running.",
		},
	)
)

var registerMetrics sync.Once

// Register adds the dispatcher metrics to reg. Only the first call has effect.
func Register(reg prometheus.Registerer) {
	registerMetrics.Do(func() {
		reg.MustRegister(messagesCounter)
		reg.MustRegister(dispatchDuration)
		reg.MustRegister(dispatchInFlight)
	})
}

func recordMessage(channel, status string) {
	if channel == "" {
		channel = "none"
	}
	messagesCounter.WithLabelValues(channel, status).Inc()
}
