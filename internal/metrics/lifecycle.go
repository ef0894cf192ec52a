package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livecast_lifecycle_ticks_total",
		Help: "Lifecycle ticks by task and outcome",
	}, []string{"task", "outcome"}) // task=poll|watchdog, outcome=ok|error

	tickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "livecast_lifecycle_tick_duration_seconds",
		Help:    "Lifecycle tick duration",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
	}, []string{"task"})

	engineCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livecast_engine_calls_total",
		Help: "Broadcast engine calls by operation, reason and outcome",
	}, []string{"op", "reason", "outcome"}) // op=start|stop, outcome=ok|error

	terminationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livecast_terminations_total",
		Help: "Termination registry events",
	}, []string{"event"}) // event=armed|cancelled|fired|rejected

	pendingTerminations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livecast_pending_terminations",
		Help: "Terminations currently armed",
	})
)

func ObserveTick(task string, err error, took time.Duration) {
	ticksTotal.WithLabelValues(task, outcome(err)).Inc()
	tickDuration.WithLabelValues(task).Observe(took.Seconds())
}

func IncEngineCall(op, reason string, err error) {
	engineCallsTotal.WithLabelValues(op, reason, outcome(err)).Inc()
}

func IncTermination(event string) {
	terminationsTotal.WithLabelValues(event).Inc()
}

func SetPendingTerminations(n int) {
	pendingTerminations.Set(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
