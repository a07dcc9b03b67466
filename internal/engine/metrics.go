package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clockwork_poll_cycles_total",
		Help: "Total number of poll cycles run",
	})

	passesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clockwork_poll_passes_total",
		Help: "Total number of fixed-point passes run",
	})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clockwork_poll_cycle_duration_seconds",
		Help:    "Duration of one poll cycle",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	})

	budgetExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clockwork_poll_budget_exhausted_total",
		Help: "Total number of poll cycles that hit the pass budget",
	})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clockwork_commands_total",
		Help: "Total number of submitted registry commands by result",
	}, []string{"result"})

	timersScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clockwork_timers_scheduled_total",
		Help: "Total number of timer triggers scheduled",
	})
)
