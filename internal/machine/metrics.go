package machine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clockwork_stable_state_evaluations_total",
		Help: "Total number of stable-state evaluations",
	})

	stateChangesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clockwork_state_changes_total",
		Help: "Total number of committed state changes",
	})

	dirtyFlagsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clockwork_dirty_flags_total",
		Help: "Total number of needs-check flags set by propagation",
	})

	actionFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clockwork_action_failures_total",
		Help: "Total number of actions that finished with status Failed",
	})

	packagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clockwork_packages_dropped_total",
		Help: "Total number of packages dropped before handling",
	}, []string{"reason"})

	configErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clockwork_config_errors_total",
		Help: "Total number of configuration errors recorded",
	})

	defectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clockwork_protocol_defects_total",
		Help: "Total number of execution-stack defects detected",
	})
)
