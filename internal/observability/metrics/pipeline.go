package metrics

import (
	"strconv"
	"time"
)

// StageTransition records the orchestrator entering state.
func StageTransition(network, state string) {
	if !enabled {
		return
	}
	stageTransitionsTotal.WithLabelValues(network, state).Inc()
}

// Deploy records a contract creation attempt.
func Deploy(network, status string) {
	if !enabled {
		return
	}
	deployTotal.WithLabelValues(network, status).Inc()
}

// ConfirmationWait records how long reaching a confirmation depth took.
func ConfirmationWait(network string, confirmations uint64, d time.Duration) {
	if !enabled {
		return
	}
	confirmationWait.WithLabelValues(network, strconv.FormatUint(confirmations, 10)).Observe(d.Seconds())
}

// Verification records a classified verification outcome.
func Verification(network, outcome string) {
	if !enabled {
		return
	}
	verificationTotal.WithLabelValues(network, outcome).Inc()
}
