// Package monitor implements afd_mon (F) and its per-remote probe
// (G) from spec §4.7: build MSA from AFD_MON_DB, fork/track one probe
// per row, reload on config mtime change, and apply the bounded
// restart-rate policy that gives up on a row after too many rapid
// crashes. Actual forking lives at the cmd/afd_mon level; this
// package is the decision core, mirroring the split internal/fd draws
// between scheduling logic and process management.
package monitor

import "time"

// maxProbeRestarts is spec §4.7/§5's restart ceiling: beyond 20 rapid
// restarts F gives up on that MSA row. The row is left DISCONNECTED,
// and EnableRow only revives a DISABLED row, so ENABLE_MON alone does
// not restart it.
const maxProbeRestarts = 20

// minLifetime is the probe lifetime threshold that resets the restart
// counter. A probe that ran at least this long is considered to have
// recovered, not crash-looped.
const minLifetime = 5 * time.Second

// RestartPolicy tracks one probe row's crash-loop state (spec §4.7's
// "number_of_restarts (decayed: reset to 0 if a restart lived > 5s)").
type RestartPolicy struct {
	restarts int
}

// NewRestartPolicy returns a fresh policy with no restart history.
func NewRestartPolicy() *RestartPolicy { return &RestartPolicy{} }

// RecordExit updates the restart counter from one probe life span and
// reports whether the row should be restarted again. A life of at
// least minLifetime resets the counter to 0 (the probe was healthy
// and just happened to exit); a shorter life increments it, and once
// it reaches maxProbeRestarts the row is given up on.
func (p *RestartPolicy) RecordExit(lifetime time.Duration) (shouldRestart bool) {
	if lifetime >= minLifetime {
		p.restarts = 0
		return true
	}
	p.restarts++
	return p.restarts < maxProbeRestarts
}

// Restarts reports the current decayed restart count, mainly for
// status reporting and tests.
func (p *RestartPolicy) Restarts() int { return p.restarts }

// GivenUp reports whether this row has exhausted its restart budget.
func (p *RestartPolicy) GivenUp() bool { return p.restarts >= maxProbeRestarts }
