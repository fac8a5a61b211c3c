package queue

import "github.com/hfs/afd-sub005/internal/status"

// RateBudget reports whether an entry's priority class still has
// budget under any per-host rate split in effect (spec §4.2,
// "within any per-host rate budget"). internal/ratelimit supplies the
// concrete implementation; this package only depends on the interface
// so it stays free of a direct pacer dependency.
type RateBudget interface {
	HasBudget(hostAlias string, priorityClass int) bool
}

// Dispatchable implements the spec §4.2 eligibility rule, applied by D
// on every tick: a QB entry is dispatchable iff
//
//	(active_transfers < allowed_transfers) AND
//	(priority class within any per-host rate budget) AND
//	(no fatal error state)
func Dispatchable(e *QBEntry, host *status.HostStatus, budget RateBudget) bool {
	if e.PID != PendingPID {
		return false
	}
	if host.ActiveTransfers >= host.AllowedTransfers {
		return false
	}
	if host.Flags&status.FlagQueueAutoPaused != 0 {
		return false
	}
	for i := range host.Slots {
		if host.Slots[i].ConnectStatus == status.IsFaulty {
			return false
		}
	}
	if budget != nil && !budget.HasBudget(e.HostAlias, e.PriorityClass) {
		return false
	}
	return true
}
