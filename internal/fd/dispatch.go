package fd

import (
	"github.com/hfs/afd-sub005/internal/queue"
	"github.com/hfs/afd-sub005/internal/status"
)

// claimedPID marks a job slot as claimed by this dispatch pass before
// the real worker pid is known; the cmd/fd level overwrites it with
// the forked child's actual pid and calls ConnTable.Register once the
// fork succeeds.
const claimedPID int32 = -2

// Assignment is one QB entry D has decided to dispatch this tick: the
// host position and slot index it claimed, ready for the cmd/fd level
// to either fork a worker (Reused == false) and call
// ConnTable.Register/queue.Queue.MarkDispatched, or — for a slot
// already holding a live burst-waiting worker (Reused == true) — skip
// the fork, signal WorkerPID directly, and mark the entry dispatched
// to that existing pid (spec §4.4's burst handshake).
type Assignment struct {
	Entry     *queue.QBEntry
	HostPos   int
	SlotIndex int
	HostAlias string

	// Reused is true when SlotIndex names a slot already occupied by a
	// connected worker sitting in the burst-wait handshake; WorkerPID
	// is that worker's pid.
	Reused    bool
	WorkerPID int32
}

// Dispatch implements spec §4.4 step 3: scan QB for dispatchable
// entries (per queue.Dispatchable's eligibility rule) and, for each,
// first try to hand it to a slot already waiting in the burst
// handshake on the same host (AwaitingSlot), falling back to a free
// slot otherwise. Entries are considered in QB order (oldest-enqueued
// first); a host's ActiveTransfers/Slots are tracked in memory across
// the scan so two entries for the same host in one tick don't race
// for the same slot, and the final tally is persisted once per host
// via hosts.Save.
func Dispatch(q *queue.Queue, hosts *FSAArea, budget queue.RateBudget) ([]Assignment, error) {
	entries := q.Entries()
	dirty := make(map[int]*status.HostStatus)
	var assignments []Assignment

	for _, e := range entries {
		pos, host, ok := hosts.Lookup(e.HostAlias)
		if !ok {
			continue
		}
		if h, tracked := dirty[pos]; tracked {
			host = h
		}

		// A host with a live burst-waiting worker (AwaitingSlot) is
		// eligible even though its ActiveTransfers already counts that
		// worker's connection; probe eligibility with that one slot
		// backed out so reuse isn't blocked by the very connection it
		// would reuse.
		if slot := host.AwaitingSlot(); slot >= 0 {
			probe := *host
			if probe.ActiveTransfers > 0 {
				probe.ActiveTransfers--
			}
			if queue.Dispatchable(e, &probe, budget) {
				pid := host.Slots[slot].PID
				host.Slots[slot].FileNameInUse = e.MsgName
				host.Slots[slot].SetHandshakeCode(status.HandshakeNone)
				dirty[pos] = host

				assignments = append(assignments, Assignment{
					Entry:     e,
					HostPos:   pos,
					SlotIndex: slot,
					HostAlias: e.HostAlias,
					Reused:    true,
					WorkerPID: pid,
				})
				continue
			}
		}

		if !queue.Dispatchable(e, host, budget) {
			continue
		}

		slot := host.FreeSlot()
		if slot < 0 {
			continue
		}
		host.ActiveTransfers++
		host.Slots[slot].PID = claimedPID
		host.Slots[slot].ConnectStatus = status.Connecting
		dirty[pos] = host

		assignments = append(assignments, Assignment{
			Entry:     e,
			HostPos:   pos,
			SlotIndex: slot,
			HostAlias: e.HostAlias,
		})
	}

	for pos, host := range dirty {
		if err := hosts.Save(pos, host); err != nil {
			return assignments, err
		}
	}
	return assignments, nil
}
