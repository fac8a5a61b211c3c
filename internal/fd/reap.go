package fd

import (
	"fmt"

	"github.com/hfs/afd-sub005/internal/queue"
	"github.com/hfs/afd-sub005/internal/status"
	"github.com/hfs/afd-sub005/internal/transfer"
)

// ReapWorker implements spec §4.4 step 1's per-worker reap: given the
// exit status of a child whose pid was just drained off SF_FIN_FIFO,
// locate its connection-table slot, decrement active_transfers under
// the TFC lock, clear the job-slot record, and — if the exit was
// neither success nor GOT_KILLED — push the exit reason onto the error
// history and bump error_counter under the EC lock, setting
// AUTO_PAUSE_QUEUE_STAT in that same EC-locked section if that crosses
// max_errors.
//
// It also settles the QB entry this pid was carrying, if q is
// non-nil: ExitStillFilesToSend (a burst-reused worker waking to an
// incompatible next job and giving it back without touching it,
// spec §4.4) puts the entry back to PENDING for another worker to
// pick up, and every other exit code retires the entry from QB since
// that job's lifecycle with this worker is over.
func ReapWorker(hosts *FSAArea, conns *ConnTable, q *queue.Queue, pid int32, exitCode transfer.ExitCode) error {
	conn, ok := conns.Lookup(pid)
	if !ok {
		return fmt.Errorf("fd: reap: pid %d not in connection table", pid)
	}
	defer conns.Remove(pid)

	if err := hosts.WithLock(conn.HostPos, status.LockTFC, func() error {
		host, err := hosts.Get(conn.HostPos)
		if err != nil {
			return err
		}
		if host.ActiveTransfers > 0 {
			host.ActiveTransfers--
		}
		host.Slots[conn.SlotIndex].Reset()
		return hosts.Save(conn.HostPos, host)
	}); err != nil {
		return fmt.Errorf("fd: reap: clear slot for pid %d: %w", pid, err)
	}

	if q != nil {
		if exitCode == transfer.ExitStillFilesToSend {
			q.RequeueByPID(pid)
		} else {
			q.RemoveByPID(pid)
		}
	}

	if exitCode == transfer.ExitSuccess || exitCode == transfer.ExitGotKilled {
		return nil
	}

	// PushError both appends to the error history and, on crossing
	// max_errors, sets FlagQueueAutoPaused in the same HostStatus
	// value; the HS lock guards that flag write just as the EC lock
	// guards the counter/history it's derived from, so one critical
	// section under LockEC covers both per spec §4.1's record-level
	// (not field-level) locking granularity.
	return hosts.WithLock(conn.HostPos, status.LockEC, func() error {
		host, err := hosts.Get(conn.HostPos)
		if err != nil {
			return err
		}
		host.PushError(int32(exitCode))
		return hosts.Save(conn.HostPos, host)
	})
}
