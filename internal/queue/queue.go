package queue

import (
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hfs/afd-sub005/internal/status"
)

// PendingPID is the QB pid sentinel for a job not yet assigned a
// worker (spec §3, Queue buffer entry QB).
const PendingPID int32 = -1

// QBEntry is one pending-or-dispatched job.
type QBEntry struct {
	// ID is an opaque per-enqueue identifier, used by D to mark a
	// specific entry dispatched without racing on its slice index.
	ID uuid.UUID

	// MsgName locates a job's file set in the spool; empty means this
	// entry is a retrieve job referencing an FRA row via Pos instead.
	MsgName string
	Pos     int

	PID            int32
	FilesToSend    uint32
	FileSizeToSend uint64
	ConnectPos     int
	HostAlias      string
	PriorityClass  int
}

// IsRetrieveJob reports whether this entry references an FRA row
// rather than an outgoing message file (spec §3).
func (e *QBEntry) IsRetrieveJob() bool { return e.MsgName == "" }

// HostLocator resolves a host alias to its live FSA position and
// record, letting Queue update aggregate counters (jobs_queued,
// total_file_counter/size, error history, slot connect_status) without
// this package owning area layout or locking.
type HostLocator interface {
	Lookup(alias string) (pos int, host *status.HostStatus, ok bool)
	Save(pos int, host *status.HostStatus) error
}

// Queue is the in-memory ordered QB array owned by the FD supervisor
// (spec §4.2), backed by an MDB job-metadata cache.
type Queue struct {
	mu          sync.Mutex
	entries     []*QBEntry
	mdb         *MDB
	hosts       HostLocator
	removeFiles func(msgName string) error
	log         *logrus.Entry
}

// New builds an empty Queue. removeFiles purges a job's spool files
// for delete_by_host/delete_by_message and may be nil in tests.
func New(mdb *MDB, hosts HostLocator, removeFiles func(string) error) *Queue {
	return &Queue{
		mdb:         mdb,
		hosts:       hosts,
		removeFiles: removeFiles,
		log:         logrus.WithField("component", "queue"),
	}
}

// Enqueue parses and caches msgName's message file metadata on first
// reference, appends a QB entry with pid = PENDING, and increments the
// target host's jobs_queued counter (spec §4.2).
func (q *Queue) Enqueue(msgName, hostAlias string, priorityClass int) (*QBEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if msgName != "" {
		for _, e := range q.entries {
			if e.MsgName == msgName {
				return nil, fmt.Errorf("queue: msg_name %q already pending", msgName)
			}
		}
		if _, err := q.mdb.Lookup(msgName); err != nil {
			return nil, err
		}
	}

	e := &QBEntry{
		ID:            uuid.New(),
		MsgName:       msgName,
		PID:           PendingPID,
		HostAlias:     hostAlias,
		PriorityClass: priorityClass,
	}
	q.entries = append(q.entries, e)

	if pos, host, ok := q.hosts.Lookup(hostAlias); ok {
		host.JobsQueued++
		if err := q.hosts.Save(pos, host); err != nil {
			q.log.WithError(err).Warn("failed to persist jobs_queued increment")
		}
	}
	return e, nil
}

// SetFileTotals records the spool scan results for a still-pending job
// once the producer has counted its surviving files (spec §3's
// files_to_send/file_size_to_send QB attributes).
func (q *Queue) SetFileTotals(msgName string, files uint32, size uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.MsgName == msgName {
			e.FilesToSend = files
			e.FileSizeToSend = size
			return nil
		}
	}
	return fmt.Errorf("queue: msg_name %q not queued", msgName)
}

// MarkDispatched records the forked worker's pid and connection-table
// index onto the entry once D assigns it a slot (spec §3 QB lifecycle).
func (q *Queue) MarkDispatched(id uuid.UUID, pid int32, connectPos int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.ID == id {
			e.PID = pid
			e.ConnectPos = connectPos
			return nil
		}
	}
	return fmt.Errorf("queue: entry %s not found", id)
}

// Remove deletes the QB entry at index i, shifting the tail, and
// decrements jobs_queued if the entry was still pending (spec §4.2).
func (q *Queue) Remove(i int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(i)
}

func (q *Queue) removeLocked(i int) error {
	if i < 0 || i >= len(q.entries) {
		return fmt.Errorf("queue: index %d out of range (len %d)", i, len(q.entries))
	}
	e := q.entries[i]
	if e.PID == PendingPID {
		q.decrementJobsQueuedLocked(e.HostAlias)
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return nil
}

func (q *Queue) decrementJobsQueuedLocked(alias string) {
	pos, host, ok := q.hosts.Lookup(alias)
	if !ok {
		return
	}
	if host.JobsQueued > 0 {
		host.JobsQueued--
	}
	if err := q.hosts.Save(pos, host); err != nil {
		q.log.WithError(err).Warn("failed to persist jobs_queued decrement")
	}
}

// DeleteByHost kills any running workers for alias's pending jobs
// (SIGKILL), purges each job's files via removeFiles, removes the QB
// entries, and resets the host's aggregate counters, error history,
// and every slot's connect_status to DISCONNECT (spec §4.2).
func (q *Queue) DeleteByHost(alias string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var errs []error
	for i := len(q.entries) - 1; i >= 0; i-- {
		e := q.entries[i]
		if e.HostAlias != alias {
			continue
		}
		if e.PID > 0 {
			if err := killWorker(int(e.PID)); err != nil {
				errs = append(errs, err)
			}
		}
		if e.MsgName != "" && q.removeFiles != nil {
			if err := q.removeFiles(e.MsgName); err != nil {
				errs = append(errs, err)
			}
			q.mdb.Forget(e.MsgName)
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
	}

	if pos, host, ok := q.hosts.Lookup(alias); ok {
		host.TotalFileCounter = 0
		host.TotalFileSize = 0
		host.JobsQueued = 0
		host.ClearErrorHistory()
		for i := range host.Slots {
			host.Slots[i].ConnectStatus = status.Disconnect
		}
		if err := q.hosts.Save(pos, host); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("queue: delete_by_host %s: %v", alias, errs)
	}
	return nil
}

// DeleteByMessage is DeleteByHost narrowed to a single job (spec §4.2).
func (q *Queue) DeleteByMessage(msgName string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.MsgName != msgName {
			continue
		}
		var err error
		if e.PID > 0 {
			err = killWorker(int(e.PID))
		}
		if q.removeFiles != nil {
			if rmErr := q.removeFiles(msgName); rmErr != nil && err == nil {
				err = rmErr
			}
		}
		if e.PID == PendingPID {
			q.decrementJobsQueuedLocked(e.HostAlias)
		}
		q.entries = append(q.entries[:i], q.entries[i+1:]...)
		q.mdb.Forget(msgName)
		return err
	}
	return fmt.Errorf("queue: msg_name %q not queued", msgName)
}

// DeleteSingleFile unlinks path, belonging to msgName's still-pending
// job, and decrements both the host's aggregate counters and the job's
// files_to_send; the QB entry is removed once files_to_send reaches 0
// (spec §4.2). Dispatched jobs (pid != PENDING) refuse the call — the
// worker already owns that file set.
func (q *Queue) DeleteSingleFile(msgName, path string, size uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := -1
	for i, e := range q.entries {
		if e.MsgName == msgName {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("queue: msg_name %q not queued", msgName)
	}
	e := q.entries[idx]
	if e.PID != PendingPID {
		return fmt.Errorf("queue: msg_name %q already dispatched, refusing single-file delete", msgName)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("queue: remove %s: %w", path, err)
	}

	if pos, host, ok := q.hosts.Lookup(e.HostAlias); ok {
		if host.TotalFileCounter > 0 {
			host.TotalFileCounter--
		}
		if host.TotalFileSize >= size {
			host.TotalFileSize -= size
		} else {
			host.TotalFileSize = 0
		}
		if err := q.hosts.Save(pos, host); err != nil {
			q.log.WithError(err).Warn("failed to persist counter decrement")
		}
	}

	if e.FilesToSend > 0 {
		e.FilesToSend--
	}
	if e.FileSizeToSend >= size {
		e.FileSizeToSend -= size
	} else {
		e.FileSizeToSend = 0
	}
	if e.FilesToSend == 0 {
		return q.removeLocked(idx)
	}
	return nil
}

// RemoveByPID deletes every QB entry dispatched to pid, reporting how
// many were removed. D calls this once a reaped worker's job lifecycle
// is over — completed, failed outright, or killed — so a finished
// entry never lingers in QB pointing at a dead pid.
func (q *Queue) RemoveByPID(pid int32) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for i := len(q.entries) - 1; i >= 0; i-- {
		if q.entries[i].PID != pid {
			continue
		}
		if err := q.removeLocked(i); err != nil {
			q.log.WithError(err).Warn("failed to remove completed QB entry")
			continue
		}
		n++
	}
	return n
}

// RequeueByPID resets every QB entry dispatched to pid back to
// PendingPID, reporting how many were reset. This is the burst-reuse
// counterpart to RemoveByPID (spec §4.4): a worker woken for a reused
// connection can reject the next job as incompatible and exit without
// ever touching it, in which case the job still needs a worker, just
// not this one, so it goes back to the front of the dispatch pool
// instead of being dropped.
func (q *Queue) RequeueByPID(pid int32) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if e.PID != pid {
			continue
		}
		e.PID = PendingPID
		e.ConnectPos = 0
		n++
	}
	return n
}

// Entries returns a snapshot copy of the live QB array, used by the FD
// supervisor's dispatch tick so it can iterate without holding Queue's
// lock across a scheduling decision.
func (q *Queue) Entries() []*QBEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*QBEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len reports the number of live QB entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func killWorker(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGKILL); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}
