package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/hfs/afd-sub005/internal/transfer/proto"
)

// ErrBurstIncompatible is returned from BurstLoop when D hands a
// worker a job whose connection parameters don't match the open
// session (spec §4.4: "unique_name[2] == 6 ... incompatible").
var ErrBurstIncompatible = errors.New("transfer: burst job incompatible with open connection")

// BurstJob is the next queued job D hands a waiting worker, carrying
// whatever the worker's process function needs to run it plus the
// connection parameters BurstLoop validates against the live session.
type BurstJob struct {
	Cfg     proto.Config
	Payload any
}

// JobSource abstracts the unique_name rendezvous protocol spec §4.4
// describes between a worker (W) and D: the worker asks for its next
// job for hostAlias, and either gets one before timeout elapses or
// times out, corresponding to keep_connected seconds of idle waiting.
// The concrete implementation (wired at the cmd/sf level) watches
// FD_WAKE_UP_FIFO/RETRY_MON_FIFO wakeups and the FSA job-slot's
// unique_name fields directly; this package only needs the two
// outcomes the handshake can produce.
type JobSource interface {
	NextJob(ctx context.Context, hostAlias string, timeout time.Duration) (*BurstJob, bool)
}

// BurstLoop implements spec §4.4's worker side of the burst handshake:
// after finishing a job, a worker with keep_connected > 0 waits up to
// keep_connected for another job to the same host, and — if one
// arrives — validates it is compatible with the already-open
// connection before reusing it (process runs the job and returns an
// error iff the job itself failed). It returns the number of
// additional jobs processed via the reused connection
// (burst_2_counter) and the error that ended the loop, if any.
//
// A nil error with the loop ending just means the keep_connected
// window expired with no job arriving ("Alarm expiry ... W quits");
// ErrBurstIncompatible means D found a job but it was for a
// differently-configured connection, and the caller must disconnect
// and exit so D can start a fresh worker for it.
func BurstLoop(ctx context.Context, cfg proto.Config, keepConnected time.Duration, source JobSource, hostAlias string, process func(ctx context.Context, job *BurstJob) error) (int, error) {
	if keepConnected <= 0 || source == nil {
		return 0, nil
	}

	count := 0
	for {
		job, ok := source.NextJob(ctx, hostAlias, keepConnected)
		if !ok {
			return count, nil
		}
		if !cfg.CompatibleWith(job.Cfg) {
			return count, ErrBurstIncompatible
		}
		if err := process(ctx, job); err != nil {
			return count, err
		}
		count++
	}
}
