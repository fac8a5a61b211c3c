package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hfs/afd-sub005/internal/queue"
	"github.com/hfs/afd-sub005/internal/status"
	"github.com/hfs/afd-sub005/internal/transfer"
	"github.com/hfs/afd-sub005/internal/transfer/proto"
)

// burstPayload carries what sendJob needs to run one reused-connection
// job: its spool directory and parsed message-file metadata. It rides
// inside transfer.BurstJob.Payload since internal/transfer has no
// reason to know cmd/sf's on-disk job layout.
type burstPayload struct {
	jobDir   string
	mdbEntry *queue.MDBEntry
}

// fsaJobSource implements transfer.JobSource for a worker parked on its
// own FSA slot waiting for D to reuse its connection (spec §4.4): it
// marks the slot AWAITING_JOB, blocks for either a SIGUSR1 wakeup from
// D (sent once D's dispatcher writes a new job into this slot's
// file_name_in_use) or the keep_connected timeout, and on wakeup
// re-reads the slot to learn what was assigned.
type fsaJobSource struct {
	area      *status.Area
	hostPos   int
	slotIndex int
	workDir   string
	sigs      chan os.Signal
}

func newFSAJobSource(area *status.Area, hostPos, slotIndex int, workDir string) *fsaJobSource {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1)
	return &fsaJobSource{area: area, hostPos: hostPos, slotIndex: slotIndex, workDir: workDir, sigs: sigs}
}

// NextJob blocks until D signals a reused job, ctx is cancelled, or
// timeout elapses, matching spec §4.4's "Alarm expiry ... W quits"
// idle-window semantics.
func (s *fsaJobSource) NextJob(ctx context.Context, hostAlias string, timeout time.Duration) (*transfer.BurstJob, bool) {
	if err := s.setHandshake(status.HandshakeAwaitingJob); err != nil {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, false
	case <-timer.C:
		return nil, false
	case <-s.sigs:
	}

	var host status.HostStatus
	if err := s.area.ReadRecord(s.hostPos, &host); err != nil {
		return nil, false
	}
	msgName := host.Slots[s.slotIndex].FileNameInUse
	if msgName == "" {
		return nil, false
	}

	jobDir := filepath.Join(s.workDir, "files", "outgoing", msgName)
	mdbEntry, err := queue.ParseMessageFile(filepath.Join(jobDir, msgName+".msg"))
	if err != nil {
		return nil, false
	}
	remoteDir, _ := parseSendURL(mdbEntry.URL)
	cfg := proto.Config{
		Host:      host.RealHostname[0],
		Port:      mdbEntry.Port,
		TargetDir: remoteDir,
	}
	return &transfer.BurstJob{Cfg: cfg, Payload: &burstPayload{jobDir: jobDir, mdbEntry: mdbEntry}}, true
}

func (s *fsaJobSource) setHandshake(code byte) error {
	var host status.HostStatus
	if err := s.area.ReadRecord(s.hostPos, &host); err != nil {
		return err
	}
	host.Slots[s.slotIndex].SetHandshakeCode(code)
	return s.area.WriteRecord(s.hostPos, &host)
}
