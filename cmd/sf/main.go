// Command sf_loc is one instance of the send-worker family (spec
// §4.3): it is forked by cmd/fd once per dispatched QB entry, streams
// every surviving spool file for that job to the configured host, and
// reports its outcome back to D over SF_FIN_FIFO before exiting with
// the enumerated transfer.ExitCode (spec §4.3 step 7).
//
// A worker with keep_connected > 0 doesn't exit after its first job:
// it claims its FSA slot, runs the burst loop (spec §4.4), and only
// disconnects once the keep-alive window expires or D hands it a job
// the open connection can't serve.
//
// sf_loc/sf_ftp/sf_sftp/sf_scp/sf_http share this same main and differ
// only in which internal/transfer/proto driver newDriver selects from
// the host's configured protocol, following the teacher's convention
// (backend/ftp, backend/sftp, backend/http are separate driver
// implementations behind one Driver interface, not one binary per
// backend).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hfs/afd-sub005/internal/fifo"
	"github.com/hfs/afd-sub005/internal/queue"
	"github.com/hfs/afd-sub005/internal/ratelimit"
	"github.com/hfs/afd-sub005/internal/status"
	"github.com/hfs/afd-sub005/internal/transfer"
	"github.com/hfs/afd-sub005/internal/transfer/proto"
	"github.com/hfs/afd-sub005/internal/transfer/proto/ftpproto"
	"github.com/hfs/afd-sub005/internal/transfer/proto/httpproto"
	"github.com/hfs/afd-sub005/internal/transfer/proto/localproto"
	"github.com/hfs/afd-sub005/internal/transfer/proto/sftpproto"
)

// defaultTransferTimeout applies when a host's configured
// transfer_timeout is unset (0), matching the teacher's pattern of a
// generous fallback rather than an instantly-expiring deadline.
const defaultTransferTimeout = 5 * time.Minute

func main() {
	var (
		workDir   string
		hostAlias string
		hostPos   int
		slotIndex int
		msgName   string
	)
	parseFlags(&workDir, &hostAlias, &hostPos, &slotIndex, &msgName)

	log := logrus.WithFields(logrus.Fields{"component": "sf", "host": hostAlias, "msg_name": msgName})
	code := run(log, workDir, hostAlias, hostPos, slotIndex, msgName)
	finish(workDir, code, log)
}

func run(log *logrus.Entry, workDir, hostAlias string, hostPos, slotIndex int, msgName string) transfer.ExitCode {
	fifoDir := filepath.Join(workDir, "fifodir")
	fsaArea, err := status.Attach(filepath.Join(fifoDir, "fsa"))
	if err != nil {
		log.WithError(err).Error("attach FSA")
		return transfer.ExitAllocError
	}
	defer fsaArea.Detach()

	var host status.HostStatus
	if err := fsaArea.ReadRecord(hostPos, &host); err != nil {
		log.WithError(err).Error("read host status")
		return transfer.ExitAllocError
	}

	jobDir := filepath.Join(workDir, "files", "outgoing", msgName)
	mdbEntry, err := queue.ParseMessageFile(filepath.Join(jobDir, msgName+".msg"))
	if err != nil {
		log.WithError(err).Error("parse message file")
		return transfer.ExitOpenLocalError
	}

	driver, cfg, err := newDriver(host, mdbEntry)
	if err != nil {
		log.WithError(err).Error("unsupported protocol")
		return transfer.ExitConnectError
	}

	remoteDir, err := parseSendURL(mdbEntry.URL)
	if err != nil {
		log.WithError(err).Error("parse message url")
		return transfer.ExitAllocError
	}
	cfg.TargetDir = remoteDir

	// rootCtx bounds the whole worker lifetime, including any idle
	// burst-wait; jobCtx below bounds a single job's connect-through-
	// transfer budget the way the original flat ctx did, per job.
	rootCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	timeout := time.Duration(host.TransferTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTransferTimeout
	}
	jobCtx, jobCancel := context.WithTimeout(rootCtx, timeout)
	defer jobCancel()

	if err := driver.Connect(jobCtx, cfg); err != nil {
		log.WithError(err).Error("connect")
		return transfer.ExitConnectError
	}
	defer driver.Quit(rootCtx)

	if remoteDir != "" {
		createDir := host.Flags&status.FlagCreateTargetDir != 0
		if err := driver.Chdir(jobCtx, remoteDir, createDir, 0644); err != nil {
			log.WithError(err).Error("chdir")
			return transfer.ExitChdirError
		}
	}

	// Claiming the slot — pid and CONNECTED — is what makes this
	// worker visible to D's AwaitingSlot() reuse check once it later
	// parks here waiting for a burst job; ReapWorker.Reset() clears it
	// again on exit.
	if err := claimSlot(fsaArea, hostPos, slotIndex, int32(os.Getpid())); err != nil {
		log.WithError(err).Warn("failed to record connected slot in FSA")
	}

	wakePipe, err := fifo.Open(filepath.Join(fifoDir, "FD_WAKE_UP_FIFO"))
	var waker transfer.FDWaker
	if err == nil {
		waker = fifo.NewWakeUp(wakePipe)
		defer wakePipe.Close()
	}

	dup, dupPath := openDupChecker(fifoDir, hostAlias, mdbEntry)
	bucket := rateBucket(host)

	sent, err := sendJob(jobCtx, log, driver, jobDir, mdbEntry, host, hostAlias, workDir, bucket, waker, dup)
	if err != nil {
		saveDupChecker(log, dup, dupPath)
		return classifyExitCode(err, transfer.ExitWriteRemoteError)
	}

	burst := 0
	if host.KeepConnected > 0 {
		source := newFSAJobSource(fsaArea, hostPos, slotIndex, workDir)
		process := func(bctx context.Context, job *transfer.BurstJob) error {
			next, ok := job.Payload.(*burstPayload)
			if !ok {
				return fmt.Errorf("sf: burst job missing payload")
			}
			nextCtx, nextCancel := context.WithTimeout(bctx, timeout)
			defer nextCancel()
			n, serr := sendJob(nextCtx, log, driver, next.jobDir, next.mdbEntry, host, hostAlias, workDir, bucket, waker, dup)
			sent += n
			return serr
		}

		n, berr := transfer.BurstLoop(rootCtx, cfg, time.Duration(host.KeepConnected)*time.Second, source, hostAlias, process)
		burst = n
		saveDupChecker(log, dup, dupPath)

		if errors.Is(berr, transfer.ErrBurstIncompatible) {
			if err := markSlotIncompatible(fsaArea, hostPos, slotIndex); err != nil {
				log.WithError(err).Warn("failed to mark slot incompatible")
			}
			log.WithFields(logrus.Fields{"files": sent, "burst": burst}).Infof("sf worker finished [BURST * %d], handing back incompatible job", burst)
			return transfer.ExitStillFilesToSend
		}
		if berr != nil {
			return classifyExitCode(berr, transfer.ExitWriteRemoteError)
		}
	} else {
		saveDupChecker(log, dup, dupPath)
	}

	if burst > 0 {
		log.WithFields(logrus.Fields{"files": sent, "burst": burst}).Infof("sf worker finished [BURST * %d]", burst)
	} else {
		log.WithField("files", sent).Info("sf worker finished")
	}
	return transfer.ExitSuccess
}

// sendJob runs spec §4.3 steps 2-5 for one job already sitting in
// jobDir: filter the spool by age limit and duplicate history, stream
// every surviving file, and clean up behind each one. It is shared
// between a worker's first job and every job it picks up afterward via
// the burst loop (spec §4.4), which is why host/hostAlias/workDir are
// passed in rather than read from package state.
func sendJob(ctx context.Context, log *logrus.Entry, driver proto.Driver, jobDir string, mdbEntry *queue.MDBEntry, host status.HostStatus, hostAlias, workDir string, bucket *ratelimit.TokenBucket, waker transfer.FDWaker, dup *transfer.FileDupChecker) (int, error) {
	files, err := readSpool(jobDir)
	if err != nil {
		return 0, err
	}

	ageLimit := time.Duration(mdbEntry.AgeLimit) * time.Second
	dupOutcome := transfer.DupDeleted
	if host.Flags&status.FlagDupCheckStore != 0 {
		dupOutcome = transfer.DupArchived
	}
	var checker transfer.DupChecker
	if mdbEntry.DupCheckFlag != 0 && dup != nil {
		checker = dup
	}
	filtered := transfer.FilterSpool(files, time.Now(), ageLimit, checker, dupOutcome)

	if host.Flags&status.FlagSortFileNames != 0 {
		transfer.SortNewestLast(filtered.Keep)
	}

	for _, f := range filtered.AgedOut {
		if err := os.Remove(f.Path); err != nil {
			log.WithError(err).WithField("file", f.Name).Warn("failed to remove aged-out spool file")
		}
	}
	for _, f := range filtered.DupDeleted {
		if err := os.Remove(f.Path); err != nil {
			log.WithError(err).WithField("file", f.Name).Warn("failed to remove duplicate spool file")
		}
	}
	for _, f := range filtered.DupArchived {
		if err := archiveDupFile(workDir, hostAlias, f); err != nil {
			log.WithError(err).WithField("file", f.Name).Warn("failed to archive duplicate spool file")
		}
	}

	mode := transfer.ParseLockMode(mdbEntry.LockMode)
	sent := 0
	for _, f := range filtered.Keep {
		staged := mode.StageName(f.Name)
		if _, err := transfer.SendFile(ctx, driver, f.Path, staged, 0, f.Size, bucket, 0, waker, log); err != nil {
			return sent, err
		}
		if err := transfer.FinishTransfer(ctx, driver, mode, staged, f.Name); err != nil {
			return sent, err
		}
		if err := os.Remove(f.Path); err != nil {
			log.WithError(err).Warn("failed to remove sent spool file")
		}
		sent++
	}
	return sent, nil
}

// archiveDupFile relocates a DUPLICATE_STORED file out of the spool
// into a per-host archive directory; the archiver proper that
// retires/expires archived files is out of scope (spec.md's archive/
// non-goal), this just performs the one move step §4.3 step 2 asks of
// the send worker itself.
func archiveDupFile(workDir, hostAlias string, f transfer.SpoolFile) error {
	dir := filepath.Join(workDir, "files", "archive", hostAlias)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.Rename(f.Path, filepath.Join(dir, f.Name))
}

// openDupChecker loads this host's persisted duplicate-check history,
// keyed by alias so every worker dispatched to the same host shares
// one timeline (spec §3's dup_check_timeout only means anything across
// invocations, not within one). A load failure disables dup checking
// for this run rather than failing the job outright.
func openDupChecker(fifoDir, hostAlias string, mdbEntry *queue.MDBEntry) (*transfer.FileDupChecker, string) {
	path := filepath.Join(fifoDir, "dupcheck", hostAlias)
	ttl := time.Duration(mdbEntry.DupCheckTime) * time.Second
	c, err := transfer.OpenFileDupChecker(path, ttl, time.Now())
	if err != nil {
		return nil, path
	}
	return c, path
}

func saveDupChecker(log *logrus.Entry, dup *transfer.FileDupChecker, path string) {
	if dup == nil {
		return
	}
	if err := dup.Save(); err != nil {
		log.WithError(err).WithField("path", path).Warn("failed to persist dup-check history")
	}
}

// claimSlot records this worker's own pid and CONNECTED status into
// its FSA job slot right after a successful connect, the precondition
// HostStatus.AwaitingSlot() checks before D will reuse this connection
// for a later burst job (spec §4.4).
func claimSlot(area *status.Area, hostPos, slotIndex int, pid int32) error {
	var host status.HostStatus
	if err := area.ReadRecord(hostPos, &host); err != nil {
		return err
	}
	host.Slots[slotIndex].PID = pid
	host.Slots[slotIndex].ConnectStatus = status.Connected
	host.Slots[slotIndex].SetHandshakeCode(status.HandshakeNone)
	return area.WriteRecord(hostPos, &host)
}

// markSlotIncompatible records unique_name[2] == 6 before this worker
// exits so a monitor reading FSA directly can see why the connection
// was dropped (spec §4.4); ReapWorker.Reset() clears it once D reaps
// this pid.
func markSlotIncompatible(area *status.Area, hostPos, slotIndex int) error {
	var host status.HostStatus
	if err := area.ReadRecord(hostPos, &host); err != nil {
		return err
	}
	host.Slots[slotIndex].SetHandshakeCode(status.HandshakeIncompatible)
	return area.WriteRecord(hostPos, &host)
}

// parseSendURL extracts the remote directory path from a message
// file's url field (e.g. "ftp://host:port/remote/dir"), mirroring
// cmd/gf's parseFetchURL; host/port themselves come from the FSA row
// and message file, not the URL.
func parseSendURL(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("sf: parse url %q: %w", raw, err)
	}
	return u.Path, nil
}

// newDriver selects a proto.Driver by the host's configured protocol
// and builds its Config from the job's message-file fields (port,
// lock/rename settings) plus the host's real hostname.
func newDriver(host status.HostStatus, e *queue.MDBEntry) (proto.Driver, proto.Config, error) {
	cfg := proto.Config{
		Host: host.RealHostname[0],
		Port: e.Port,
	}
	switch host.Protocol {
	case status.ProtoLOC:
		return localproto.New(host.RealHostname[0]), cfg, nil
	case status.ProtoFTP:
		return ftpproto.New(), cfg, nil
	case status.ProtoSFTP, status.ProtoSCP:
		if host.Protocol == status.ProtoSCP {
			return sftpproto.NewSCP(), cfg, nil
		}
		return sftpproto.New(), cfg, nil
	case status.ProtoHTTP:
		return httpproto.New(), cfg, nil
	default:
		return nil, cfg, fmt.Errorf("sf: unsupported protocol %v", host.Protocol)
	}
}

func rateBucket(host status.HostStatus) *ratelimit.TokenBucket {
	if host.RateLimit == 0 {
		return nil
	}
	return ratelimit.NewTokenBucket(int64(host.RateLimit))
}

func readSpool(jobDir string) ([]transfer.SpoolFile, error) {
	entries, err := os.ReadDir(jobDir)
	if err != nil {
		return nil, err
	}
	var files []transfer.SpoolFile
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		files = append(files, transfer.SpoolFile{
			Name:    ent.Name(),
			Path:    filepath.Join(jobDir, ent.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return files, nil
}

// classifyExitCode unwraps a *transfer.WorkerError if the failure
// originated inside internal/transfer (it already carries the precise
// ExitCode), falling back to def for errors from this binary's own
// plumbing.
func classifyExitCode(err error, def transfer.ExitCode) transfer.ExitCode {
	var we *transfer.WorkerError
	if errors.As(err, &we) {
		return we.Code
	}
	return def
}

func parseFlags(workDir, hostAlias *string, hostPos, slotIndex *int, msgName *string) {
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-w":
			i++
			*workDir = args[i]
		case "-h":
			i++
			*hostAlias = args[i]
		case "-p":
			i++
			*hostPos, _ = strconv.Atoi(args[i])
		case "-s":
			i++
			*slotIndex, _ = strconv.Atoi(args[i])
		case "-m":
			i++
			*msgName = args[i]
		}
	}
}

// finish reports code to D over SF_FIN_FIFO by writing this process's
// own pid (spec §4.4 step 1: "for each reaped PID, locate its
// connection-table slot"; D maps the pid back to a slot and reads the
// matching exit status via waitpid) and exits with code as the process
// status.
func finish(workDir string, code transfer.ExitCode, log *logrus.Entry) {
	fifoDir := filepath.Join(workDir, "fifodir")
	pipe, err := fifo.Open(filepath.Join(fifoDir, "SF_FIN_FIFO"))
	if err != nil {
		log.WithError(err).Error("open SF_FIN_FIFO to report finish")
		os.Exit(int(code))
	}
	defer pipe.Close()
	if err := fifo.NewPidWriter(pipe).WritePID(int32(os.Getpid())); err != nil {
		log.WithError(err).Error("write pid to SF_FIN_FIFO")
	}
	os.Exit(int(code))
}
