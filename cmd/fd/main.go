// Command fd is the FD supervisor daemon (spec §4.4): it drives the
// scheduler loop in internal/fd and internal/queue, forking sf_*/gf_*
// worker executables and reaping them.
package main

import (
	"context"
	"flag"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hfs/afd-sub005/internal/fd"
	"github.com/hfs/afd-sub005/internal/fifo"
	"github.com/hfs/afd-sub005/internal/queue"
	"github.com/hfs/afd-sub005/internal/ratelimit"
	"github.com/hfs/afd-sub005/internal/status"
	"github.com/hfs/afd-sub005/internal/transfer"
)

const (
	fraScanInterval = time.Second
	dispatchTick    = 500 * time.Millisecond
	stalenessTick   = 10 * time.Second
)

func main() {
	workDir := flag.String("w", os.Getenv("AFD_WORK_DIR"), "AFD working directory")
	flag.Parse()
	if *workDir == "" {
		logrus.Fatal("fd: no working directory given (-w or AFD_WORK_DIR)")
	}

	log := logrus.WithField("component", "fd")
	fifoDir := filepath.Join(*workDir, "fifodir")

	fsaArea, err := status.Attach(filepath.Join(fifoDir, "fsa"))
	if err != nil {
		log.WithError(err).Fatal("attach FSA")
	}
	defer fsaArea.Detach()
	fraArea, err := status.Attach(filepath.Join(fifoDir, "fra"))
	if err != nil {
		log.WithError(err).Fatal("attach FRA")
	}
	defer fraArea.Detach()

	hosts := fd.NewFSAArea(fsaArea)
	conns := fd.NewConnTable()

	outgoingDir := filepath.Join(*workDir, "files", "outgoing")
	mdb := queue.NewMDB(func(msgName string) (*queue.MDBEntry, error) {
		return queue.ParseMessageFile(filepath.Join(outgoingDir, msgName, msgName+".msg"))
	})
	q := queue.New(mdb, hosts, func(msgName string) error {
		return os.RemoveAll(filepath.Join(outgoingDir, msgName))
	})

	sfFinPipe, err := fifo.Open(filepath.Join(fifoDir, "SF_FIN_FIFO"))
	if err != nil {
		log.WithError(err).Fatal("open SF_FIN_FIFO")
	}
	defer sfFinPipe.Close()
	pidReader := fifo.NewPidReader(sfFinPipe)

	deletePipe, err := fifo.Open(filepath.Join(fifoDir, "DELETE_JOBS_FIFO"))
	if err != nil {
		log.WithError(err).Fatal("open DELETE_JOBS_FIFO")
	}
	defer deletePipe.Close()
	deleteReader := fifo.NewDeleteReader(deletePipe)

	cmdPipe, err := fifo.Open(filepath.Join(fifoDir, "AFD_CMD_FIFO"))
	if err != nil {
		log.WithError(err).Fatal("open AFD_CMD_FIFO")
	}
	defer cmdPipe.Close()
	cmdReader := fifo.NewCommandReader(cmdPipe, log)

	wakePipe, err := fifo.Open(filepath.Join(fifoDir, "FD_WAKE_UP_FIFO"))
	if err != nil {
		log.WithError(err).Fatal("open FD_WAKE_UP_FIFO")
	}
	defer wakePipe.Close()
	wake := fifo.NewWakeUp(wakePipe)

	trlPipe, err := fifo.Open(filepath.Join(fifoDir, "TRL_CALC_FIFO"))
	if err != nil {
		log.WithError(err).Fatal("open TRL_CALC_FIFO")
	}
	defer trlPipe.Close()
	trlReader := fifo.NewTRLReader(trlPipe)
	budget := ratelimit.NewSplit()

	trlPositions := make(chan int32, 16)
	go func() {
		for {
			pos, err := trlReader.NextPos()
			if err != nil {
				log.WithError(err).Warn("TRL_CALC_FIFO closed, stopping TRL reader")
				return
			}
			trlPositions <- pos
		}
	}()

	exitPids := make(chan exitedPID, 64)
	go func() {
		for {
			pid, err := pidReader.NextPID()
			if err != nil {
				log.WithError(err).Warn("SF_FIN_FIFO closed, stopping pid reader")
				return
			}
			code, err := waitExitCode(pid)
			if err != nil {
				log.WithError(err).WithField("pid", pid).Warn("waitpid failed")
				continue
			}
			exitPids <- exitedPID{pid: pid, code: code}
		}
	}()

	deletes := make(chan fifo.DeleteCommand, 16)
	go func() {
		for {
			cmd, err := deleteReader.Next()
			if err != nil {
				log.WithError(err).Warn("DELETE_JOBS_FIFO closed, stopping delete reader")
				return
			}
			deletes <- cmd
		}
	}()

	commands := make(chan fifo.Command, 16)
	go func() {
		for {
			cmd, err := cmdReader.Next()
			if err != nil {
				log.WithError(err).Warn("AFD_CMD_FIFO closed, stopping command reader")
				return
			}
			commands <- cmd
		}
	}()

	wakes := make(chan struct{}, 1)
	go func() {
		for {
			if err := wake.Drain(); err != nil {
				return
			}
			select {
			case wakes <- struct{}{}:
			default:
			}
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dispatchTimer := time.NewTicker(dispatchTick)
	defer dispatchTimer.Stop()
	fraTimer := time.NewTicker(fraScanInterval)
	defer fraTimer.Stop()
	staleTimer := time.NewTicker(stalenessTick)
	defer staleTimer.Stop()

	log.Info("fd supervisor started")
	for {
		select {
		case <-ctx.Done():
			log.Info("fd supervisor shutting down")
			return

		case e := <-exitPids:
			if err := fd.ReapWorker(hosts, conns, q, e.pid, e.code); err != nil {
				log.WithError(err).WithField("pid", e.pid).Warn("reap failed")
			}

		case d := <-deletes:
			if err := fd.ApplyDelete(q, d); err != nil {
				log.WithError(err).Warn("delete command failed")
			}

		case c := <-commands:
			handleCommand(log, hosts, c)

		case pos := <-trlPositions:
			host, err := hosts.Get(int(pos))
			if err != nil {
				log.WithError(err).WithField("fsa_pos", pos).Warn("TRL_CALC_FIFO: unknown FSA position")
				continue
			}
			budget.Configure(host.Alias, int64(host.RateLimit))

		case <-wakes:
			runDispatch(log, q, hosts, conns, *workDir, budget)

		case <-dispatchTimer.C:
			runDispatch(log, q, hosts, conns, *workDir, budget)

		case <-staleTimer.C:
			reattachIfStale(log, "fsa", fsaArea)
			reattachIfStale(log, "fra", fraArea)

		case <-fraTimer.C:
			due, err := fd.ScanDue(fraArea, time.Now())
			if err != nil {
				log.WithError(err).Warn("FRA scan failed")
				continue
			}
			for _, d := range due {
				if _, err := q.Enqueue("", d.Status.DirAlias, 0); err != nil {
					log.WithError(err).WithField("dir_alias", d.Status.DirAlias).Warn("failed to synthesize retrieve job")
				}
			}
		}
	}
}

type exitedPID struct {
	pid  int32
	code transfer.ExitCode
}

// waitExitCode reaps pid (already drained off SF_FIN_FIFO, so the
// child has exited or is about to) and maps its wait status onto
// transfer.ExitCode: a clean exit carries the code the worker passed
// to os.Exit directly (it encodes transfer.ExitCode as its process
// exit status per spec §4.3 step 7), and death by signal is always
// ExitGotKilled, matching D's "non-zero and non-GOT_KILLED" reap
// branch (spec §4.4 step 1).
func waitExitCode(pid int32) (transfer.ExitCode, error) {
	var ws syscall.WaitStatus
	if _, err := syscall.Wait4(int(pid), &ws, 0, nil); err != nil {
		return 0, err
	}
	if ws.Signaled() {
		return transfer.ExitGotKilled, nil
	}
	return transfer.ExitCode(ws.ExitStatus()), nil
}

// handleCommand implements the AFD_CMD_FIFO opcodes in spec §4.6 that
// target D directly: RetryHost/EnableHost/DisableHost toggle a host's
// FSA flags and connect state. IsAlive/Shutdown are handled by the
// process supervisor layer (cmd/mafd), not here.
func handleCommand(log *logrus.Entry, hosts *fd.FSAArea, c fifo.Command) {
	switch c.Op {
	case fifo.DisableHost:
		toggleHost(log, hosts, c.Arg, func(h *status.HostStatus) { h.Flags |= status.FlagRetrieveDisabled })
	case fifo.EnableHost:
		toggleHost(log, hosts, c.Arg, func(h *status.HostStatus) { h.Flags &^= status.FlagRetrieveDisabled })
	case fifo.RetryHost:
		toggleHost(log, hosts, c.Arg, func(h *status.HostStatus) { h.Flags &^= status.FlagQueueAutoPaused })
	}
}

func toggleHost(log *logrus.Entry, hosts *fd.FSAArea, alias string, mutate func(*status.HostStatus)) {
	pos, host, ok := hosts.Lookup(alias)
	if !ok {
		log.WithField("alias", alias).Warn("command for unknown host alias")
		return
	}
	mutate(host)
	if err := hosts.Save(pos, host); err != nil {
		log.WithError(err).WithField("alias", alias).Warn("failed to persist host command")
	}
}

func runDispatch(log *logrus.Entry, q *queue.Queue, hosts *fd.FSAArea, conns *fd.ConnTable, workDir string, budget *ratelimit.Split) {
	assignments, err := fd.Dispatch(q, hosts, budget)
	if err != nil {
		log.WithError(err).Warn("dispatch failed")
	}
	for _, a := range assignments {
		if a.Reused {
			// The slot's already holding a live, connected worker
			// sitting in the burst-wait handshake; Dispatch already
			// wrote the new job into its FileNameInUse, so all this
			// process needs to do is wake it (spec §4.4's burst
			// handshake) rather than fork a second worker for the
			// same host.
			if err := syscall.Kill(int(a.WorkerPID), syscall.SIGUSR1); err != nil {
				log.WithError(err).WithField("pid", a.WorkerPID).Warn("failed to signal burst-waiting worker")
				continue
			}
			if err := q.MarkDispatched(a.Entry.ID, a.WorkerPID, a.HostPos); err != nil {
				log.WithError(err).Warn("failed to mark entry dispatched")
			}
			continue
		}

		pid, err := forkWorker(workDir, hosts, a)
		if err != nil {
			log.WithError(err).WithField("host", a.HostAlias).Warn("failed to fork worker")
			continue
		}
		conns.Register(pid, a.HostPos, a.SlotIndex, a.HostAlias)
		if err := q.MarkDispatched(a.Entry.ID, pid, a.HostPos); err != nil {
			log.WithError(err).Warn("failed to mark entry dispatched")
		}
	}
}

// reattachIfStale implements spec §4.1's STALE re-attach contract for
// a long-lived owner process: if the area's header shows a rebuild
// happened since it was last attached, re-map it in place so this
// process keeps reading the current file rather than a detached,
// now-stale mapping.
func reattachIfStale(log *logrus.Entry, name string, area *status.Area) {
	if res := area.Check(); res != status.Unchanged {
		if err := area.Reattach(); err != nil {
			log.WithError(err).WithField("area", name).Warn("reattach after stale marker")
			return
		}
		log.WithField("area", name).Info("reattached after stale marker")
	}
}

// forkWorker execs the protocol-specific sf_/gf_ binary for one
// dispatched assignment, chosen from the target host's configured
// Protocol (sf_loc/sf_ftp/sf_sftp/sf_scp/sf_http and the gf_ equivalents
// for retrieve jobs). The worker reads its job and connection details
// back out of FSA/the spool via the flags it's given, so this process
// can return immediately after starting it; reaping happens off
// SF_FIN_FIFO, not via cmd.Wait.
func forkWorker(workDir string, hosts *fd.FSAArea, a fd.Assignment) (int32, error) {
	host, err := hosts.Get(a.HostPos)
	if err != nil {
		return 0, err
	}
	bin := workerBinaryName(*host, a.Entry.IsRetrieveJob())
	args := []string{
		"-w", workDir,
		"-h", a.HostAlias,
		"-p", strconv.Itoa(a.HostPos),
		"-s", strconv.Itoa(a.SlotIndex),
	}
	if !a.Entry.IsRetrieveJob() {
		args = append(args, "-m", a.Entry.MsgName)
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	return int32(cmd.Process.Pid), nil
}

// workerBinaryName picks sf_<proto> or gf_<proto> for the assigned
// host's protocol, the worker family split being retrieve vs. send.
func workerBinaryName(host status.HostStatus, retrieveJob bool) string {
	prefix := "sf_"
	if retrieveJob {
		prefix = "gf_"
	}
	return prefix + host.Protocol.String()
}
