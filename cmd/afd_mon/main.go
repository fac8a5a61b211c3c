// Command afd_mon is F, the monitor supervisor (spec §4.7): it parses
// AFD_MON_DB, builds MSA, forks one mon (G) process per row, reacts to
// MON_CMD_FIFO opcodes, and reloads MSA whenever AFD_MON_DB's mtime
// changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hfs/afd-sub005/internal/afdconfig"
	"github.com/hfs/afd-sub005/internal/fifo"
	"github.com/hfs/afd-sub005/internal/monitor"
	"github.com/hfs/afd-sub005/internal/status"
)

// configPollInterval is spec §4.7's steady-state "select with 10-s
// timeout on MON_CMD_FIFO" tick, reused here to also drive
// ConfigChanged checks.
const configPollInterval = 10 * time.Second

func main() {
	workDir := flag.String("w", os.Getenv("MON_WORK_DIR"), "monitor working directory")
	flag.Parse()
	if *workDir == "" {
		logrus.Fatal("afd_mon: no working directory given (-w or MON_WORK_DIR)")
	}

	log := logrus.WithField("component", "afd_mon")
	fifoDir := filepath.Join(*workDir, "fifodir")
	dbPath := filepath.Join(*workDir, "etc", "AFD_MON_CONFIG")

	sup := &supervisor{
		workDir:    *workDir,
		fifoDir:    fifoDir,
		dbPath:     dbPath,
		log:        log,
		procs:      make(map[int]*childProc),
		exited:     make(chan exitedProbe, 16),
	}
	if err := sup.attach(); err != nil {
		log.WithError(err).Fatal("attach MSA")
	}
	defer sup.area.Detach()

	if err := sup.reload(); err != nil {
		log.WithError(err).Fatal("initial AFD_MON_DB load")
	}

	cmdPipe, err := fifo.Open(filepath.Join(fifoDir, "MON_CMD_FIFO"))
	if err != nil {
		log.WithError(err).Fatal("open MON_CMD_FIFO")
	}
	defer cmdPipe.Close()
	cmdReader := fifo.NewCommandReader(cmdPipe, log)

	commands := make(chan fifo.Command, 16)
	go func() {
		for {
			c, err := cmdReader.Next()
			if err != nil {
				log.WithError(err).Warn("MON_CMD_FIFO closed, stopping command reader")
				return
			}
			commands <- c
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(configPollInterval)
	defer ticker.Stop()

	log.Info("afd_mon supervisor started")
	for {
		select {
		case <-ctx.Done():
			log.Info("afd_mon supervisor shutting down")
			sup.stopAll()
			return

		case e := <-sup.exited:
			restart, err := sup.sv.HandleProbeExit(e.pos, e.lifetime)
			if err != nil {
				log.WithError(err).WithField("pos", e.pos).Warn("handle probe exit")
				continue
			}
			sup.forget(e.pos)
			if restart {
				if err := sup.fork(e.pos); err != nil {
					log.WithError(err).WithField("pos", e.pos).Warn("restart probe")
				}
			}

		case c := <-commands:
			sup.handleCommand(c)

		case <-ticker.C:
			if res := sup.area.Check(); res != status.Unchanged {
				if err := sup.area.Reattach(); err != nil {
					log.WithError(err).Warn("reattach MSA after stale marker")
				} else {
					log.Info("reattached MSA after stale marker")
				}
			}

			changed, err := sup.sv.ConfigChanged(dbPath)
			if err != nil {
				log.WithError(err).Warn("stat AFD_MON_DB")
				continue
			}
			if changed {
				if err := sup.reload(); err != nil {
					log.WithError(err).Error("reload AFD_MON_DB")
				}
			}
		}
	}
}

// childProc tracks one forked mon process this supervisor owns.
type childProc struct {
	cmd       *exec.Cmd
	startedAt time.Time
}

type exitedProbe struct {
	pos      int
	lifetime time.Duration
}

type supervisor struct {
	workDir string
	fifoDir string
	dbPath  string
	log     *logrus.Entry

	area *status.Area
	sv   *monitor.Supervisor

	mu      sync.Mutex
	procs   map[int]*childProc
	exited  chan exitedProbe
	entries []afdconfig.AFDEntry
}

func (s *supervisor) attach() error {
	path := filepath.Join(s.fifoDir, "msa")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		area, cerr := status.Create(path, status.MSAMagic, status.MSAStride)
		if cerr != nil {
			return cerr
		}
		s.area = area
	} else {
		area, aerr := status.Attach(path)
		if aerr != nil {
			return aerr
		}
		s.area = area
	}
	s.sv = monitor.NewSupervisor(s.area)
	return nil
}

// reload implements spec §4.7's config-change branch and spec §8's
// named reload boundary: on the first load, or whenever the row count
// itself changes (MSA has to be grown/shrunk, which Grow only knows
// how to do for the whole area), every row is rebuilt and reforked.
// Otherwise only the rows whose (alias, hostname, port, poll_interval)
// tuple actually changed are stopped and reforked; every unchanged
// row's child process and MSA counters are left untouched.
func (s *supervisor) reload() error {
	data, err := os.ReadFile(s.dbPath)
	if err != nil {
		return fmt.Errorf("afd_mon: read AFD_MON_DB: %w", err)
	}
	entries, err := afdconfig.ParseAFDMonDB(data, s.log)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prior := s.entries
	s.mu.Unlock()

	if prior == nil || len(prior) != len(entries) {
		s.stopAll()
		s.sv.ResetPolicies()

		if err := monitor.BuildMSA(s.area, entries); err != nil {
			return err
		}
		if err := s.writeActiveFile(nil); err != nil {
			s.log.WithError(err).Warn("write MON_ACTIVE_FILE")
		}
		for i := range entries {
			if err := s.fork(i); err != nil {
				s.log.WithError(err).WithField("pos", i).Warn("fork probe")
			}
		}
		s.mu.Lock()
		s.entries = entries
		s.mu.Unlock()
		return nil
	}

	changed, _ := monitor.DiffEntries(prior, entries)
	if len(changed) == 0 {
		s.mu.Lock()
		s.entries = entries
		s.mu.Unlock()
		return nil
	}

	for _, pos := range changed {
		s.stopRow(pos)
		s.sv.ResetPolicy(pos)
	}
	if err := monitor.WriteMSARows(s.area, entries, changed); err != nil {
		return err
	}
	for _, pos := range changed {
		if err := s.fork(pos); err != nil {
			s.log.WithError(err).WithField("pos", pos).Warn("fork probe")
		}
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// fork execs one mon process for MSA row pos and starts a reaper
// goroutine that reports its lifetime back to the select loop over
// s.exited once it exits — there's no fin-fifo for mon the way
// SF_FIN_FIFO serves sf/gf, so this supervisor waits on its children
// directly.
func (s *supervisor) fork(pos int) error {
	cmd := exec.Command("mon", "-w", s.workDir, "-p", strconv.Itoa(pos))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	started := time.Now()

	s.mu.Lock()
	s.procs[pos] = &childProc{cmd: cmd, startedAt: started}
	s.mu.Unlock()
	s.refreshActiveFile()

	go func() {
		_ = cmd.Wait()
		s.exited <- exitedProbe{pos: pos, lifetime: time.Since(started)}
	}()
	return nil
}

// stopRow stops exactly the probe at pos, unlike stopAll which tears
// down every running probe. s.exited is shared by every probe's
// reaper goroutine, so any other position's exit notification
// observed while waiting is requeued rather than dropped, leaving it
// for the main select loop to handle normally.
func (s *supervisor) stopRow(pos int) {
	s.mu.Lock()
	p, ok := s.procs[pos]
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGINT)

	var requeue []exitedProbe
	for {
		e := <-s.exited
		if e.pos == pos {
			break
		}
		requeue = append(requeue, e)
	}
	for _, e := range requeue {
		s.exited <- e
	}
	s.forget(pos)
}

func (s *supervisor) forget(pos int) {
	s.mu.Lock()
	delete(s.procs, pos)
	s.mu.Unlock()
	s.refreshActiveFile()
}

// stopAll implements the atexit/config-reload "SIGINT-kill children,
// reap" step. It signals every tracked child and waits for its reaper
// goroutine to observe the exit before returning, so a caller can
// safely rebuild MSA immediately afterward.
func (s *supervisor) stopAll() {
	s.mu.Lock()
	pids := make([]int, 0, len(s.procs))
	for pos, p := range s.procs {
		_ = p.cmd.Process.Signal(syscall.SIGINT)
		pids = append(pids, pos)
	}
	s.mu.Unlock()

	for range pids {
		<-s.exited
	}
	s.mu.Lock()
	s.procs = make(map[int]*childProc)
	s.mu.Unlock()
	if err := s.writeActiveFile(nil); err != nil {
		s.log.WithError(err).Warn("clear MON_ACTIVE_FILE")
	}
}

func (s *supervisor) refreshActiveFile() {
	s.mu.Lock()
	pids := make([]int32, 0, len(s.procs))
	for _, p := range s.procs {
		pids = append(pids, int32(p.cmd.Process.Pid))
	}
	s.mu.Unlock()
	if err := s.writeActiveFile(pids); err != nil {
		s.log.WithError(err).Warn("write MON_ACTIVE_FILE")
	}
}

// writeActiveFile rewrites MON_ACTIVE_FILE as one decimal pid per
// line — the spec names the file without pinning its byte layout, and
// a line-oriented format keeps it inspectable with ordinary tools the
// same way the rest of fifodir's control files are.
func (s *supervisor) writeActiveFile(pids []int32) error {
	path := filepath.Join(s.fifoDir, "MON_ACTIVE_FILE")
	var b strings.Builder
	for _, pid := range pids {
		fmt.Fprintf(&b, "%d\n", pid)
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// handleCommand dispatches the MON_CMD_FIFO opcodes this supervisor
// owns (spec §4.6/§4.7): SHUTDOWN, IS_ALIVE, DISABLE_MON,
// ENABLE_MON. RETRY_HOST/ENABLE_HOST/DISABLE_HOST share the opcode
// byte space with AFD_CMD_FIFO but address FSA hosts, D's domain
// (cmd/fd), not F's — received here only if misrouted, and ignored.
func (s *supervisor) handleCommand(c fifo.Command) {
	switch c.Op {
	case fifo.Shutdown:
		s.stopAll()
		os.Exit(0)
	case fifo.IsAlive:
		resp, err := fifo.Open(filepath.Join(s.fifoDir, "MON_RESP_FIFO"))
		if err != nil {
			s.log.WithError(err).Warn("open MON_RESP_FIFO for IS_ALIVE ack")
			return
		}
		defer resp.Close()
		if err := fifo.NewRespWriter(resp).Ack(); err != nil {
			s.log.WithError(err).Warn("write IS_ALIVE ack")
		}
	case fifo.DisableMon:
		pos, err := strconv.Atoi(c.Arg)
		if err != nil {
			s.log.WithError(err).WithField("arg", c.Arg).Warn("DISABLE_MON: bad position")
			return
		}
		if err := s.sv.DisableRow(pos); err != nil {
			s.log.WithError(err).WithField("pos", pos).Warn("disable row")
			return
		}
		s.mu.Lock()
		p, ok := s.procs[pos]
		s.mu.Unlock()
		if ok {
			_ = p.cmd.Process.Signal(syscall.SIGINT)
		}
	case fifo.EnableMon:
		pos, err := strconv.Atoi(c.Arg)
		if err != nil {
			s.log.WithError(err).WithField("arg", c.Arg).Warn("ENABLE_MON: bad position")
			return
		}
		shouldFork, err := s.sv.EnableRow(pos)
		if err != nil {
			s.log.WithError(err).WithField("pos", pos).Warn("enable row")
			return
		}
		if shouldFork {
			if err := s.fork(pos); err != nil {
				s.log.WithError(err).WithField("pos", pos).Warn("fork re-enabled probe")
			}
		}
	default:
		s.log.WithField("op", c.Op).Debug("MON_CMD_FIFO: opcode not handled by afd_mon")
	}
}
