package monitor

import (
	"os"
	"sync"
	"time"

	"github.com/hfs/afd-sub005/internal/afdconfig"
	"github.com/hfs/afd-sub005/internal/status"
)

// Supervisor is F's in-memory bookkeeping across a run: one
// RestartPolicy per MSA row plus the AFD_MON_DB mtime last seen,
// implementing spec §4.7's steady-state decisions (config-reload
// detection, DISABLE_MON/ENABLE_MON, and the per-row restart policy
// zombie_check applies). Forking, SIGINT, and select/timeout plumbing
// live at the cmd/afd_mon level.
type Supervisor struct {
	mu       sync.Mutex
	area     *status.Area
	policies map[int]*RestartPolicy
	dbMtime  time.Time
}

// NewSupervisor wraps an already-built MSA area.
func NewSupervisor(area *status.Area) *Supervisor {
	return &Supervisor{area: area, policies: make(map[int]*RestartPolicy)}
}

// ConfigChanged implements the 10-s timeout branch of spec §4.7's
// steady state: stat AFD_MON_DB and report whether its mtime moved
// since the last check (or since NewSupervisor, on the first call).
func (s *Supervisor) ConfigChanged(dbPath string) (bool, error) {
	info, err := os.Stat(dbPath)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := !info.ModTime().Equal(s.dbMtime)
	s.dbMtime = info.ModTime()
	return changed, nil
}

// ResetPolicies drops all restart-policy state, called after a
// config reload rebuilds MSA: a changed row set starts every probe
// with a clean restart history, matching BuildMSA's own fresh-rebuild
// semantics.
func (s *Supervisor) ResetPolicies() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = make(map[int]*RestartPolicy)
}

// ResetPolicy drops one row's restart-policy state, the scoped
// counterpart to ResetPolicies used when a reload only touches some
// rows (spec §8's named per-row reload boundary: an unchanged row
// keeps its restart history, a changed one starts fresh).
func (s *Supervisor) ResetPolicy(pos int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, pos)
}

// DiffEntries compares an old and new AFD_MON_DB entry set position
// by position on the fields a running probe actually depends on
// (Alias, Hostname, Port, PollInterval), implementing spec §8's rule
// that a reload only restarts rows whose tuple changed. An index
// present in one slice but not the other counts as changed: new's
// uncovered tail are newly added rows, old's uncovered tail are rows
// that no longer exist, and both need a fresh probe/no probe either
// way rather than being left alone.
func DiffEntries(old, new []afdconfig.AFDEntry) (changed, unchanged []int) {
	n := len(old)
	if len(new) > n {
		n = len(new)
	}
	for i := 0; i < n; i++ {
		if i >= len(old) || i >= len(new) || !sameMonitorRow(old[i], new[i]) {
			changed = append(changed, i)
			continue
		}
		unchanged = append(unchanged, i)
	}
	return changed, unchanged
}

func sameMonitorRow(a, b afdconfig.AFDEntry) bool {
	return a.Alias == b.Alias &&
		a.Hostname == b.Hostname &&
		a.Port == b.Port &&
		a.PollInterval == b.PollInterval
}

func (s *Supervisor) policyFor(pos int) *RestartPolicy {
	p, ok := s.policies[pos]
	if !ok {
		p = NewRestartPolicy()
		s.policies[pos] = p
	}
	return p
}

// DisableRow implements DISABLE_MON i: mark the row DISABLED in MSA so
// zombie_check skips it, independent of its restart policy.
func (s *Supervisor) DisableRow(pos int) error {
	var m status.MonitorStatus
	if err := s.area.ReadRecord(pos, &m); err != nil {
		return err
	}
	m.ConnectStatus = status.MonDisabled
	return s.area.WriteRecord(pos, &m)
}

// EnableRow implements ENABLE_MON i: if the row is disabled, mark it
// DISCONNECTED, clear its restart policy (giving the row a new budget),
// and report shouldFork so the caller forks a fresh probe for it.
func (s *Supervisor) EnableRow(pos int) (shouldFork bool, err error) {
	var m status.MonitorStatus
	if err := s.area.ReadRecord(pos, &m); err != nil {
		return false, err
	}
	if m.ConnectStatus != status.MonDisabled {
		return false, nil
	}
	m.ConnectStatus = status.MonDisconnected
	if err := s.area.WriteRecord(pos, &m); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.policies[pos] = NewRestartPolicy()
	s.mu.Unlock()
	return true, nil
}

// HandleProbeExit implements zombie_check()'s per-row restart
// decision (spec §4.7/§5): given how long the just-exited probe at
// pos ran, update its decayed restart counter and report whether F
// should fork a replacement. Disabled rows are never restarted
// regardless of their restart history.
func (s *Supervisor) HandleProbeExit(pos int, lifetime time.Duration) (restart bool, err error) {
	var m status.MonitorStatus
	if err := s.area.ReadRecord(pos, &m); err != nil {
		return false, err
	}
	if m.ConnectStatus == status.MonDisabled {
		return false, nil
	}

	s.mu.Lock()
	policy := s.policyFor(pos)
	restart = policy.RecordExit(lifetime)
	s.mu.Unlock()

	m.ConnectStatus = status.MonDisconnected
	if err := s.area.WriteRecord(pos, &m); err != nil {
		return restart, err
	}
	return restart, nil
}

// RestartsFor reports the current decayed restart count for pos,
// mainly for status reporting and tests.
func (s *Supervisor) RestartsFor(pos int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.policies[pos]; ok {
		return p.Restarts()
	}
	return 0
}
