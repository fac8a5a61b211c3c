package monitor

import (
	"github.com/hfs/afd-sub005/internal/afdconfig"
	"github.com/hfs/afd-sub005/internal/status"
)

// BuildMSA implements spec §4.7's startup/reload step "build MSA": lay
// out one MonitorStatus row per AFD_MON_DB entry, in file order, and
// grow the given area to match. Reload reuses this: F calls it again
// after detaching on an AFD_MON_DB mtime change, and a full rebuild
// carries no row state across: the caller also drops every row's
// RestartPolicy (keyed by MSA position) via Supervisor.ResetPolicies
// (afd_mon.c's own MSA rebuild drops in-flight counters the same way —
// a changed config is a fresh probe set, not a merge).
func BuildMSA(area *status.Area, entries []afdconfig.AFDEntry) error {
	if err := area.Grow(len(entries), status.MSAStride); err != nil {
		return err
	}
	for i, e := range entries {
		if err := area.WriteRecord(i, monitorRow(e)); err != nil {
			return err
		}
	}
	return nil
}

// WriteMSARows rewrites only the MSA rows named by positions, in the
// shape BuildMSA would for a full rebuild, without touching the
// area's size or any other row. This is the partial counterpart a
// diff-based reload uses (spec §8): unchanged rows keep their live
// ConnectStatus/counters untouched because this function never
// reaches them.
func WriteMSARows(area *status.Area, entries []afdconfig.AFDEntry, positions []int) error {
	for _, i := range positions {
		if i < 0 || i >= len(entries) {
			continue
		}
		if err := area.WriteRecord(i, monitorRow(entries[i])); err != nil {
			return err
		}
	}
	return nil
}

// monitorRow builds the fresh MonitorStatus row for one AFD_MON_DB
// entry, shared by BuildMSA's full rebuild and WriteMSARows' partial
// one.
func monitorRow(e afdconfig.AFDEntry) *status.MonitorStatus {
	row := &status.MonitorStatus{
		Alias:         e.Alias,
		Hostname:      e.Hostname,
		Port:          int32(e.Port),
		PollInterval:  int32(e.PollInterval),
		ConnectStatus: status.MonDisconnected,
	}
	if e.ConvertUser != "" || e.RemoteUser != "" {
		row.ConvertUsername = [2]string{e.ConvertUser, e.RemoteUser}
	}
	return row
}

// RowByAlias returns the MSA position of the row matching alias, or
// -1 if the current AFD_MON_DB entries no longer name it (used by
// mafdcmd to turn an alias argument into the position that the
// ENABLE_MON/DISABLE_MON fifo commands carry).
func RowByAlias(area *status.Area, alias string) (int, error) {
	n := area.Count()
	for i := 0; i < n; i++ {
		var m status.MonitorStatus
		if err := area.ReadRecord(i, &m); err != nil {
			return -1, err
		}
		if m.Alias == alias {
			return i, nil
		}
	}
	return -1, nil
}
