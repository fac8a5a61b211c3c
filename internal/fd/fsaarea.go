// Package fd implements the FD supervisor's scheduling core (spec
// §4.4): reaping finished transfer workers, scanning QB for
// dispatchable entries, and checking FRA for fetch directories that
// are due. Process management itself — forking sf_*/gf_* executables,
// waiting on children, installing signal handlers — lives at the
// cmd/fd level; this package decides what should happen next and
// returns that decision as data, the same separation
// internal/transfer/proto draws between protocol plumbing and worker
// orchestration.
package fd

import "github.com/hfs/afd-sub005/internal/status"

// FSAArea adapts a live status.Area of HostStatus records into
// queue.HostLocator, the seam internal/queue needs to update aggregate
// host counters without owning area layout or locking itself.
type FSAArea struct {
	area *status.Area
}

// NewFSAArea wraps an already-attached FSA area.
func NewFSAArea(area *status.Area) *FSAArea { return &FSAArea{area: area} }

// Lookup implements queue.HostLocator by linear scan over the live
// FSA rows. FSA row counts are small (one per configured host), so
// this trades index-building complexity for a scan that's cheap in
// practice and trivially correct after a config-reload remap.
func (f *FSAArea) Lookup(alias string) (int, *status.HostStatus, bool) {
	n := f.area.Count()
	for i := 0; i < n; i++ {
		var h status.HostStatus
		if err := f.area.ReadRecord(i, &h); err != nil {
			return 0, nil, false
		}
		if h.Alias == alias {
			hh := h
			return i, &hh, true
		}
	}
	return 0, nil, false
}

// Save implements queue.HostLocator.
func (f *FSAArea) Save(pos int, host *status.HostStatus) error {
	return f.area.WriteRecord(pos, host)
}

// Get reads the host record at pos without an alias scan, used by
// callers that already hold a position (a QB entry's ConnectPos, a
// connection-table lookup).
func (f *FSAArea) Get(pos int) (*status.HostStatus, error) {
	var h status.HostStatus
	if err := f.area.ReadRecord(pos, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// WithLock runs fn while holding the byte-range lock for (pos, domain)
// on the underlying area file, per spec §4.1/§4.3's per-domain
// locking scheme.
func (f *FSAArea) WithLock(pos int, domain status.LockDomain, fn func() error) error {
	return status.WithHostLock(f.area.File(), f.area.RecordOffset(pos), domain, fn)
}
