package fd

import (
	"path/filepath"
	"testing"

	"github.com/hfs/afd-sub005/internal/status"
)

func newFSAArea(t *testing.T, hosts ...status.HostStatus) *FSAArea {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fsa")
	area, err := status.Create(path, status.FSAMagic, status.FSAStride)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { area.Detach() })

	if len(hosts) > 0 {
		if err := area.Grow(len(hosts), status.FSAStride); err != nil {
			t.Fatalf("grow: %v", err)
		}
		for i, h := range hosts {
			hh := h
			if err := area.WriteRecord(i, &hh); err != nil {
				t.Fatalf("write record %d: %v", i, err)
			}
		}
	}
	return NewFSAArea(area)
}

func TestFSAAreaLookupFindsByAlias(t *testing.T) {
	f := newFSAArea(t,
		status.HostStatus{Alias: "host1", AllowedTransfers: 2},
		status.HostStatus{Alias: "host2", AllowedTransfers: 1},
	)

	pos, host, ok := f.Lookup("host2")
	if !ok {
		t.Fatal("expected host2 to be found")
	}
	if pos != 1 {
		t.Fatalf("expected pos 1, got %d", pos)
	}
	if host.AllowedTransfers != 1 {
		t.Fatalf("expected allowed_transfers 1, got %d", host.AllowedTransfers)
	}
}

func TestFSAAreaLookupMissingAlias(t *testing.T) {
	f := newFSAArea(t, status.HostStatus{Alias: "host1"})
	if _, _, ok := f.Lookup("nope"); ok {
		t.Fatal("expected lookup to fail for unknown alias")
	}
}

func TestFSAAreaSaveAndGetRoundTrip(t *testing.T) {
	f := newFSAArea(t, status.HostStatus{Alias: "host1", ActiveTransfers: 0})

	host, err := f.Get(0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	host.ActiveTransfers = 3
	if err := f.Save(0, host); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := f.Get(0)
	if err != nil {
		t.Fatalf("get after save: %v", err)
	}
	if got.ActiveTransfers != 3 {
		t.Fatalf("expected active_transfers 3, got %d", got.ActiveTransfers)
	}
}

func TestFSAAreaWithLockRunsFn(t *testing.T) {
	f := newFSAArea(t, status.HostStatus{Alias: "host1"})

	ran := false
	err := f.WithLock(0, status.LockTFC, func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("with lock: %v", err)
	}
	if !ran {
		t.Fatal("expected fn to run under lock")
	}
}
