package fd

import (
	"testing"

	"github.com/hfs/afd-sub005/internal/status"
	"github.com/hfs/afd-sub005/internal/transfer"
)

func TestReapWorkerClearsSlotOnSuccess(t *testing.T) {
	f := newFSAArea(t, status.HostStatus{Alias: "host1", ActiveTransfers: 1, MaxErrors: 5})
	host, _ := f.Get(0)
	host.Slots[2].PID = 4242
	host.Slots[2].ConnectStatus = status.Connected
	if err := f.Save(0, host); err != nil {
		t.Fatalf("save: %v", err)
	}

	conns := NewConnTable()
	conns.Register(4242, 0, 2, "host1")

	if err := ReapWorker(f, conns, nil, 4242, transfer.ExitSuccess); err != nil {
		t.Fatalf("reap: %v", err)
	}

	got, _ := f.Get(0)
	if got.ActiveTransfers != 0 {
		t.Fatalf("expected active_transfers 0, got %d", got.ActiveTransfers)
	}
	if got.Slots[2].PID != 0 {
		t.Fatalf("expected slot cleared, got pid %d", got.Slots[2].PID)
	}
	if got.ErrorCounter != 0 {
		t.Fatalf("expected no error pushed on success, got %d", got.ErrorCounter)
	}
	if _, ok := conns.Lookup(4242); ok {
		t.Fatal("expected conn table entry removed after reap")
	}
}

func TestReapWorkerPushesErrorOnFailure(t *testing.T) {
	f := newFSAArea(t, status.HostStatus{Alias: "host1", ActiveTransfers: 1, MaxErrors: 1})
	host, _ := f.Get(0)
	host.Slots[0].PID = 99
	if err := f.Save(0, host); err != nil {
		t.Fatalf("save: %v", err)
	}

	conns := NewConnTable()
	conns.Register(99, 0, 0, "host1")

	if err := ReapWorker(f, conns, nil, 99, transfer.ExitConnectError); err != nil {
		t.Fatalf("reap: %v", err)
	}

	got, _ := f.Get(0)
	if got.ErrorCounter == 0 {
		t.Fatal("expected error counter incremented")
	}
	if got.Flags&status.FlagQueueAutoPaused == 0 {
		t.Fatal("expected auto-pause flag set once max_errors crossed")
	}
}

func TestReapWorkerGotKilledSkipsErrorHistory(t *testing.T) {
	f := newFSAArea(t, status.HostStatus{Alias: "host1", ActiveTransfers: 1, MaxErrors: 1})
	host, _ := f.Get(0)
	host.Slots[0].PID = 7
	if err := f.Save(0, host); err != nil {
		t.Fatalf("save: %v", err)
	}
	conns := NewConnTable()
	conns.Register(7, 0, 0, "host1")

	if err := ReapWorker(f, conns, nil, 7, transfer.ExitGotKilled); err != nil {
		t.Fatalf("reap: %v", err)
	}
	got, _ := f.Get(0)
	if got.ErrorCounter != 0 {
		t.Fatalf("expected GOT_KILLED to not push an error, got counter %d", got.ErrorCounter)
	}
}

func TestReapWorkerUnknownPIDErrors(t *testing.T) {
	f := newFSAArea(t, status.HostStatus{Alias: "host1"})
	conns := NewConnTable()
	if err := ReapWorker(f, conns, nil, 12345, transfer.ExitSuccess); err == nil {
		t.Fatal("expected error for pid not in connection table")
	}
}
