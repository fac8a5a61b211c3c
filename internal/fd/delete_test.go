package fd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hfs/afd-sub005/internal/fifo"
	"github.com/hfs/afd-sub005/internal/queue"
	"github.com/hfs/afd-sub005/internal/status"
)

func TestApplyDeleteAllJobsFromHost(t *testing.T) {
	f := newFSAArea(t, status.HostStatus{Alias: "host1", TotalFileCounter: 2, TotalFileSize: 100})
	q := newTestQueue(t, f)
	if _, err := q.Enqueue("job1", "host1", 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	cmd := fifo.DeleteCommand{Type: fifo.DeleteAllJobsFromHost, Target: "host1"}
	if err := ApplyDelete(q, cmd); err != nil {
		t.Fatalf("apply delete: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue empty after delete_by_host, got %d entries", q.Len())
	}
}

func TestApplyDeleteMessage(t *testing.T) {
	f := newFSAArea(t, status.HostStatus{Alias: "host1"})
	q := newTestQueue(t, f)
	if _, err := q.Enqueue("job1", "host1", 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	cmd := fifo.DeleteCommand{Type: fifo.DeleteMessage, Target: "job1"}
	if err := ApplyDelete(q, cmd); err != nil {
		t.Fatalf("apply delete: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected job1 removed, got %d entries", q.Len())
	}
}

func TestApplyDeleteSingleFileStatsThenDecrements(t *testing.T) {
	f := newFSAArea(t, status.HostStatus{Alias: "host1", TotalFileCounter: 1, TotalFileSize: 10})
	q := newTestQueue(t, f)
	e, err := q.Enqueue("job1", "host1", 0)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.SetFileTotals("job1", 1, 10); err != nil {
		t.Fatalf("set file totals: %v", err)
	}
	_ = e

	dir := filepath.Join(t.TempDir(), "job1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, "file.dat")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cmd := fifo.DeleteCommand{Type: fifo.DeleteSingleFile, Target: path}
	if err := ApplyDelete(q, cmd); err != nil {
		t.Fatalf("apply delete: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("expected file removed")
	}
	got, _ := f.Get(0)
	if got.TotalFileCounter != 0 {
		t.Fatalf("expected total_file_counter 0, got %d", got.TotalFileCounter)
	}
	if q.Len() != 0 {
		t.Fatalf("expected job1 entry removed once files_to_send hits 0, got %d entries", q.Len())
	}
}

func TestApplyDeleteSingleFileMissingPathErrors(t *testing.T) {
	f := newFSAArea(t, status.HostStatus{Alias: "host1"})
	q := newTestQueue(t, f)
	cmd := fifo.DeleteCommand{Type: fifo.DeleteSingleFile, Target: filepath.Join(t.TempDir(), "job1", "missing.dat")}
	if err := ApplyDelete(q, cmd); err == nil {
		t.Fatal("expected error when target file does not exist")
	}
}

func TestApplyDeleteUnknownTypeErrors(t *testing.T) {
	f := newFSAArea(t, status.HostStatus{Alias: "host1"})
	q := newTestQueue(t, f)
	cmd := fifo.DeleteCommand{Type: fifo.DeleteType(99), Target: "whatever"}
	if err := ApplyDelete(q, cmd); err == nil {
		t.Fatal("expected error for unknown delete command type")
	}
}
