package fd

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hfs/afd-sub005/internal/status"
)

func newFRAArea(t *testing.T, rows ...status.FetchStatus) *status.Area {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fra")
	area, err := status.Create(path, status.FRAMagic, status.FRAStride)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { area.Detach() })
	if len(rows) > 0 {
		if err := area.Grow(len(rows), status.FRAStride); err != nil {
			t.Fatalf("grow: %v", err)
		}
		for i, r := range rows {
			rr := r
			if err := area.WriteRecord(i, &rr); err != nil {
				t.Fatalf("write record %d: %v", i, err)
			}
		}
	}
	return area
}

func TestScanDueReturnsOverdueRows(t *testing.T) {
	now := time.Unix(1000, 0)
	area := newFRAArea(t,
		status.FetchStatus{DirAlias: "dir1", NextCheckTime: 500, PollInterval: 60},
		status.FetchStatus{DirAlias: "dir2", NextCheckTime: 5000, PollInterval: 60},
	)

	due, err := ScanDue(area, now)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due row, got %d", len(due))
	}
	if due[0].Pos != 0 {
		t.Fatalf("expected pos 0, got %d", due[0].Pos)
	}

	var got status.FetchStatus
	if err := area.ReadRecord(0, &got); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.NextCheckTime != 1060 {
		t.Fatalf("expected next_check_time advanced to 1060, got %d", got.NextCheckTime)
	}
}

func TestScanDueSkipsDisabledDirectories(t *testing.T) {
	now := time.Unix(1000, 0)
	area := newFRAArea(t,
		status.FetchStatus{DirAlias: "dir1", NextCheckTime: 0, Flags: status.DirFlagDisabled},
	)

	due, err := ScanDue(area, now)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected disabled directory to be skipped, got %d due rows", len(due))
	}
}

func TestScanDueIsIdempotentAcrossRepeatedCallsAtSameInstant(t *testing.T) {
	now := time.Unix(1000, 0)
	area := newFRAArea(t, status.FetchStatus{DirAlias: "dir1", NextCheckTime: 1000, PollInterval: 100})

	due1, err := ScanDue(area, now)
	if err != nil {
		t.Fatalf("first scan: %v", err)
	}
	if len(due1) != 1 {
		t.Fatalf("expected 1 due row on first scan, got %d", len(due1))
	}

	due2, err := ScanDue(area, now)
	if err != nil {
		t.Fatalf("second scan: %v", err)
	}
	if len(due2) != 0 {
		t.Fatalf("expected no due rows immediately after advancing next_check_time, got %d", len(due2))
	}
}
