package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hfs/afd-sub005/internal/transfer/proto"
)

type fakeJobSource struct {
	jobs []*BurstJob
	i    int
}

func (f *fakeJobSource) NextJob(ctx context.Context, hostAlias string, timeout time.Duration) (*BurstJob, bool) {
	if f.i >= len(f.jobs) {
		return nil, false
	}
	j := f.jobs[f.i]
	f.i++
	return j, true
}

func TestBurstLoopNoKeepConnectedIsNoop(t *testing.T) {
	cfg := proto.Config{Host: "h"}
	src := &fakeJobSource{jobs: []*BurstJob{{Cfg: cfg}}}
	n, err := BurstLoop(context.Background(), cfg, 0, src, "h", func(ctx context.Context, j *BurstJob) error { return nil })
	if err != nil || n != 0 {
		t.Fatalf("expected no-op loop, got n=%d err=%v", n, err)
	}
}

func TestBurstLoopProcessesCompatibleJobsUntilTimeout(t *testing.T) {
	cfg := proto.Config{Host: "h", Port: 21}
	src := &fakeJobSource{jobs: []*BurstJob{{Cfg: cfg}, {Cfg: cfg}}}
	processed := 0
	n, err := BurstLoop(context.Background(), cfg, time.Second, src, "h", func(ctx context.Context, j *BurstJob) error {
		processed++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || processed != 2 {
		t.Fatalf("expected 2 jobs processed, got n=%d processed=%d", n, processed)
	}
}

func TestBurstLoopStopsOnIncompatibleJob(t *testing.T) {
	cfg := proto.Config{Host: "h", Port: 21}
	incompatible := proto.Config{Host: "h", Port: 22}
	src := &fakeJobSource{jobs: []*BurstJob{{Cfg: incompatible}}}
	_, err := BurstLoop(context.Background(), cfg, time.Second, src, "h", func(ctx context.Context, j *BurstJob) error { return nil })
	if !errors.Is(err, ErrBurstIncompatible) {
		t.Fatalf("expected ErrBurstIncompatible, got %v", err)
	}
}

func TestBurstLoopStopsOnProcessError(t *testing.T) {
	cfg := proto.Config{Host: "h"}
	boom := errors.New("boom")
	src := &fakeJobSource{jobs: []*BurstJob{{Cfg: cfg}, {Cfg: cfg}}}
	n, err := BurstLoop(context.Background(), cfg, time.Second, src, "h", func(ctx context.Context, j *BurstJob) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 jobs counted before the failing one, got %d", n)
	}
}
