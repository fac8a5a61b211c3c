package monitor

import (
	"testing"
	"time"

	"github.com/hfs/afd-sub005/internal/status"
)

func TestParseFrameSplitsTypeAndPayload(t *testing.T) {
	f, err := ParseFrame("HL 3 remote1 10.0.0.1 10.0.0.2\r\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Type != "HL" {
		t.Fatalf("expected type HL, got %q", f.Type)
	}
	if f.Payload != "3 remote1 10.0.0.1 10.0.0.2" {
		t.Fatalf("unexpected payload %q", f.Payload)
	}
}

func TestParseFrameShutdownMessage(t *testing.T) {
	f, err := ParseFrame("AFDD_SHUTDOWN_MESSAGE\r\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Type != shutdownFrameType {
		t.Fatalf("expected shutdown frame type, got %q", f.Type)
	}
}

func TestParseFrameTooShortErrors(t *testing.T) {
	if _, err := ParseFrame("X"); err == nil {
		t.Fatal("expected error for too-short frame")
	}
}

func TestParseFrameMissingSpaceErrors(t *testing.T) {
	if _, err := ParseFrame("ISxyz"); err == nil {
		t.Fatal("expected error for missing separator space")
	}
}

func TestApplyFrameISUpdatesCountersAndTopRates(t *testing.T) {
	m := &status.MonitorStatus{}
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	f := Frame{Type: "IS", Payload: "3 1024 50 10 2 1 4 7"}

	shutdown, err := ApplyFrame(m, nil, f, now)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if shutdown {
		t.Fatal("IS frame should never signal shutdown")
	}
	if m.FilesToSend != 3 || m.FileSizeToSend != 1024 {
		t.Fatalf("unexpected files/size: %+v", m)
	}
	if m.TransferRate != 50 || m.FileRate != 10 {
		t.Fatalf("unexpected rates: %+v", m)
	}
	if m.ErrorCounter != 2 || m.HostErrorCounter != 1 {
		t.Fatalf("unexpected error counters: %+v", m)
	}
	if m.NoOfTransfers != 4 || m.JobsInQueue != 7 {
		t.Fatalf("unexpected transfer/queue counts: %+v", m)
	}
	if m.TopTransferRate[0] != 50 || m.TopFileRate[0] != 10 {
		t.Fatalf("expected today's top rate updated: %+v", m)
	}
}

func TestApplyFrameISRollsOverOnNewUTCDay(t *testing.T) {
	m := &status.MonitorStatus{}
	day1 := time.Date(2026, 7, 30, 23, 0, 0, 0, time.UTC)
	f1 := Frame{Type: "IS", Payload: "0 0 100 20 0 0 0 0"}
	if _, err := ApplyFrame(m, nil, f1, day1); err != nil {
		t.Fatalf("apply day1: %v", err)
	}
	if m.TopTransferRate[0] != 100 {
		t.Fatalf("expected day1 top rate 100, got %d", m.TopTransferRate[0])
	}

	day2 := time.Date(2026, 7, 31, 1, 0, 0, 0, time.UTC)
	f2 := Frame{Type: "IS", Payload: "0 0 5 1 0 0 0 0"}
	if _, err := ApplyFrame(m, nil, f2, day2); err != nil {
		t.Fatalf("apply day2: %v", err)
	}
	if m.TopTransferRate[1] != 100 {
		t.Fatalf("expected yesterday's rate shifted into slot 1, got %d", m.TopTransferRate[1])
	}
	if m.TopTransferRate[0] != 5 {
		t.Fatalf("expected today's slot reset then set to 5, got %d", m.TopTransferRate[0])
	}
}

func TestApplyFrameComponentStates(t *testing.T) {
	m := &status.MonitorStatus{}
	for _, tc := range []struct {
		typ  string
		want *status.ComponentState
	}{
		{"AM", &m.AMG},
		{"FD", &m.FD},
		{"AW", &m.ArchiveWatch},
	} {
		if _, err := ApplyFrame(m, nil, Frame{Type: tc.typ, Payload: "1"}, time.Now()); err != nil {
			t.Fatalf("apply %s: %v", tc.typ, err)
		}
		if *tc.want != status.CompOK {
			t.Fatalf("%s: expected CompOK, got %v", tc.typ, *tc.want)
		}
	}
}

func TestApplyFrameNHUpdatesHostCount(t *testing.T) {
	m := &status.MonitorStatus{}
	if _, err := ApplyFrame(m, nil, Frame{Type: "NH", Payload: "5"}, time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if m.NoOfHosts != 5 {
		t.Fatalf("expected no_of_hosts 5, got %d", m.NoOfHosts)
	}
}

func TestApplyFrameSRFillsSysLogFifo(t *testing.T) {
	m := &status.MonitorStatus{}
	f := Frame{Type: "SR", Payload: "42 1 2 3 4 5 6 7 8 9 10"}
	if _, err := ApplyFrame(m, nil, f, time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	for i := 0; i < status.LogFifoSize; i++ {
		if m.SysLogFifo[i] != byte(i+1) {
			t.Fatalf("SysLogFifo[%d] = %d, want %d", i, m.SysLogFifo[i], i+1)
		}
	}
}

func TestApplyFrameAVSetsVersion(t *testing.T) {
	m := &status.MonitorStatus{}
	if _, err := ApplyFrame(m, nil, Frame{Type: "AV", Payload: "1.2.3"}, time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if m.Version != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %q", m.Version)
	}
}

func TestApplyFrameShutdownMessageSignalsShutdown(t *testing.T) {
	m := &status.MonitorStatus{}
	shutdown, err := ApplyFrame(m, nil, Frame{Type: shutdownFrameType}, time.Now())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !shutdown {
		t.Fatal("expected shutdown=true")
	}
}

func TestApplyFrameUnknownTypeErrors(t *testing.T) {
	m := &status.MonitorStatus{}
	if _, err := ApplyFrame(m, nil, Frame{Type: "ZZ", Payload: "x"}, time.Now()); err == nil {
		t.Fatal("expected error for unknown frame type")
	}
}

func TestApplyFrameISWrongFieldCountErrors(t *testing.T) {
	m := &status.MonitorStatus{}
	if _, err := ApplyFrame(m, nil, Frame{Type: "IS", Payload: "1 2 3"}, time.Now()); err == nil {
		t.Fatal("expected error for short IS payload")
	}
}

func TestApplyFrameNHResizesHostList(t *testing.T) {
	m := &status.MonitorStatus{}
	hosts := NewHostList(2)
	if _, err := ApplyFrame(m, hosts, Frame{Type: "NH", Payload: "4"}, time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(hosts.Entries()) != 4 {
		t.Fatalf("expected host list resized to 4, got %d", len(hosts.Entries()))
	}
}

func TestApplyFrameHLWritesRowByPosition(t *testing.T) {
	m := &status.MonitorStatus{}
	hosts := NewHostList(2)
	f := Frame{Type: "HL", Payload: "1 remote2 10.0.0.5 10.0.0.6"}
	if _, err := ApplyFrame(m, hosts, f, time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got := hosts.Entries()[1]
	if got.Alias != "remote2" || got.Real1 != "10.0.0.5" || got.Real2 != "10.0.0.6" {
		t.Fatalf("unexpected row: %+v", got)
	}
}

// TestApplyFrameHLShortLineLeavesTrailingFieldsBlank preserves the
// original's positional (not named-field) HL parsing: a line with
// fewer than four fields leaves the real-hostname fields blank rather
// than erroring.
func TestApplyFrameHLShortLineLeavesTrailingFieldsBlank(t *testing.T) {
	m := &status.MonitorStatus{}
	hosts := NewHostList(2)
	f := Frame{Type: "HL", Payload: "0 remote1"}
	if _, err := ApplyFrame(m, hosts, f, time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got := hosts.Entries()[0]
	if got.Alias != "remote1" {
		t.Fatalf("expected alias remote1, got %q", got.Alias)
	}
	if got.Real1 != "" || got.Real2 != "" {
		t.Fatalf("expected trailing fields blank, got %+v", got)
	}
}

func TestApplyFrameHLNilHostListIsNoop(t *testing.T) {
	m := &status.MonitorStatus{}
	f := Frame{Type: "HL", Payload: "0 remote1 10.0.0.1 10.0.0.2"}
	if _, err := ApplyFrame(m, nil, f, time.Now()); err != nil {
		t.Fatalf("apply: %v", err)
	}
}
