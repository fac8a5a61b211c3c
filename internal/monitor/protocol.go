package monitor

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hfs/afd-sub005/internal/status"
)

// shutdownFrameType is AFDD_SHUTDOWN_MESSAGE's frame tag: unlike every
// other frame it isn't two letters, so it's matched on the whole line
// rather than through the two-char/space split every other frame uses.
const shutdownFrameType = "AFDD_SHUTDOWN_MESSAGE"

// HostListEntry is one row of the remote's AFD_HOST_LIST, as reported
// by an `HL` frame.
type HostListEntry struct {
	Alias string
	Real1 string
	Real2 string
}

// HostList mirrors the AFD_HOST_LIST file an `NH`/`HL` frame pair
// populates: one row per remote host, addressed positionally. This
// preserves mon.c/mafdcmd.c's own HL handling exactly: the four
// whitespace-separated fields (pos, alias, real1, real2) are read
// positionally, and a line shorter than four fields leaves the
// trailing real-hostname fields at their zero value rather than
// rejecting the frame.
type HostList struct {
	mu      sync.Mutex
	entries []HostListEntry
}

// NewHostList returns a HostList sized for n hosts.
func NewHostList(n int) *HostList {
	return &HostList{entries: make([]HostListEntry, n)}
}

// Resize implements the `NH n` frame's "remap the AFD_HOST_LIST file
// to the new size" step: existing rows within the new bounds are
// kept, rows beyond it are dropped, and new rows start zero-valued.
func (h *HostList) Resize(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	grown := make([]HostListEntry, n)
	copy(grown, h.entries)
	h.entries = grown
}

// Apply decodes one `HL` frame's fields and stores it at its
// positional index. fields[0] is the row position; fields[1:] are
// alias, real1, real2 in that order, each optional — matching the
// original's positional (not NUL-delimited) HL parsing.
func (h *HostList) Apply(fields []string) error {
	if len(fields) < 1 {
		return fmt.Errorf("monitor: HL frame: missing position field")
	}
	pos, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("monitor: HL frame pos: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if pos < 0 || pos >= len(h.entries) {
		return fmt.Errorf("monitor: HL frame: pos %d out of range (%d rows)", pos, len(h.entries))
	}
	var e HostListEntry
	if len(fields) > 1 {
		e.Alias = fields[1]
	}
	if len(fields) > 2 {
		e.Real1 = fields[2]
	}
	if len(fields) > 3 {
		e.Real2 = fields[3]
	}
	h.entries[pos] = e
	return nil
}

// Entries returns a snapshot copy of the current rows.
func (h *HostList) Entries() []HostListEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HostListEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Frame is one parsed line of G's AFDD wire protocol (spec §4.7):
// the first two characters identify the frame type, then a space,
// then a type-specific payload.
type Frame struct {
	Type    string
	Payload string
}

// ParseFrame splits one CRLF-terminated protocol line into its frame
// type and payload.
func ParseFrame(line string) (Frame, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == shutdownFrameType {
		return Frame{Type: shutdownFrameType}, nil
	}
	if len(line) < 2 {
		return Frame{}, fmt.Errorf("monitor: frame too short: %q", line)
	}
	typ := line[:2]
	payload := ""
	if len(line) > 2 {
		if line[2] != ' ' {
			return Frame{}, fmt.Errorf("monitor: malformed frame %q: expected space after type", line)
		}
		payload = line[3:]
	}
	return Frame{Type: typ, Payload: payload}, nil
}

// ApplyFrame updates m (and, for NH/HL frames, hosts) in place per
// spec §4.7's per-frame-type field parsers, given the wall-clock time
// the frame arrived (needed for the IS frame's UTC-day rollover
// check). hosts may be nil if the caller doesn't track AFD_HOST_LIST
// rows (e.g. tests exercising only MSA fields). It reports whether
// this frame was AFDD_SHUTDOWN_MESSAGE, the signal to disconnect and
// retry (Probe.Run waits out its backoff before reconnecting).
func ApplyFrame(m *status.MonitorStatus, hosts *HostList, f Frame, now time.Time) (shutdown bool, err error) {
	switch f.Type {
	case shutdownFrameType:
		return true, nil

	case "IS":
		fields := strings.Fields(f.Payload)
		if len(fields) != 8 {
			return false, fmt.Errorf("monitor: IS frame: expected 8 fields, got %d", len(fields))
		}
		vals, err := parseUints(fields)
		if err != nil {
			return false, fmt.Errorf("monitor: IS frame: %w", err)
		}
		m.FilesToSend = uint32(vals[0])
		m.FileSizeToSend = vals[1]
		tr := uint32(vals[2])
		fr := uint32(vals[3])
		m.ErrorCounter = uint32(vals[4])
		m.HostErrorCounter = int32(vals[5])
		m.NoOfTransfers = int32(vals[6])
		m.JobsInQueue = int32(vals[7])

		rolledOver := !sameUTCDay(m.LastDataTime, now)
		m.RollTopRates(rolledOver, tr, fr)
		m.TransferRate = tr
		m.FileRate = fr
		m.LastDataTime = now.UTC().Unix()

	case "AM":
		m.AMG = parseComponentState(f.Payload)
	case "FD":
		m.FD = parseComponentState(f.Payload)
	case "AW":
		m.ArchiveWatch = parseComponentState(f.Payload)

	case "NH":
		n, err := strconv.Atoi(strings.TrimSpace(f.Payload))
		if err != nil {
			return false, fmt.Errorf("monitor: NH frame: %w", err)
		}
		m.NoOfHosts = int32(n)
		if hosts != nil && n != len(hosts.Entries()) {
			hosts.Resize(n)
		}

	case "MC":
		// max_connections has no backing MSA field (spec §3 doesn't
		// carry it in MonitorStatus); parsed to keep frame sync but
		// otherwise discarded, the same as every frame type whose
		// payload has no MSA home.
		if _, err := strconv.Atoi(strings.TrimSpace(f.Payload)); err != nil {
			return false, fmt.Errorf("monitor: MC frame: %w", err)
		}

	case "SR":
		fields := strings.Fields(f.Payload)
		if len(fields) != status.LogFifoSize+1 {
			return false, fmt.Errorf("monitor: SR frame: expected %d fields, got %d", status.LogFifoSize+1, len(fields))
		}
		for i := 0; i < status.LogFifoSize; i++ {
			v, err := strconv.Atoi(fields[i+1])
			if err != nil {
				return false, fmt.Errorf("monitor: SR frame severity %d: %w", i, err)
			}
			m.SysLogFifo[i] = byte(v)
		}

	case "HL":
		if hosts == nil {
			break
		}
		fields := strings.Fields(f.Payload)
		if err := hosts.Apply(fields); err != nil {
			return false, err
		}

	case "AV":
		m.Version = truncate(f.Payload, status.MonVersionLen)
	case "WD":
		// working directory is length-guarded but has no MSA field.
		_ = truncate(f.Payload, status.MonHostnameLen)

	default:
		return false, fmt.Errorf("monitor: unknown frame type %q", f.Type)
	}
	return false, nil
}

func parseComponentState(payload string) status.ComponentState {
	payload = strings.TrimSpace(payload)
	if len(payload) == 0 {
		return status.CompUnknown
	}
	switch payload[0] {
	case '0':
		return status.CompStopped
	case '1':
		return status.CompOK
	default:
		return status.CompUnknown
	}
}

func parseUints(fields []string) ([]uint64, error) {
	out := make([]uint64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %d (%q): %w", i, s, err)
		}
		out[i] = v
	}
	return out, nil
}

func sameUTCDay(unixSec int64, now time.Time) bool {
	if unixSec == 0 {
		return true
	}
	prev := time.Unix(unixSec, 0).UTC()
	n := now.UTC()
	py, pm, pd := prev.Date()
	ny, nm, nd := n.Date()
	return py == ny && pm == nm && pd == nd
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
