package status

import "fmt"

// Field widths for the fixed-stride FSA host record, matched to the
// short fixed lengths spec.md §3 calls for.
const (
	HostAliasLen    = 12
	HostnameLen     = 40
	UniqueNameLen   = 9
	FileNameLen     = 80
	MaxSlots        = 10
	ErrorHistoryLen = 12
)

// FSAMagic identifies a Filetransfer Status Area file.
var FSAMagic = [4]byte{'F', 'S', 'A', '_'}

// SlotConnectStatus is the job-slot's connection state.
type SlotConnectStatus int32

const (
	Disconnect SlotConnectStatus = iota
	Connecting
	Connected
	NotWorking
	IsFaulty
)

func (s SlotConnectStatus) String() string {
	switch s {
	case Disconnect:
		return "DISCONNECT"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case NotWorking:
		return "NOT_WORKING"
	case IsFaulty:
		return "IS_FAULTY"
	default:
		return fmt.Sprintf("SlotConnectStatus(%d)", int32(s))
	}
}

// Burst handshake codes carried in JobSlot.UniqueName[2], see spec §4.4.
const (
	HandshakeNone          byte = 0
	HandshakeAwaitingJob   byte = 4
	HandshakeIdleKeepAlive byte = 5
	HandshakeIncompatible  byte = 6
)

// HostFlags are the per-host boolean toggles from spec §3.
type HostFlags uint32

const (
	FlagRetrieveDisabled HostFlags = 1 << iota
	FlagQueueAutoPaused            // AUTO_PAUSE_QUEUE_STAT
	FlagCreateTargetDir
	FlagSortFileNames
	FlagDupCheckDelete
	FlagDupCheckStore
	FlagKeepTimeStamp
)

// Protocol identifies the transfer protocol a host is configured for.
type Protocol byte

const (
	ProtoLOC Protocol = iota
	ProtoFTP
	ProtoSFTP
	ProtoSCP
	ProtoHTTP
)

func (p Protocol) String() string {
	switch p {
	case ProtoLOC:
		return "loc"
	case ProtoFTP:
		return "ftp"
	case ProtoSFTP:
		return "sftp"
	case ProtoSCP:
		return "scp"
	case ProtoHTTP:
		return "http"
	default:
		return "unknown"
	}
}

// JobSlot is one of MAX_SLOTS per-host concurrency lanes.
type JobSlot struct {
	PID           int32
	ConnectStatus SlotConnectStatus
	UniqueName    [UniqueNameLen]byte
	FileNameInUse string
	BytesSend     uint64
	FilesSend     uint32
	JobID         uint32
}

// HandshakeCode reads byte [2] of UniqueName (see spec §3, §4.4).
func (j *JobSlot) HandshakeCode() byte { return j.UniqueName[2] }

// SetHandshakeCode writes byte [2] of UniqueName.
func (j *JobSlot) SetHandshakeCode(code byte) { j.UniqueName[2] = code }

// InterruptFlag reads byte [3] of UniqueName.
func (j *JobSlot) InterruptFlag() bool { return j.UniqueName[3] != 0 }

// SetInterruptFlag writes byte [3] of UniqueName.
func (j *JobSlot) SetInterruptFlag(v bool) {
	if v {
		j.UniqueName[3] = 1
	} else {
		j.UniqueName[3] = 0
	}
}

// Reset returns the slot to its released state, as done by the FD
// supervisor's reaper on worker exit (spec §3, job-slot lifecycle).
func (j *JobSlot) Reset() {
	*j = JobSlot{ConnectStatus: Disconnect}
}

// HostStatus is the per-host FSA record.
type HostStatus struct {
	Alias            string
	RealHostname     [2]string
	HostToggle       byte
	AllowedTransfers int32
	ActiveTransfers  int32
	TotalFileCounter uint32
	TotalFileSize    uint64
	ErrorCounter     uint32
	ErrorHistory     [ErrorHistoryLen]int32
	ErrorHistoryPos  int32
	Flags            HostFlags
	KeepConnected    int32
	RateLimit        uint64
	MaxErrors        int32
	TransferTimeout  int32
	Protocol         Protocol
	JobsQueued       int32
	Slots            [MaxSlots]JobSlot
}

// fsaSlotStride is the encoded byte width of one JobSlot.
const fsaSlotStride = 4 + 4 + UniqueNameLen + FileNameLen + 8 + 4 + 4

// FSAStride is the encoded byte width of one HostStatus record.
const FSAStride = HostAliasLen + 2*HostnameLen + 1 + 4 + 4 + 4 + 8 + 4 +
	ErrorHistoryLen*4 + 4 + 4 + 4 + 8 + 4 + 4 + 1 + 4 + MaxSlots*fsaSlotStride

// Stride implements Record.
func (h *HostStatus) Stride() int { return FSAStride }

// Encode implements Record.
func (h *HostStatus) Encode(buf []byte) {
	c := newCursor(buf)
	c.PutString(h.Alias, HostAliasLen)
	c.PutString(h.RealHostname[0], HostnameLen)
	c.PutString(h.RealHostname[1], HostnameLen)
	c.PutByte(h.HostToggle)
	c.PutInt32(h.AllowedTransfers)
	c.PutInt32(h.ActiveTransfers)
	c.PutUint32(h.TotalFileCounter)
	c.PutUint64(h.TotalFileSize)
	c.PutUint32(h.ErrorCounter)
	for _, e := range h.ErrorHistory {
		c.PutInt32(e)
	}
	c.PutInt32(h.ErrorHistoryPos)
	c.PutUint32(uint32(h.Flags))
	c.PutInt32(h.KeepConnected)
	c.PutUint64(h.RateLimit)
	c.PutInt32(h.MaxErrors)
	c.PutInt32(h.TransferTimeout)
	c.PutByte(byte(h.Protocol))
	c.PutInt32(h.JobsQueued)
	for i := range h.Slots {
		s := &h.Slots[i]
		c.PutInt32(s.PID)
		c.PutInt32(int32(s.ConnectStatus))
		c.PutBytes(s.UniqueName[:], UniqueNameLen)
		c.PutString(s.FileNameInUse, FileNameLen)
		c.PutUint64(s.BytesSend)
		c.PutUint32(s.FilesSend)
		c.PutUint32(s.JobID)
	}
}

// Decode implements Record.
func (h *HostStatus) Decode(buf []byte) error {
	if len(buf) < FSAStride {
		return fmt.Errorf("status: short HostStatus buffer (%d < %d)", len(buf), FSAStride)
	}
	c := newCursor(buf)
	h.Alias = c.GetString(HostAliasLen)
	h.RealHostname[0] = c.GetString(HostnameLen)
	h.RealHostname[1] = c.GetString(HostnameLen)
	h.HostToggle = c.GetByte()
	h.AllowedTransfers = c.GetInt32()
	h.ActiveTransfers = c.GetInt32()
	h.TotalFileCounter = c.GetUint32()
	h.TotalFileSize = c.GetUint64()
	h.ErrorCounter = c.GetUint32()
	for i := range h.ErrorHistory {
		h.ErrorHistory[i] = c.GetInt32()
	}
	h.ErrorHistoryPos = c.GetInt32()
	h.Flags = HostFlags(c.GetUint32())
	h.KeepConnected = c.GetInt32()
	h.RateLimit = c.GetUint64()
	h.MaxErrors = c.GetInt32()
	h.TransferTimeout = c.GetInt32()
	h.Protocol = Protocol(c.GetByte())
	h.JobsQueued = c.GetInt32()
	for i := range h.Slots {
		s := &h.Slots[i]
		s.PID = c.GetInt32()
		s.ConnectStatus = SlotConnectStatus(c.GetInt32())
		copy(s.UniqueName[:], c.GetBytes(UniqueNameLen))
		s.FileNameInUse = c.GetString(FileNameLen)
		s.BytesSend = c.GetUint64()
		s.FilesSend = c.GetUint32()
		s.JobID = c.GetUint32()
	}
	return nil
}

// PushError records an exit reason onto the ring and increments the
// error counter (spec §4.4 step 1), returning true if the host just
// crossed max_errors and should have AUTO_PAUSE_QUEUE_STAT set.
func (h *HostStatus) PushError(reason int32) (crossedThreshold bool) {
	h.ErrorCounter++
	h.ErrorHistory[int(h.ErrorHistoryPos)%ErrorHistoryLen] = reason
	h.ErrorHistoryPos++
	if h.MaxErrors > 0 && h.ErrorCounter == uint32(h.MaxErrors) {
		h.Flags |= FlagQueueAutoPaused
		return true
	}
	return false
}

// ClearErrorHistory resets the error ring and counter, used by
// delete_by_host (spec §4.2).
func (h *HostStatus) ClearErrorHistory() {
	h.ErrorCounter = 0
	h.ErrorHistoryPos = 0
	h.ErrorHistory = [ErrorHistoryLen]int32{}
}

// FreeSlot returns the index of the first slot with PID == 0, or -1.
func (h *HostStatus) FreeSlot() int {
	for i := range h.Slots {
		if h.Slots[i].PID == 0 {
			return i
		}
	}
	return -1
}

// AwaitingSlot returns the index of a connected slot sitting in the
// burst-wait handshake (HandshakeAwaitingJob/HandshakeIdleKeepAlive,
// spec §4.4), or -1 if none is waiting. D's dispatcher prefers this
// over FreeSlot so a queued job for a host already holding an open
// connection reuses it instead of forking a second worker.
func (h *HostStatus) AwaitingSlot() int {
	for i := range h.Slots {
		s := &h.Slots[i]
		if s.PID > 0 && s.ConnectStatus == Connected {
			switch s.HandshakeCode() {
			case HandshakeAwaitingJob, HandshakeIdleKeepAlive:
				return i
			}
		}
	}
	return -1
}
