package status

import "fmt"

// Field widths for the fixed-stride MSA (monitor status area) record.
const (
	MonAliasLen    = 12
	MonHostnameLen = 40
	MonVersionLen  = 40
	StorageTime    = 7 // days of top-rate history kept, spec §3
	LogFifoSize    = 10
	ConvertUserLen = 32
)

// MSAMagic identifies a Monitor Status Area file.
var MSAMagic = [4]byte{'M', 'S', 'A', '_'}

// MonConnectStatus is the probe's connection state toward its remote
// AFDD (spec §3: CONNECTING -> NORMAL_STATUS -> DISCONNECTED, with
// DISABLED a terminal state until external enable).
type MonConnectStatus int32

const (
	MonDisconnected MonConnectStatus = iota
	MonConnecting
	MonNormal
	MonDisabled
)

func (s MonConnectStatus) String() string {
	switch s {
	case MonDisconnected:
		return "DISCONNECTED"
	case MonConnecting:
		return "CONNECTING"
	case MonNormal:
		return "NORMAL_STATUS"
	case MonDisabled:
		return "DISABLED"
	default:
		return fmt.Sprintf("MonConnectStatus(%d)", int32(s))
	}
}

// ComponentState is the single-byte AMG/FD/archive-watch status
// reported in `AM`/`FD`/`AW` frames (spec §4.7).
type ComponentState byte

const (
	CompUnknown ComponentState = iota
	CompOK
	CompStopped
)

// MonitorStatus is the per-remote-AFD MSA record.
type MonitorStatus struct {
	Alias            string
	Hostname         string
	Port             int32
	PollInterval     int32
	Version          string
	AMG              ComponentState
	FD               ComponentState
	ArchiveWatch     ComponentState
	FilesToSend      uint32
	FileSizeToSend   uint64
	TransferRate     uint32
	FileRate         uint32
	ErrorCounter     uint32
	HostErrorCounter int32
	NoOfTransfers    int32
	JobsInQueue      int32
	TopTransferRate  [StorageTime]uint32
	TopFileRate      [StorageTime]uint32
	SysLogFifo       [LogFifoSize]byte
	ConnectStatus    MonConnectStatus
	LastDataTime     int64
	NoOfHosts        int32
	ConvertUsername  [2]string
}

// MSAStride is the encoded byte width of one MonitorStatus record.
const MSAStride = MonAliasLen + MonHostnameLen + 4 + 4 + MonVersionLen +
	1 + 1 + 1 + 4 + 8 + 4 + 4 + 4 + 4 + 4 + 4 +
	StorageTime*4 + StorageTime*4 + LogFifoSize + 4 + 8 + 4 + 2*ConvertUserLen

// Stride implements Record.
func (m *MonitorStatus) Stride() int { return MSAStride }

// Encode implements Record.
func (m *MonitorStatus) Encode(buf []byte) {
	c := newCursor(buf)
	c.PutString(m.Alias, MonAliasLen)
	c.PutString(m.Hostname, MonHostnameLen)
	c.PutInt32(m.Port)
	c.PutInt32(m.PollInterval)
	c.PutString(m.Version, MonVersionLen)
	c.PutByte(byte(m.AMG))
	c.PutByte(byte(m.FD))
	c.PutByte(byte(m.ArchiveWatch))
	c.PutUint32(m.FilesToSend)
	c.PutUint64(m.FileSizeToSend)
	c.PutUint32(m.TransferRate)
	c.PutUint32(m.FileRate)
	c.PutUint32(m.ErrorCounter)
	c.PutInt32(m.HostErrorCounter)
	c.PutInt32(m.NoOfTransfers)
	c.PutInt32(m.JobsInQueue)
	for _, v := range m.TopTransferRate {
		c.PutUint32(v)
	}
	for _, v := range m.TopFileRate {
		c.PutUint32(v)
	}
	c.PutBytes(m.SysLogFifo[:], LogFifoSize)
	c.PutInt32(int32(m.ConnectStatus))
	c.PutInt64(m.LastDataTime)
	c.PutInt32(m.NoOfHosts)
	c.PutString(m.ConvertUsername[0], ConvertUserLen)
	c.PutString(m.ConvertUsername[1], ConvertUserLen)
}

// Decode implements Record.
func (m *MonitorStatus) Decode(buf []byte) error {
	if len(buf) < MSAStride {
		return fmt.Errorf("status: short MonitorStatus buffer (%d < %d)", len(buf), MSAStride)
	}
	c := newCursor(buf)
	m.Alias = c.GetString(MonAliasLen)
	m.Hostname = c.GetString(MonHostnameLen)
	m.Port = c.GetInt32()
	m.PollInterval = c.GetInt32()
	m.Version = c.GetString(MonVersionLen)
	m.AMG = ComponentState(c.GetByte())
	m.FD = ComponentState(c.GetByte())
	m.ArchiveWatch = ComponentState(c.GetByte())
	m.FilesToSend = c.GetUint32()
	m.FileSizeToSend = c.GetUint64()
	m.TransferRate = c.GetUint32()
	m.FileRate = c.GetUint32()
	m.ErrorCounter = c.GetUint32()
	m.HostErrorCounter = c.GetInt32()
	m.NoOfTransfers = c.GetInt32()
	m.JobsInQueue = c.GetInt32()
	for i := range m.TopTransferRate {
		m.TopTransferRate[i] = c.GetUint32()
	}
	for i := range m.TopFileRate {
		m.TopFileRate[i] = c.GetUint32()
	}
	copy(m.SysLogFifo[:], c.GetBytes(LogFifoSize))
	m.ConnectStatus = MonConnectStatus(c.GetInt32())
	m.LastDataTime = c.GetInt64()
	m.NoOfHosts = c.GetInt32()
	m.ConvertUsername[0] = c.GetString(ConvertUserLen)
	m.ConvertUsername[1] = c.GetString(ConvertUserLen)
	return nil
}

// RollTopRates shifts the top-rate rings at UTC-day rollover and
// updates today's slot if tr/fr exceed the running maximum (spec §4.7,
// `IS` frame handling).
func (m *MonitorStatus) RollTopRates(rolledOver bool, tr, fr uint32) {
	if rolledOver {
		copy(m.TopTransferRate[1:], m.TopTransferRate[:StorageTime-1])
		copy(m.TopFileRate[1:], m.TopFileRate[:StorageTime-1])
		m.TopTransferRate[0] = 0
		m.TopFileRate[0] = 0
	}
	if tr > m.TopTransferRate[0] {
		m.TopTransferRate[0] = tr
	}
	if fr > m.TopFileRate[0] {
		m.TopFileRate[0] = fr
	}
}
