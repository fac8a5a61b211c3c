package status

import "fmt"

// Field widths for the fixed-stride FRA (fileretrieve status) record.
const (
	DirAliasLen = 12
	URLLen      = 256
)

// FRAMagic identifies a Fileretrieve Status Area file.
var FRAMagic = [4]byte{'F', 'R', 'A', '_'}

// TriSign is the three-way comparison sign used by the ignore-size and
// ignore-file-time filters (spec §3, §4.5): ignore files whose size/age
// is less than, equal to, or greater than the configured threshold.
type TriSign int8

const (
	TriNone    TriSign = 0
	TriEqual   TriSign = 1
	TriLess    TriSign = 2
	TriGreater TriSign = 3
)

// DirFlags are the per-directory boolean toggles from spec §3.
type DirFlags uint32

const (
	DirFlagStupidMode DirFlags = 1 << iota // in-memory RL only, never persisted
	DirFlagRemove                          // delete remote file after successful fetch
	DirFlagDisabled                         // fetching for this dir is paused
)

// FetchStatus is the per-fetch-directory FRA record.
type FetchStatus struct {
	DirAlias           string
	URL                string
	PollInterval       int32
	Flags              DirFlags
	KeepConnected      int32
	IgnoreSize         int64
	IgnoreSizeSign     TriSign
	IgnoreFileTime     int64
	IgnoreFileTimeSign TriSign
	NextCheckTime      int64
	ErrorCounter       uint32
}

// FRAStride is the encoded byte width of one FetchStatus record.
const FRAStride = DirAliasLen + URLLen + 4 + 4 + 4 + 8 + 1 + 8 + 1 + 8 + 4

// Stride implements Record.
func (f *FetchStatus) Stride() int { return FRAStride }

// Encode implements Record.
func (f *FetchStatus) Encode(buf []byte) {
	c := newCursor(buf)
	c.PutString(f.DirAlias, DirAliasLen)
	c.PutString(f.URL, URLLen)
	c.PutInt32(f.PollInterval)
	c.PutUint32(uint32(f.Flags))
	c.PutInt32(f.KeepConnected)
	c.PutInt64(f.IgnoreSize)
	c.PutByte(byte(f.IgnoreSizeSign))
	c.PutInt64(f.IgnoreFileTime)
	c.PutByte(byte(f.IgnoreFileTimeSign))
	c.PutInt64(f.NextCheckTime)
	c.PutUint32(f.ErrorCounter)
}

// Decode implements Record.
func (f *FetchStatus) Decode(buf []byte) error {
	if len(buf) < FRAStride {
		return fmt.Errorf("status: short FetchStatus buffer (%d < %d)", len(buf), FRAStride)
	}
	c := newCursor(buf)
	f.DirAlias = c.GetString(DirAliasLen)
	f.URL = c.GetString(URLLen)
	f.PollInterval = c.GetInt32()
	f.Flags = DirFlags(c.GetUint32())
	f.KeepConnected = c.GetInt32()
	f.IgnoreSize = c.GetInt64()
	f.IgnoreSizeSign = TriSign(c.GetByte())
	f.IgnoreFileTime = c.GetInt64()
	f.IgnoreFileTimeSign = TriSign(c.GetByte())
	f.NextCheckTime = c.GetInt64()
	f.ErrorCounter = c.GetUint32()
	return nil
}

// PassesFilters applies the ignore-size / ignore-file-time tri-sign
// comparisons from spec §4.5's check_list contract.
func (f *FetchStatus) PassesFilters(size int64, ageSeconds int64) bool {
	if !triCompare(f.IgnoreSizeSign, size, f.IgnoreSize) {
		return false
	}
	if !triCompare(f.IgnoreFileTimeSign, ageSeconds, f.IgnoreFileTime) {
		return false
	}
	return true
}

// triCompare returns false when the value should be ignored (filtered
// out) under the given sign/threshold, true when it passes.
func triCompare(sign TriSign, value, threshold int64) bool {
	switch sign {
	case TriNone:
		return true
	case TriEqual:
		return value != threshold
	case TriLess:
		return value >= threshold
	case TriGreater:
		return value <= threshold
	default:
		return true
	}
}
