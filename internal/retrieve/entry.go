// Package retrieve implements RL, the per-fetch-directory retrieve
// list: a memory-mapped, growable array recording which remote files
// have been seen and fetched (spec §3, §4.5), built on the same
// status.Area/Record primitive the shared status areas use.
package retrieve

import (
	"fmt"

	"github.com/hfs/afd-sub005/internal/status"
)

// Field widths for the current retrieve-list entry layout.
const (
	FileNameLen = 256
	// Step is the growth chunk size entries are added in to amortize
	// the cost of remapping (spec §3, §4.5).
	Step = 50
)

// RLMagic identifies a retrieve-list file in the current layout.
var RLMagic = [4]byte{'R', 'L', '_', '_'}

// Entry is one retrieve-list row (spec §3).
type Entry struct {
	FileName     string
	Size         int64
	FileMtime    int64 // UTC unix seconds; -1 if unknown
	GotDate      bool
	Retrieved    bool
	InList       bool
	AssignedSlot int32
}

// EntryStride is the encoded byte width of one Entry record.
const EntryStride = FileNameLen + 8 + 8 + 1 + 1 + 1 + 4

// Stride implements status.Record.
func (e *Entry) Stride() int { return EntryStride }

// Encode implements status.Record.
func (e *Entry) Encode(buf []byte) {
	c := status.NewCursor(buf)
	c.PutString(e.FileName, FileNameLen)
	c.PutInt64(e.Size)
	c.PutInt64(e.FileMtime)
	c.PutByte(boolByte(e.GotDate))
	c.PutByte(boolByte(e.Retrieved))
	c.PutByte(boolByte(e.InList))
	c.PutInt32(e.AssignedSlot)
}

// Decode implements status.Record.
func (e *Entry) Decode(buf []byte) error {
	if len(buf) < EntryStride {
		return fmt.Errorf("retrieve: short entry buffer (%d < %d)", len(buf), EntryStride)
	}
	c := status.NewCursor(buf)
	e.FileName = c.GetString(FileNameLen)
	e.Size = c.GetInt64()
	e.FileMtime = c.GetInt64()
	e.GotDate = c.GetByte() != 0
	e.Retrieved = c.GetByte() != 0
	e.InList = c.GetByte() != 0
	e.AssignedSlot = c.GetInt32()
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
