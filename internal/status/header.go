// Package status implements the memory-mapped shared status areas
// (FSA, FRA, MSA) that are the sole cross-process communication medium
// for live state in AFD: fixed-stride records behind a small header
// carrying a record count, a schema version, and a stale sentinel.
package status

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// headerSize is the number of bytes reserved ahead of the record array
// in every shared status file (the spec's AFD_WORD_OFFSET).
const headerSize = 64

// HeaderSize is the exported form of headerSize, used by packages that
// hand-construct or migrate an area-shaped file outside this package
// (internal/retrieve's legacy retrieve-list migration).
const HeaderSize = headerSize

// CurrentVersion is the schema version this build writes and expects.
const CurrentVersion uint8 = 1

// staleMarker is written into the header's Stale byte by the (out of
// scope) config-management process when it has rebuilt the area and
// renamed a fresh file into place. Any attached process must re-attach.
const staleMarker uint8 = 0xFF

var (
	// ErrStale is returned by check() style calls once the header's
	// stale sentinel has been observed.
	ErrStale = errors.New("status: area marked stale, re-attach required")
	// ErrVersionMismatch means the on-disk schema predates what this
	// build knows how to read.
	ErrVersionMismatch = errors.New("status: record version mismatch")
)

// CheckResult is the outcome of check() against a live area.
type CheckResult int

const (
	// Unchanged means the header's stale sentinel is not set.
	Unchanged CheckResult = iota
	// ReattachedAndFound means the area was rebuilt but re-attaching found
	// the same logical row (by alias) at a (possibly new) position.
	ReattachedAndFound
	// ReattachedButGone means the area was rebuilt and the row this
	// caller cared about no longer exists.
	ReattachedButGone
)

// header is the fixed binary layout stored at the front of every area file.
type header struct {
	Magic   [4]byte
	Version uint8
	Stale   uint8
	_       [2]byte // padding
	Count   uint32
	Flags   uint32
	Stride  uint32
}

func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], h.Magic[:])
	buf[4] = h.Version
	buf[5] = h.Stale
	binary.LittleEndian.PutUint32(buf[8:12], h.Count)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
	binary.LittleEndian.PutUint32(buf[16:20], h.Stride)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("status: short header (%d bytes)", len(buf))
	}
	var h header
	copy(h.Magic[:], buf[0:4])
	h.Version = buf[4]
	h.Stale = buf[5]
	h.Count = binary.LittleEndian.Uint32(buf[8:12])
	h.Flags = binary.LittleEndian.Uint32(buf[12:16])
	h.Stride = binary.LittleEndian.Uint32(buf[16:20])
	return h, nil
}

func (h header) isStale() bool { return h.Stale == staleMarker }
