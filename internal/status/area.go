package status

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Record is implemented by the fixed-stride row type of one shared
// status area (HostStatus for FSA, FetchStatus for FRA, MonitorStatus
// for MSA, and the retrieve-list entry in package retrieve).
type Record interface {
	Stride() int
	Encode(buf []byte)
	Decode(buf []byte) error
}

// Area is a memory-mapped file of fixed-stride records behind a small
// header. It is the single primitive `internal/status` and
// `internal/retrieve` build their specific areas on top of.
type Area struct {
	path   string
	file   *os.File
	data   []byte
	stride int
	magic  [4]byte
	log    *logrus.Entry
}

// Create makes a new, empty area file with room for zero records and
// maps it. Callers grow it with Grow.
func Create(path string, magic [4]byte, stride int) (*Area, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("status: create %s: %w", path, err)
	}
	if err := f.Truncate(int64(headerSize)); err != nil {
		f.Close()
		return nil, err
	}
	h := header{Magic: magic, Version: CurrentVersion, Count: 0, Stride: uint32(stride)}
	if _, err := f.WriteAt(encodeHeader(h), 0); err != nil {
		f.Close()
		return nil, err
	}
	f.Close()
	a, err := Attach(path)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Attach maps an existing area file read-write, in its entirety.
func Attach(path string) (*Area, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("status: attach %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := fi.Size()
	if size < headerSize {
		f.Close()
		return nil, fmt.Errorf("status: %s too small to be a status area (%d bytes)", path, size)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("status: mmap %s: %w", path, err)
	}
	hdr, err := decodeHeader(data)
	if err != nil {
		unix.Munmap(data)
		f.Close()
		return nil, err
	}
	if hdr.Version != CurrentVersion {
		unix.Munmap(data)
		f.Close()
		return nil, ErrVersionMismatch
	}
	a := &Area{
		path:   path,
		file:   f,
		data:   data,
		stride: int(hdr.Stride),
		magic:  hdr.Magic,
		log:    logrus.WithFields(logrus.Fields{"component": "status", "path": path}),
	}
	return a, nil
}

// Count returns the live record count from the header.
func (a *Area) Count() int {
	return int(decodeHeaderCountUnsafe(a.data))
}

func decodeHeaderCountUnsafe(data []byte) uint32 {
	h, err := decodeHeader(data)
	if err != nil {
		return 0
	}
	return h.Count
}

// Check observes the header's stale sentinel. A caller holding a
// position of interest passes hadAlias/stillHasAlias via its own
// re-lookup after Reattach; Check itself only distinguishes "nothing
// changed" from "a rebuild happened, re-attach".
func (a *Area) Check() CheckResult {
	if len(a.data) < headerSize {
		return ReattachedButGone
	}
	if a.data[5] == staleMarker {
		return ReattachedAndFound // caller must Detach+Attach to find out which
	}
	return Unchanged
}

// Detach unmaps and closes the area.
func (a *Area) Detach() error {
	var errs []error
	if a.data != nil {
		if err := unix.Munmap(a.data); err != nil {
			errs = append(errs, err)
		}
		a.data = nil
	}
	if a.file != nil {
		if err := a.file.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("status: detach %s: %v", a.path, errs)
	}
	return nil
}

// Reattach re-opens the area at the same path (the config-management
// process renames a freshly built file into place once the old one is
// marked stale) and replaces this Area's mapping in place.
func (a *Area) Reattach() error {
	if err := a.Detach(); err != nil {
		a.log.WithError(err).Warn("detach before reattach failed, continuing")
	}
	fresh, err := Attach(a.path)
	if err != nil {
		return err
	}
	*a = *fresh
	return nil
}

// recordOffset is the absolute byte offset of record pos in the file.
func (a *Area) recordOffset(pos int) int64 {
	return int64(headerSize + pos*a.stride)
}

// File exposes the backing *os.File for byte-range locking callers.
func (a *Area) File() *os.File { return a.file }

// RecordOffset is the exported form of recordOffset, used by callers
// that need to take a WithHostLock on a specific record.
func (a *Area) RecordOffset(pos int) int64 { return a.recordOffset(pos) }

// AttachPos validates pos against the live count and returns the byte
// window backing that single record, still inside the whole-area
// mapping (workers that only care about one slot still get a real
// shared view, just scoped to the record they need).
func (a *Area) AttachPos(pos int) ([]byte, error) {
	if pos < 0 || pos >= a.Count() {
		return nil, fmt.Errorf("status: position %d out of range (count %d)", pos, a.Count())
	}
	off := a.recordOffset(pos)
	return a.data[off : off+int64(a.stride)], nil
}

// ReadRecord decodes record pos into rec.
func (a *Area) ReadRecord(pos int, rec Record) error {
	buf, err := a.AttachPos(pos)
	if err != nil {
		return err
	}
	return rec.Decode(buf)
}

// WriteRecord encodes rec into record pos.
func (a *Area) WriteRecord(pos int, rec Record) error {
	buf, err := a.AttachPos(pos)
	if err != nil {
		return err
	}
	rec.Encode(buf)
	return nil
}

// Grow extends the area to hold newCount records, remapping the file.
// Used by the retrieve-list store, which grows in STEP-sized chunks to
// amortize the cost of remapping (spec §4.5).
func (a *Area) Grow(newCount int, stride int) error {
	a.stride = stride
	newSize := int64(headerSize + newCount*stride)
	if err := a.file.Truncate(newSize); err != nil {
		return fmt.Errorf("status: grow %s to %d records: %w", a.path, newCount, err)
	}
	if err := unix.Munmap(a.data); err != nil {
		return err
	}
	data, err := unix.Mmap(int(a.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("status: remap %s: %w", a.path, err)
	}
	a.data = data
	h, err := decodeHeader(a.data)
	if err != nil {
		return err
	}
	h.Count = uint32(newCount)
	h.Stride = uint32(stride)
	copy(a.data[:headerSize], encodeHeader(h))
	return nil
}

// SetStride is used by area owners (FSA/FRA/MSA) that know their
// stride from a fixed Go type rather than computing it after a Grow.
// It updates both the in-memory stride and the on-disk header so a
// later Attach from another process recovers the same value.
func (a *Area) SetStride(stride int) {
	a.stride = stride
	if len(a.data) < headerSize {
		return
	}
	h, err := decodeHeader(a.data)
	if err != nil {
		return
	}
	h.Stride = uint32(stride)
	copy(a.data[:headerSize], encodeHeader(h))
}

// Stride reports the configured record stride.
func (a *Area) Stride() int { return a.stride }

// Capacity reports how many records the backing file currently has
// room for, independent of the header's live Count. Growable stores
// like the retrieve list use this to decide when a Grow is needed
// without disturbing their own notion of how many entries are live.
func (a *Area) Capacity() int {
	if a.stride == 0 {
		return 0
	}
	return (len(a.data) - headerSize) / a.stride
}

// MarkStale flips the stale sentinel in place; used by the (normally
// out-of-scope) config-management path and by tests exercising the
// reattach contract.
func (a *Area) MarkStale() error {
	a.data[5] = staleMarker
	return nil
}

// SetCount updates the header's live record count without resizing
// the backing file (used for areas, like FSA, sized once at create
// time for the full configured host set).
func (a *Area) SetCount(n int) error {
	h, err := decodeHeader(a.data)
	if err != nil {
		return err
	}
	h.Count = uint32(n)
	copy(a.data[:headerSize], encodeHeader(h))
	return nil
}
