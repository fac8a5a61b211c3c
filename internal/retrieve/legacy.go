package retrieve

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hfs/afd-sub005/internal/status"
)

// Legacy retrieve-list layouts migrate() must still read (spec §4.5,
// `old_retrieve_list` and `old_int_retrieve_list`). Field order
// follows the migration loop in
// original_source/src/fd/attach_ls_data.c (file_name, date/mtime,
// size, retrieved, in_list); the struct definitions themselves live in
// a header that was not part of the retrieval pack, so these widths
// are a documented reconstruction rather than a byte-exact port (see
// DESIGN.md's Open Question decision for this package).
const (
	legacyDateLen = 15 // "YYYYMMDDHHMMSS" + NUL, OLD_MAX_FTP_DATE_LENGTH
	oldStride     = FileNameLen + legacyDateLen + 4 + 1 + 1
	oldIntStride  = FileNameLen + 4 + 4 + 1 + 1
)

func decodeOldRecord(buf []byte) Entry {
	c := status.NewCursor(buf)
	name := c.GetString(FileNameLen)
	dateRaw := c.GetString(legacyDateLen)
	size := c.GetInt32()
	retrieved := c.GetByte() != 0
	inList := c.GetByte() != 0
	mtime, got := int64(-1), false
	if dateRaw != "" {
		mtime, got = decodeOldASCIIDate(dateRaw)
	}
	return Entry{
		FileName:  name,
		Size:      int64(size),
		FileMtime: mtime,
		GotDate:   got,
		Retrieved: retrieved,
		InList:    inList,
	}
}

func decodeOldIntRecord(buf []byte) Entry {
	c := status.NewCursor(buf)
	name := c.GetString(FileNameLen)
	mtime := c.GetInt32()
	size := c.GetInt32()
	retrieved := c.GetByte() != 0
	inList := c.GetByte() != 0
	return Entry{
		FileName:  name,
		Size:      int64(size),
		FileMtime: int64(mtime),
		GotDate:   mtime != -1,
		Retrieved: retrieved,
		InList:    inList,
	}
}

// decodeOldASCIIDate parses a legacy `YYYYMMDDHHMMSS` timestamp into
// UTC unix seconds, reading digit groups from the tail backward the
// same way attach_ls_data.c's migration loop does (seconds, minutes,
// hours, day, month, year).
func decodeOldASCIIDate(raw string) (int64, bool) {
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	s := raw[:n]
	if len(s) < 14 {
		return -1, false
	}
	sec, e1 := atoiDigits(s[12:14])
	min, e2 := atoiDigits(s[10:12])
	hour, e3 := atoiDigits(s[8:10])
	day, e4 := atoiDigits(s[6:8])
	mon, e5 := atoiDigits(s[4:6])
	year, e6 := atoiDigits(s[0:4])
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil || e6 != nil {
		return -1, false
	}
	t := time.Date(year, time.Month(mon), day, hour, min, sec, 0, time.UTC)
	return t.Unix(), true
}

func atoiDigits(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("retrieve: non-digit byte in legacy date %q", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

// migrate converts a legacy retrieve-list file in place: it reads the
// old-sized records, writes a new file under a dot-prefixed name in
// the current layout, and atomically renames it over path (spec
// §4.5). Returns an error if path's size matches neither known legacy
// layout, which tells the caller to discard and recreate empty.
func migrate(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("retrieve: read %s for migration: %w", path, err)
	}
	if len(raw) < status.HeaderSize {
		return fmt.Errorf("retrieve: %s too small for any known layout", path)
	}
	body := raw[status.HeaderSize:]

	var entries []Entry
	switch {
	case len(body) > 0 && len(body)%oldStride == 0:
		n := len(body) / oldStride
		entries = make([]Entry, n)
		for i := 0; i < n; i++ {
			entries[i] = decodeOldRecord(body[i*oldStride : (i+1)*oldStride])
		}
	case len(body) > 0 && len(body)%oldIntStride == 0:
		n := len(body) / oldIntStride
		entries = make([]Entry, n)
		for i := 0; i < n; i++ {
			entries[i] = decodeOldIntRecord(body[i*oldIntStride : (i+1)*oldIntStride])
		}
	default:
		return fmt.Errorf("retrieve: %s matches no known retrieve-list layout", path)
	}

	tmpPath := filepath.Join(filepath.Dir(path), "."+filepath.Base(path))
	area, err := status.Create(tmpPath, RLMagic, EntryStride)
	if err != nil {
		return err
	}
	if err := area.Grow(stepCeil(len(entries)), EntryStride); err != nil {
		area.Detach()
		return err
	}
	if err := area.SetCount(len(entries)); err != nil {
		area.Detach()
		return err
	}
	for i := range entries {
		if err := area.WriteRecord(i, &entries[i]); err != nil {
			area.Detach()
			return err
		}
	}
	if err := area.Detach(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func stepCeil(n int) int {
	if n == 0 {
		return Step
	}
	return ((n + Step - 1) / Step) * Step
}
