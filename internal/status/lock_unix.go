//go:build linux || darwin

package status

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// LockDomain identifies one of the three independent byte-range lock
// domains carried by every host record: total-file-counter/size (TFC),
// error-counter/history (EC), and host-status flags (HS). Writers to
// different domains on the same host proceed in parallel; writers to
// the same domain serialize.
type LockDomain int

const (
	LockTFC LockDomain = iota
	LockEC
	LockHS
	numLockDomains
)

// domainWidth is the width in bytes of the byte-range reserved for each
// lock domain; the actual record fields the domain guards live well
// within this range, the lock call only needs a stable, non-overlapping
// span per domain per record.
const domainWidth = 4

// lockOffset returns the absolute byte offset and length of the
// byte-range lock for the given record position and domain.
func lockOffset(recordOffset int64, domain LockDomain) (int64, int64) {
	return recordOffset + int64(domain)*domainWidth, domainWidth
}

// WithHostLock acquires the byte-range lock for (pos, domain) on file,
// runs fn, and always releases the lock afterwards, including when fn
// panics or returns an error — a scoped-acquisition guard per the
// design note on guaranteed release on every exit path.
func WithHostLock(file *os.File, recordOffset int64, domain LockDomain, fn func() error) (err error) {
	off, length := lockOffset(recordOffset, domain)
	lk := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: int16(os.SEEK_SET),
		Start:  off,
		Len:    length,
	}
	if lockErr := unix.FcntlFlock(file.Fd(), unix.F_SETLKW, &lk); lockErr != nil {
		return fmt.Errorf("status: lock domain %d at %d: %w", domain, off, lockErr)
	}
	defer func() {
		unlk := unix.Flock_t{
			Type:   unix.F_UNLCK,
			Whence: int16(os.SEEK_SET),
			Start:  off,
			Len:    length,
		}
		if unlockErr := unix.FcntlFlock(file.Fd(), unix.F_SETLK, &unlk); unlockErr != nil && err == nil {
			err = fmt.Errorf("status: unlock domain %d at %d: %w", domain, off, unlockErr)
		}
	}()
	err = fn()
	return err
}
