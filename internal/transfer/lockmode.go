package transfer

import "strings"

// LockMode selects how a send worker stages a remote file so a
// concurrent reader never sees a partial write (spec §4.3: "Locking /
// lock modes: one of {no-lock, lockfile ..., DOT-prefix ..., DOT_VMS
// ..., POSTFIX}").
type LockMode int

const (
	LockNone LockMode = iota
	LockFile
	LockDotPrefix
	LockDotVMS
	LockPostfix
)

// postfixSuffix is the staging suffix POSTFIX mode appends during
// transfer, mirroring the dot-prefix modes' role but at the tail of
// the name instead of the head.
const postfixSuffix = ".tmp"

// ParseLockMode reads the lock-mode token stored in an MDB entry
// (empty string and "no" both mean no-lock).
func ParseLockMode(s string) LockMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lockfile":
		return LockFile
	case "dot":
		return LockDotPrefix
	case "dot_vms":
		return LockDotVMS
	case "postfix":
		return LockPostfix
	default:
		return LockNone
	}
}

// StageName returns the name a file should be written to remotely
// under this lock mode. For DOT/DOT_VMS/POSTFIX this differs from the
// final name; the caller renames after a successful close (see
// NeedsRename/FinalName). LockFile and LockNone write directly under
// the final name — LockFile instead guards the transfer with a
// separate peer file (see PeerLockFile).
func (m LockMode) StageName(name string) string {
	switch m {
	case LockDotPrefix:
		return "." + name
	case LockDotVMS:
		return "." + name + "."
	case LockPostfix:
		return name + postfixSuffix
	default:
		return name
	}
}

// NeedsRename reports whether a successful transfer under this mode
// must be followed by a remote rename from StageName to the final
// name.
func (m LockMode) NeedsRename() bool {
	switch m {
	case LockDotPrefix, LockDotVMS, LockPostfix:
		return true
	default:
		return false
	}
}

// PeerLockFile returns the side lock-file name LockFile mode creates
// before transfer and removes after (spec §4.3: "lockfile (create and
// remove a peer file)"). Other modes return "".
func (m LockMode) PeerLockFile(name string) string {
	if m != LockFile {
		return ""
	}
	return name + ".lock"
}
