// Package queue implements QB, the FD supervisor's in-memory ordered
// job queue, and MDB, the per-job metadata cache it fills lazily from
// on-disk message files (spec §3, §4.2).
package queue

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// MDBEntry is the set of static fields resolved from a job's on-disk
// message file: destination URL components, fsa_pos, job_id,
// archive_time, lock mode, transfer_mode, chmod, uid/gid, dup-check
// parameters, port, and rename-rule reference (spec §3).
type MDBEntry struct {
	URL          string
	FSAPos       int
	JobID        uint32
	ArchiveTime  int32
	LockMode     string
	TransferMode byte
	Chmod        os.FileMode
	UID          int
	GID          int
	DupCheckFlag byte
	DupCheckTime int32
	Port         int
	RenameRule   string

	// AgeLimit is age_limit in seconds: spool files older than this
	// are swept as AGE_OUTPUT before a send starts (spec §4.3 step 2).
	// <= 0 disables age filtering.
	AgeLimit int32
}

// MDB is the job-metadata cache keyed by message name. Entries are
// resolved lazily, on a job's first reference from Queue.Enqueue.
type MDB struct {
	mu      sync.Mutex
	entries map[string]*MDBEntry
	parse   func(msgName string) (*MDBEntry, error)
}

// NewMDB builds an MDB that resolves cache misses with parse. Tests
// and alternate spool layouts can pass a stub; production wiring
// passes ParseMessageFile bound to the configured message directory.
func NewMDB(parse func(msgName string) (*MDBEntry, error)) *MDB {
	return &MDB{entries: make(map[string]*MDBEntry), parse: parse}
}

// Lookup returns the cached entry for msgName, parsing and caching it
// on first reference (spec §4.2, "parses message if not cached").
func (m *MDB) Lookup(msgName string) (*MDBEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[msgName]; ok {
		return e, nil
	}
	e, err := m.parse(msgName)
	if err != nil {
		return nil, err
	}
	m.entries[msgName] = e
	return e, nil
}

// Forget drops msgName from the cache, used once its job is deleted.
func (m *MDB) Forget(msgName string) {
	m.mu.Lock()
	delete(m.entries, msgName)
	m.mu.Unlock()
}

// Len reports the number of cached entries, mainly for tests.
func (m *MDB) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// ParseMessageFile reads a message file's `key value` lines, one per
// line, blank lines and `#`-comments ignored — the same whitespace
// grammar internal/afdconfig uses for AFD_MON_DB/HOSTS, grounded on the
// declarative option-table idiom visible at the backend option call
// sites surveyed from the teacher (see DESIGN.md).
func ParseMessageFile(path string) (*MDBEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("queue: open message file %s: %w", path, err)
	}
	defer f.Close()

	e := &MDBEntry{TransferMode: 'I', Chmod: 0644}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		key, val := fields[0], strings.TrimSpace(fields[1])
		switch key {
		case "url":
			e.URL = val
		case "fsa_pos":
			n, _ := strconv.Atoi(val)
			e.FSAPos = n
		case "job_id":
			n, _ := strconv.ParseUint(val, 10, 32)
			e.JobID = uint32(n)
		case "archive_time":
			n, _ := strconv.Atoi(val)
			e.ArchiveTime = int32(n)
		case "lock":
			e.LockMode = val
		case "transfer_mode":
			if val != "" {
				e.TransferMode = val[0]
			}
		case "chmod":
			n, _ := strconv.ParseUint(val, 8, 32)
			e.Chmod = os.FileMode(n)
		case "uid":
			n, _ := strconv.Atoi(val)
			e.UID = n
		case "gid":
			n, _ := strconv.Atoi(val)
			e.GID = n
		case "dup_check_flag":
			if val != "" {
				e.DupCheckFlag = val[0]
			}
		case "dup_check_timeout":
			n, _ := strconv.Atoi(val)
			e.DupCheckTime = int32(n)
		case "port":
			n, _ := strconv.Atoi(val)
			e.Port = n
		case "rename_rule":
			e.RenameRule = val
		case "age_limit":
			n, _ := strconv.Atoi(val)
			e.AgeLimit = int32(n)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return e, nil
}
