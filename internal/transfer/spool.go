package transfer

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SpoolFile is one file found under a job's spool subdirectory,
// the unit FilterSpool and SortNewestLast operate on (spec §4.3
// step 2).
type SpoolFile struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// DupOutcome classifies what happened to a file FilterSpool decided
// was a duplicate, matching the two logged reasons spec §4.3 step 2
// names.
type DupOutcome int

const (
	DupDeleted DupOutcome = iota
	DupArchived
)

// DupChecker tracks which (name, size) pairs have already been seen
// for a host, the minimal signature AFD's dup_check_flag comparison
// needs. A nil DupChecker disables duplicate filtering entirely.
type DupChecker interface {
	Seen(name string, size int64) bool
	Remember(name string, size int64)
}

// SpoolFilterResult partitions a spool scan's files by what step 2 of
// the send-worker lifecycle does with each one.
type SpoolFilterResult struct {
	// Keep holds files to actually transfer, in listed order (apply
	// SortNewestLast separately if the SORT option is set).
	Keep []SpoolFile
	// AgedOut holds files deleted for being older than ageLimit
	// (logged AGE_OUTPUT).
	AgedOut []SpoolFile
	// DupDeleted/DupArchived mirror the two dup_check_flag outcomes
	// (logged DUPLICATE_DELETE / DUPLICATE_STORED).
	DupDeleted  []SpoolFile
	DupArchived []SpoolFile
}

// FilterSpool applies the age-limit and duplicate-check filters spec
// §4.3 step 2 describes. ageLimit <= 0 disables age filtering. dup
// may be nil to disable dup checking; dupOutcome selects whether a
// detected duplicate is treated as DupDeleted or DupArchived.
func FilterSpool(files []SpoolFile, now time.Time, ageLimit time.Duration, dup DupChecker, dupOutcome DupOutcome) SpoolFilterResult {
	var r SpoolFilterResult
	for _, f := range files {
		if ageLimit > 0 && now.Sub(f.ModTime) > ageLimit {
			r.AgedOut = append(r.AgedOut, f)
			continue
		}
		if dup != nil && dup.Seen(f.Name, f.Size) {
			if dupOutcome == DupArchived {
				r.DupArchived = append(r.DupArchived, f)
			} else {
				r.DupDeleted = append(r.DupDeleted, f)
			}
			continue
		}
		if dup != nil {
			dup.Remember(f.Name, f.Size)
		}
		r.Keep = append(r.Keep, f)
	}
	return r
}

// SortNewestLast orders files ascending by ModTime in place, the
// ordering spec §4.3 step 2 calls for when the SORT option is set
// ("Filenames are ordered newest-last").
func SortNewestLast(files []SpoolFile) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModTime.Before(files[j].ModTime)
	})
}

// MapDupChecker is an in-memory DupChecker keyed by name, sized for a
// single worker's lifetime (one spool scan); it is not persisted
// across invocations, matching sf_*'s per-invocation process model.
type MapDupChecker struct {
	seen map[string]int64
}

// NewMapDupChecker builds an empty MapDupChecker.
func NewMapDupChecker() *MapDupChecker {
	return &MapDupChecker{seen: make(map[string]int64)}
}

func (c *MapDupChecker) Seen(name string, size int64) bool {
	sz, ok := c.seen[name]
	return ok && sz == size
}

func (c *MapDupChecker) Remember(name string, size int64) {
	c.seen[name] = size
}

// dupRecord is one FileDupChecker history entry: the size last seen
// under name, and when that memory expires.
type dupRecord struct {
	size    int64
	expires time.Time
}

// FileDupChecker is a DupChecker backed by a small on-disk history
// file, one "name size expires_unix" line per entry. Unlike
// MapDupChecker it survives past one worker's lifetime, which
// dup_check_timeout (spec §3, §4.3 step 2) requires to mean anything:
// a duplicate is only a duplicate if it was seen by an earlier
// invocation, not just earlier in the same spool scan.
type FileDupChecker struct {
	path    string
	ttl     time.Duration
	now     time.Time
	entries map[string]dupRecord
	dirty   bool
}

// OpenFileDupChecker loads path's history, dropping entries already
// past their expiry relative to now. A missing file is an empty,
// freshly-started history, not an error.
func OpenFileDupChecker(path string, ttl time.Duration, now time.Time) (*FileDupChecker, error) {
	c := &FileDupChecker{path: path, ttl: ttl, now: now, entries: make(map[string]dupRecord)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 3 {
			continue
		}
		size, err1 := strconv.ParseInt(fields[1], 10, 64)
		exp, err2 := strconv.ParseInt(fields[2], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		expires := time.Unix(exp, 0)
		if !expires.After(now) {
			continue
		}
		c.entries[fields[0]] = dupRecord{size: size, expires: expires}
	}
	return c, sc.Err()
}

func (c *FileDupChecker) Seen(name string, size int64) bool {
	r, ok := c.entries[name]
	return ok && r.size == size
}

func (c *FileDupChecker) Remember(name string, size int64) {
	c.entries[name] = dupRecord{size: size, expires: c.now.Add(c.ttl)}
	c.dirty = true
}

// Save rewrites path with the current (pruned, possibly extended)
// history, a no-op if Remember was never called since Open.
func (c *FileDupChecker) Save() error {
	if !c.dirty {
		return nil
	}
	var b strings.Builder
	for name, r := range c.entries {
		fmt.Fprintf(&b, "%s %d %d\n", name, r.size, r.expires.Unix())
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(c.path, []byte(b.String()), 0644)
}
