package retrieve

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hfs/afd-sub005/internal/status"
)

// Store is the per-directory retrieve list (spec §4.5).
type Store struct {
	area *status.Area
	path string
	log  *logrus.Entry
}

// Attach opens lsDataDir/dirAlias, creating it empty at the initial
// STEP-sized capacity if absent. If the file exists but isn't in the
// current layout, it migrates a known legacy layout in place, or
// discards and recreates empty if the size matches neither (spec
// §4.5: attach / validate_version / migrate).
func Attach(lsDataDir, dirAlias string) (*Store, error) {
	path := filepath.Join(lsDataDir, dirAlias)
	log := logrus.WithFields(logrus.Fields{"component": "retrieve", "dir": dirAlias})

	if _, err := os.Stat(path); os.IsNotExist(err) {
		area, cerr := newEmptyArea(path)
		if cerr != nil {
			return nil, cerr
		}
		return &Store{area: area, path: path, log: log}, nil
	}

	area, err := status.Attach(path)
	if err == nil {
		return &Store{area: area, path: path, log: log}, nil
	}

	if migErr := migrate(path); migErr != nil {
		log.WithError(migErr).Warn("retrieve list matches no known layout, discarding and recreating")
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("retrieve: discard unreadable %s: %w", path, rmErr)
		}
		area, cerr := newEmptyArea(path)
		if cerr != nil {
			return nil, cerr
		}
		return &Store{area: area, path: path, log: log}, nil
	}

	area, err = status.Attach(path)
	if err != nil {
		return nil, fmt.Errorf("retrieve: attach %s after migration: %w", path, err)
	}
	return &Store{area: area, path: path, log: log}, nil
}

func newEmptyArea(path string) (*status.Area, error) {
	area, err := status.Create(path, RLMagic, EntryStride)
	if err != nil {
		return nil, err
	}
	if err := area.Grow(Step, EntryStride); err != nil {
		return nil, err
	}
	if err := area.SetCount(0); err != nil {
		return nil, err
	}
	return area, nil
}

// Detach unmaps and closes the store.
func (s *Store) Detach() error { return s.area.Detach() }

// Count reports the number of live entries.
func (s *Store) Count() int { return s.area.Count() }

// Entries returns every live entry, in storage order.
func (s *Store) Entries() ([]Entry, error) {
	n := s.area.Count()
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		if err := s.area.ReadRecord(i, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MarkNotInListAll sets in_list=NO on every entry, called at the start
// of a directory-listing pass (spec §4.5).
func (s *Store) MarkNotInListAll() error {
	n := s.area.Count()
	for i := 0; i < n; i++ {
		var e Entry
		if err := s.area.ReadRecord(i, &e); err != nil {
			return err
		}
		if e.InList {
			e.InList = false
			if err := s.area.WriteRecord(i, &e); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckResult is the outcome of CheckList for one listing row.
type CheckResult int

const (
	Fetch CheckResult = iota
	Skip
)

// CheckList applies one remote directory-listing row against the
// retrieve list (spec §4.5): an existing entry is marked in_list=YES,
// clearing retrieved if size or mtime changed; a stupid-mode entry
// already retrieved is skipped outright; a new name is inserted with
// retrieved=NO. passesFilters receives (size, age-in-seconds) and
// implements the ignore-size/ignore-file-time tri-sign comparisons
// (status.FetchStatus.PassesFilters satisfies this signature
// directly); a nil passesFilters always returns Fetch.
func (s *Store) CheckList(name string, size, mtime int64, stupidMode bool, passesFilters func(size, ageSeconds int64) bool) (CheckResult, error) {
	n := s.area.Count()
	for i := 0; i < n; i++ {
		var e Entry
		if err := s.area.ReadRecord(i, &e); err != nil {
			return Skip, err
		}
		if e.FileName != name {
			continue
		}
		if stupidMode && e.Retrieved {
			e.InList = true
			if err := s.area.WriteRecord(i, &e); err != nil {
				return Skip, err
			}
			return Skip, nil
		}
		if e.Size != size || e.FileMtime != mtime {
			e.Retrieved = false
		}
		e.Size = size
		e.FileMtime = mtime
		e.GotDate = mtime >= 0
		e.InList = true
		if err := s.area.WriteRecord(i, &e); err != nil {
			return Skip, err
		}
		return applyFilters(size, mtime, passesFilters), nil
	}

	if err := s.appendEntry(Entry{
		FileName:  name,
		Size:      size,
		FileMtime: mtime,
		GotDate:   mtime >= 0,
		Retrieved: false,
		InList:    true,
	}); err != nil {
		return Skip, err
	}
	return applyFilters(size, mtime, passesFilters), nil
}

func applyFilters(size, mtime int64, passesFilters func(size, ageSeconds int64) bool) CheckResult {
	if passesFilters == nil {
		return Fetch
	}
	age := time.Now().UTC().Unix() - mtime
	if passesFilters(size, age) {
		return Fetch
	}
	return Skip
}

func (s *Store) appendEntry(e Entry) error {
	n := s.area.Count()
	if n >= s.area.Capacity() {
		if err := s.growBy(Step); err != nil {
			return err
		}
	}
	if err := s.area.SetCount(n + 1); err != nil {
		return err
	}
	return s.area.WriteRecord(n, &e)
}

// growBy extends the backing file's capacity by step records.
// status.Area.Grow ties its header count to the new capacity as a
// side effect (the contract FSA/FRA/MSA want); retrieve lists need
// live count and capacity to vary independently, so growBy restores
// the count Grow just overwrote.
func (s *Store) growBy(step int) error {
	liveCount := s.area.Count()
	newCap := s.area.Capacity() + step
	if err := s.area.Grow(newCap, EntryStride); err != nil {
		return err
	}
	return s.area.SetCount(liveCount)
}

// MarkRetrieved sets retrieved=YES on the entry named name, called by
// a fetch worker once FetchOne successfully lands a file locally so
// the next listing pass's CheckList doesn't re-fetch it (spec §4.5).
func (s *Store) MarkRetrieved(name string) error {
	n := s.area.Count()
	for i := 0; i < n; i++ {
		var e Entry
		if err := s.area.ReadRecord(i, &e); err != nil {
			return err
		}
		if e.FileName != name {
			continue
		}
		e.Retrieved = true
		return s.area.WriteRecord(i, &e)
	}
	return fmt.Errorf("retrieve: no entry named %q to mark retrieved", name)
}

// Compact removes every entry with in_list=NO by stable shift, called
// after a listing pass, and shrinks the backing file to the next
// smaller STEP boundary if that frees space (spec §4.5).
func (s *Store) Compact() error {
	n := s.area.Count()
	kept := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		var e Entry
		if err := s.area.ReadRecord(i, &e); err != nil {
			return err
		}
		if e.InList {
			kept = append(kept, e)
		}
	}
	for i := range kept {
		if err := s.area.WriteRecord(i, &kept[i]); err != nil {
			return err
		}
	}
	if err := s.area.SetCount(len(kept)); err != nil {
		return err
	}
	if newCap := stepCeil(len(kept)); newCap < s.area.Capacity() {
		if err := s.area.Grow(newCap, EntryStride); err != nil {
			return err
		}
		if err := s.area.SetCount(len(kept)); err != nil {
			return err
		}
	}
	return nil
}

// Truncate empties the list without resizing the backing file.
// CheckListPass calls it at the end of each listing pass in stupid
// mode, so nothing is remembered between passes; a directory in remove
// mode is not truncated and keeps its list, compacted like any other
// directory's.
func (s *Store) Truncate() error {
	return s.area.SetCount(0)
}
