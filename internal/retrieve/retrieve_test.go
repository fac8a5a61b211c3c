package retrieve

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfs/afd-sub005/internal/status"
)

func TestAttachCreatesEmptyStore(t *testing.T) {
	dir := t.TempDir()
	s, err := Attach(dir, "dir1")
	require.NoError(t, err)
	defer s.Detach()
	assert.Equal(t, 0, s.Count())
}

func TestCheckListInsertsAndUpdates(t *testing.T) {
	dir := t.TempDir()
	s, err := Attach(dir, "dir1")
	require.NoError(t, err)
	defer s.Detach()

	res, err := s.CheckList("a.dat", 100, 1000, false, nil)
	require.NoError(t, err)
	assert.Equal(t, Fetch, res)
	assert.Equal(t, 1, s.Count())

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Retrieved)
	assert.True(t, entries[0].InList)

	entries[0].Retrieved = true
	require.NoError(t, s.area.WriteRecord(0, &entries[0]))

	_, err = s.CheckList("a.dat", 100, 1000, false, nil)
	require.NoError(t, err)
	entries, err = s.Entries()
	require.NoError(t, err)
	assert.True(t, entries[0].Retrieved, "unchanged size/mtime must not clear retrieved")

	_, err = s.CheckList("a.dat", 200, 1000, false, nil)
	require.NoError(t, err)
	entries, err = s.Entries()
	require.NoError(t, err)
	assert.False(t, entries[0].Retrieved, "changed size must clear retrieved")
}

func TestCheckListStupidModeSkipsRetrieved(t *testing.T) {
	dir := t.TempDir()
	s, err := Attach(dir, "dir1")
	require.NoError(t, err)
	defer s.Detach()

	_, err = s.CheckList("a.dat", 100, 1000, true, nil)
	require.NoError(t, err)
	entries, err := s.Entries()
	require.NoError(t, err)
	entries[0].Retrieved = true
	require.NoError(t, s.area.WriteRecord(0, &entries[0]))

	res, err := s.CheckList("a.dat", 100, 1000, true, nil)
	require.NoError(t, err)
	assert.Equal(t, Skip, res)
}

func TestCheckListAppliesFilters(t *testing.T) {
	dir := t.TempDir()
	s, err := Attach(dir, "dir1")
	require.NoError(t, err)
	defer s.Detach()

	fra := &status.FetchStatus{IgnoreSize: 50, IgnoreSizeSign: status.TriGreater}
	res, err := s.CheckList("big.dat", 100, time.Now().UTC().Unix(), false, fra.PassesFilters)
	require.NoError(t, err)
	assert.Equal(t, Skip, res)
}

func TestGrowBeyondInitialStep(t *testing.T) {
	dir := t.TempDir()
	s, err := Attach(dir, "dir1")
	require.NoError(t, err)
	defer s.Detach()

	for i := 0; i < Step+5; i++ {
		_, err := s.CheckList("file-"+strconv.Itoa(i), int64(i), int64(i), false, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, Step+5, s.Count())
}

func TestMarkNotInListAllAndCompact(t *testing.T) {
	dir := t.TempDir()
	s, err := Attach(dir, "dir1")
	require.NoError(t, err)
	defer s.Detach()

	_, err = s.CheckList("a.dat", 1, 1, false, nil)
	require.NoError(t, err)
	_, err = s.CheckList("b.dat", 2, 2, false, nil)
	require.NoError(t, err)

	require.NoError(t, s.MarkNotInListAll())
	_, err = s.CheckList("a.dat", 1, 1, false, nil) // re-seen this pass
	require.NoError(t, err)

	require.NoError(t, s.Compact())
	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.dat", entries[0].FileName)
}

func TestMarkRetrieved(t *testing.T) {
	dir := t.TempDir()
	s, err := Attach(dir, "dir1")
	require.NoError(t, err)
	defer s.Detach()

	_, err = s.CheckList("a.dat", 1, 1, false, nil)
	require.NoError(t, err)
	_, err = s.CheckList("b.dat", 2, 2, false, nil)
	require.NoError(t, err)

	require.NoError(t, s.MarkRetrieved("b.dat"))

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Retrieved, "a.dat must be untouched")
	assert.True(t, entries[1].Retrieved)
}

func TestMarkRetrievedUnknownName(t *testing.T) {
	dir := t.TempDir()
	s, err := Attach(dir, "dir1")
	require.NoError(t, err)
	defer s.Detach()

	err = s.MarkRetrieved("missing.dat")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	dir := t.TempDir()
	s, err := Attach(dir, "dir1")
	require.NoError(t, err)
	defer s.Detach()

	_, err = s.CheckList("a.dat", 1, 1, false, nil)
	require.NoError(t, err)
	require.NoError(t, s.Truncate())
	assert.Equal(t, 0, s.Count())
}

func TestDecodeOldASCIIDate(t *testing.T) {
	unix, ok := decodeOldASCIIDate("20240315123045")
	require.True(t, ok)
	tm := time.Unix(unix, 0).UTC()
	assert.Equal(t, 2024, tm.Year())
	assert.Equal(t, time.Month(3), tm.Month())
	assert.Equal(t, 15, tm.Day())
	assert.Equal(t, 12, tm.Hour())
	assert.Equal(t, 30, tm.Minute())
	assert.Equal(t, 45, tm.Second())
}

func TestMigrateOldRetrieveListLayout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "legacydir")

	header := make([]byte, status.HeaderSize)
	body := make([]byte, oldStride*2)
	writeOldRecord(body[0:oldStride], "first.dat", "20240101000000", 10, false, true)
	writeOldRecord(body[oldStride:2*oldStride], "second.dat", "", 20, true, true)
	require.NoError(t, os.WriteFile(path, append(header, body...), 0644))

	s, err := Attach(dir, "legacydir")
	require.NoError(t, err)
	defer s.Detach()

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first.dat", entries[0].FileName)
	assert.True(t, entries[0].GotDate)
	assert.Equal(t, "second.dat", entries[1].FileName)
	assert.False(t, entries[1].GotDate)
	assert.Equal(t, int64(-1), entries[1].FileMtime)
}

func writeOldRecord(buf []byte, name, date string, size int32, retrieved, inList bool) {
	c := status.NewCursor(buf)
	c.PutString(name, FileNameLen)
	c.PutString(date, legacyDateLen)
	c.PutInt32(size)
	c.PutByte(boolByte(retrieved))
	c.PutByte(boolByte(inList))
}
