package localproto

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChdirCreatesMissingDir(t *testing.T) {
	root := t.TempDir()
	d := New(root)
	ctx := context.Background()

	err := d.Chdir(ctx, "sub/dir", true, 0755)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(root, "sub/dir"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestChdirWithoutCreateFailsOnMissingDir(t *testing.T) {
	root := t.TempDir()
	d := New(root)

	err := d.Chdir(context.Background(), "nope", false, 0755)
	assert.Error(t, err)
}

func TestOpenWriteThenListThenOpenRead(t *testing.T) {
	root := t.TempDir()
	d := New(root)
	ctx := context.Background()
	require.NoError(t, d.Chdir(ctx, ".", false, 0755))

	w, err := d.OpenWrite(ctx, "report.txt", 0, 5)
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	entries, err := d.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "report.txt", entries[0].Name)
	assert.Equal(t, int64(5), entries[0].Size)

	r, err := d.OpenRead(ctx, "report.txt")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestOpenWriteAppendsAtOffset(t *testing.T) {
	root := t.TempDir()
	d := New(root)
	ctx := context.Background()
	require.NoError(t, d.Chdir(ctx, ".", false, 0755))

	w, err := d.OpenWrite(ctx, "part.bin", 0, 5)
	require.NoError(t, err)
	_, err = w.Write([]byte("abcde"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := d.OpenWrite(ctx, "part.bin", 5, 10)
	require.NoError(t, err)
	_, err = w2.Write([]byte("fghij"))
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	data, err := os.ReadFile(filepath.Join(root, "part.bin"))
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", string(data))
}

func TestRenameAndDelete(t *testing.T) {
	root := t.TempDir()
	d := New(root)
	ctx := context.Background()
	require.NoError(t, d.Chdir(ctx, ".", false, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(root, "old.txt"), []byte("x"), 0644))
	require.NoError(t, d.Rename(ctx, "old.txt", "new.txt"))
	_, err := os.Stat(filepath.Join(root, "new.txt"))
	require.NoError(t, err)

	require.NoError(t, d.Delete(ctx, "new.txt"))
	_, err = os.Stat(filepath.Join(root, "new.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestSetModTime(t *testing.T) {
	root := t.TempDir()
	d := New(root)
	ctx := context.Background()
	require.NoError(t, d.Chdir(ctx, ".", false, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stamped.txt"), []byte("x"), 0644))

	want := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, d.SetModTime("stamped.txt", want))

	info, err := os.Stat(filepath.Join(root, "stamped.txt"))
	require.NoError(t, err)
	assert.WithinDuration(t, want, info.ModTime(), time.Second)
}

func TestSupportsResume(t *testing.T) {
	d := New(t.TempDir())
	assert.True(t, d.SupportsResume())
}
