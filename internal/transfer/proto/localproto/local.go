// Package localproto implements the sf_loc/gf_loc protocol driver: a
// plain filesystem copy, grounded on backend/local/local.go's use of
// the stdlib os package for every filesystem operation (open, create,
// rename, remove, mkdir) rather than any intermediate abstraction.
package localproto

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hfs/afd-sub005/internal/transfer/proto"
)

// Driver is the sf_loc/gf_loc protocol driver. "Connecting" is a
// no-op beyond recording the root directory: local transfers need no
// session, matching the teacher's local backend having no connection
// pool at all.
type Driver struct {
	root string
	dir  string
}

// New builds a local driver rooted at root (the configured local
// source/destination directory for the host entry).
func New(root string) *Driver {
	return &Driver{root: root}
}

func (d *Driver) Connect(ctx context.Context, cfg proto.Config) error {
	return nil
}

func (d *Driver) Chdir(ctx context.Context, dir string, createIfMissing bool, dirMode uint32) error {
	full := filepath.Join(d.root, dir)
	if createIfMissing {
		if err := os.MkdirAll(full, os.FileMode(dirMode)); err != nil {
			return err
		}
	}
	info, err := os.Stat(full)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "chdir", Path: full, Err: os.ErrInvalid}
	}
	d.dir = full
	return nil
}

func (d *Driver) List(ctx context.Context) ([]proto.FileInfo, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	out := make([]proto.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, proto.FileInfo{
			Name:  e.Name(),
			Size:  info.Size(),
			Mtime: info.ModTime(),
		})
	}
	return out, nil
}

func (d *Driver) OpenWrite(ctx context.Context, name string, offset, size int64) (io.WriteCloser, error) {
	path := filepath.Join(d.dir, name)
	flags := os.O_WRONLY | os.O_CREATE
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func (d *Driver) OpenRead(ctx context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(d.dir, name))
}

func (d *Driver) Delete(ctx context.Context, name string) error {
	return os.Remove(filepath.Join(d.dir, name))
}

func (d *Driver) Rename(ctx context.Context, oldName, newName string) error {
	return os.Rename(filepath.Join(d.dir, oldName), filepath.Join(d.dir, newName))
}

func (d *Driver) SupportsResume() bool { return true }

func (d *Driver) Quit(ctx context.Context) error { return nil }

// SetModTime sets the access and modification time of name in the
// driver's current directory.
func (d *Driver) SetModTime(name string, mtime time.Time) error {
	path := filepath.Join(d.dir, name)
	return os.Chtimes(path, mtime, mtime)
}

var _ proto.Driver = (*Driver)(nil)
