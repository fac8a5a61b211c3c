// Package ftpproto implements the sf_ftp/gf_ftp protocol driver on top
// of github.com/jlaffaye/ftp, grounded on backend/ftp/ftp.go's
// connection setup (ftp.Dial with a context-aware dialer, Login,
// passive-mode/TLS dial options) and its Stor/RetrFrom/Rename/Delete
// call sites.
package ftpproto

import (
	"context"
	"fmt"
	"io"

	"github.com/jlaffaye/ftp"

	"github.com/hfs/afd-sub005/internal/transfer/proto"
)

// Driver is the sf_ftp/gf_ftp protocol driver.
type Driver struct {
	conn *ftp.ServerConn
	cfg  proto.Config
}

func New() *Driver { return &Driver{} }

func (d *Driver) Connect(ctx context.Context, cfg proto.Config) error {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if cfg.ConnectTimeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(cfg.ConnectTimeout))
	}
	if cfg.TLS {
		opts = append(opts, ftp.DialWithExplicitTLS(nil))
	}
	if !cfg.PassiveMode {
		opts = append(opts, ftp.DialWithDisabledEPSV(true))
	}

	c, err := ftp.Dial(addr, opts...)
	if err != nil {
		return fmt.Errorf("ftpproto: dial %s: %w", addr, err)
	}
	if err := c.Login(cfg.User, cfg.Password); err != nil {
		_ = c.Quit()
		return fmt.Errorf("ftpproto: login %s@%s: %w", cfg.User, addr, err)
	}
	d.conn = c
	d.cfg = cfg
	return nil
}

func (d *Driver) Chdir(ctx context.Context, dir string, createIfMissing bool, dirMode uint32) error {
	if err := d.conn.ChangeDir(dir); err != nil {
		if !createIfMissing {
			return fmt.Errorf("ftpproto: chdir %s: %w", dir, err)
		}
		if mkErr := d.conn.MakeDir(dir); mkErr != nil {
			return fmt.Errorf("ftpproto: mkdir %s: %w", dir, mkErr)
		}
		if err := d.conn.ChangeDir(dir); err != nil {
			return fmt.Errorf("ftpproto: chdir %s after mkdir: %w", dir, err)
		}
	}
	return nil
}

func (d *Driver) List(ctx context.Context) ([]proto.FileInfo, error) {
	entries, err := d.conn.List(".")
	if err != nil {
		return nil, err
	}
	out := make([]proto.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		out = append(out, proto.FileInfo{
			Name:  e.Name,
			Size:  int64(e.Size),
			Mtime: e.Time,
		})
	}
	return out, nil
}

type storeWriteCloser struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *storeWriteCloser) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *storeWriteCloser) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

// OpenWrite streams to the remote via STOR (offset 0) or APPE
// (offset > 0), matching backend/ftp/ftp.go's Stor call wired through
// a pipe so the caller can write in blocks without buffering the
// whole file.
func (d *Driver) OpenWrite(ctx context.Context, name string, offset, size int64) (io.WriteCloser, error) {
	pr, pw := io.Pipe()
	w := &storeWriteCloser{pw: pw, done: make(chan error, 1)}
	go func() {
		var err error
		if offset > 0 {
			err = d.conn.StorFrom(name, pr, uint64(offset))
		} else {
			err = d.conn.Stor(name, pr)
		}
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

func (d *Driver) OpenRead(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := d.conn.Retr(name)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (d *Driver) Delete(ctx context.Context, name string) error {
	return d.conn.Delete(name)
}

func (d *Driver) Rename(ctx context.Context, oldName, newName string) error {
	return d.conn.Rename(oldName, newName)
}

func (d *Driver) SupportsResume() bool { return true }

func (d *Driver) Quit(ctx context.Context) error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Quit()
	d.conn = nil
	return err
}

var _ proto.Driver = (*Driver)(nil)
