// Package sftpproto implements the sf_sftp/gf_sftp protocol driver
// (and sf_scp, which reuses the same dialer onto a plain SSH session)
// on top of github.com/pkg/sftp and golang.org/x/crypto/ssh, grounded
// on backend/sftp/sftp.go's dial/auth chain (public key file first,
// ssh-agent via github.com/xanzy/ssh-agent otherwise, password last
// resort) and backend/sftp/ssh.go's client/session abstraction.
package sftpproto

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
	sshagent "github.com/xanzy/ssh-agent"
	"golang.org/x/crypto/ssh"

	"github.com/hfs/afd-sub005/internal/transfer/proto"
)

// Driver is the sf_sftp/gf_sftp protocol driver.
type Driver struct {
	ssh    *ssh.Client
	client *sftp.Client
	dir    string
	cfg    proto.Config
}

func New() *Driver { return &Driver{} }

func (d *Driver) Connect(ctx context.Context, cfg proto.Config) error {
	auth, err := authMethods(cfg)
	if err != nil {
		return fmt.Errorf("sftpproto: auth setup: %w", err)
	}
	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.ConnectTimeout,
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	client, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return fmt.Errorf("sftpproto: dial %s: %w", addr, err)
	}
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return fmt.Errorf("sftpproto: new sftp client: %w", err)
	}
	d.ssh = client
	d.client = sftpClient
	d.cfg = cfg
	return nil
}

// authMethods builds the auth chain in the same priority order as
// backend/sftp/sftp.go: an explicit key file, then ssh-agent, then a
// plain password.
func authMethods(cfg proto.Config) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.KeyFile != "" {
		key, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		var signer ssh.Signer
		if cfg.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(cfg.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(key)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key file: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	} else if agentClient, _, err := sshagent.New(); err == nil {
		if signers, err := agentClient.Signers(); err == nil && len(signers) > 0 {
			methods = append(methods, ssh.PublicKeys(signers...))
		}
	}

	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	return methods, nil
}

func (d *Driver) Chdir(ctx context.Context, dir string, createIfMissing bool, dirMode uint32) error {
	if _, err := d.client.Stat(dir); err != nil {
		if !createIfMissing {
			return fmt.Errorf("sftpproto: stat %s: %w", dir, err)
		}
		if err := d.client.MkdirAll(dir); err != nil {
			return fmt.Errorf("sftpproto: mkdir %s: %w", dir, err)
		}
		if err := d.client.Chmod(dir, os.FileMode(dirMode)); err != nil {
			return fmt.Errorf("sftpproto: chmod %s: %w", dir, err)
		}
	}
	d.dir = dir
	return nil
}

func (d *Driver) List(ctx context.Context) ([]proto.FileInfo, error) {
	entries, err := d.client.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	out := make([]proto.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, proto.FileInfo{
			Name:  e.Name(),
			Size:  e.Size(),
			Mtime: e.ModTime(),
		})
	}
	return out, nil
}

func (d *Driver) OpenWrite(ctx context.Context, name string, offset, size int64) (io.WriteCloser, error) {
	path := d.dir + "/" + name
	flags := os.O_WRONLY | os.O_CREATE
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := d.client.OpenFile(path, flags)
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
	return d.client.Open(d.dir + "/" + name)
}

func (d *Driver) Delete(ctx context.Context, name string) error {
	return d.client.Remove(d.dir + "/" + name)
}

func (d *Driver) Rename(ctx context.Context, oldName, newName string) error {
	return d.client.Rename(d.dir+"/"+oldName, d.dir+"/"+newName)
}

func (d *Driver) SupportsResume() bool { return true }

func (d *Driver) Quit(ctx context.Context) error {
	if d.client != nil {
		d.client.Close()
		d.client = nil
	}
	if d.ssh != nil {
		err := d.ssh.Close()
		d.ssh = nil
		return err
	}
	return nil
}

var _ proto.Driver = (*Driver)(nil)
