package sftpproto

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"

	"github.com/hfs/afd-sub005/internal/transfer/proto"
)

// SCPDriver implements sf_scp: a send-only protocol driven over a
// plain SSH session running the remote `scp` binary in sink mode
// (`scp -t <dir>`), grounded on sf_scp.c's description ("sends the
// given files to the defined recipient via the SCP protocol by using
// the ssh program") and on the shared dialer this package already
// builds for sftpproto.Driver — spec §4.3's DOMAIN STACK note that
// "sf_scp reuses the same SSH session dialer".
type SCPDriver struct {
	client *ssh.Client
	dir    string
	cfg    proto.Config
}

func NewSCP() *SCPDriver { return &SCPDriver{} }

func (d *SCPDriver) Connect(ctx context.Context, cfg proto.Config) error {
	auth, err := authMethods(cfg)
	if err != nil {
		return fmt.Errorf("scpproto: auth setup: %w", err)
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
		return fmt.Errorf("scpproto: dial %s: %w", addr, err)
	}
	d.client = client
	d.cfg = cfg
	return nil
}

// Chdir records the target directory; SCP has no directory-change
// primitive of its own, the target is passed to the sink command at
// OpenWrite time instead (spec §4.4's burst-compatibility check on
// "SCP target dir" is what this field feeds).
func (d *SCPDriver) Chdir(ctx context.Context, dir string, createIfMissing bool, dirMode uint32) error {
	d.dir = dir
	d.cfg.TargetDir = dir
	return nil
}

// List is not supported: SCP is send-only in this deployment (gf_scp
// is not part of the protocol family the spec names for fetch
// workers).
func (d *SCPDriver) List(ctx context.Context) ([]proto.FileInfo, error) {
	return nil, fmt.Errorf("scpproto: remote listing not supported")
}

type scpWriteCloser struct {
	session *ssh.Session
	stdin   io.WriteCloser
	done    chan error
	name    string
	size    int64
}

func (w *scpWriteCloser) Write(p []byte) (int, error) { return w.stdin.Write(p) }

func (w *scpWriteCloser) Close() error {
	if _, err := w.stdin.Write([]byte{0}); err != nil {
		return err
	}
	if err := w.stdin.Close(); err != nil {
		return err
	}
	err := <-w.done
	w.session.Close()
	return err
}

// OpenWrite drives the scp sink protocol: run `scp -qt <dir>` on the
// remote, send a `C0644 <size> <name>\n` header, then stream the
// body followed by a trailing NUL. Resume (offset>0) has no sink-side
// equivalent in the scp protocol, so offset is ignored — matching
// sf_scp.c's own note that "the SCP protocol was not designed for
// this".
func (d *SCPDriver) OpenWrite(ctx context.Context, name string, offset, size int64) (io.WriteCloser, error) {
	session, err := d.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("scpproto: new session: %w", err)
	}
	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	if err := session.Start(fmt.Sprintf("scp -qt %s", d.dir)); err != nil {
		session.Close()
		return nil, fmt.Errorf("scpproto: start sink: %w", err)
	}
	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	reader := bufio.NewReader(stdout)
	if err := readSCPAck(reader); err != nil {
		session.Close()
		return nil, err
	}

	header := fmt.Sprintf("C0644 %d %s\n", size, name)
	if _, err := stdin.Write([]byte(header)); err != nil {
		session.Close()
		return nil, err
	}
	if err := readSCPAck(reader); err != nil {
		session.Close()
		return nil, err
	}

	return &scpWriteCloser{session: session, stdin: stdin, done: done, name: name, size: size}, nil
}

func readSCPAck(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return err
	}
	if b != 0 {
		line, _ := r.ReadString('\n')
		return fmt.Errorf("scpproto: remote error: %s", line)
	}
	return nil
}

func (d *SCPDriver) OpenRead(ctx context.Context, name string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("scpproto: fetch not supported")
}

func (d *SCPDriver) Delete(ctx context.Context, name string) error {
	session, err := d.client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Run(fmt.Sprintf("rm -f %s/%s", d.dir, name))
}

func (d *SCPDriver) Rename(ctx context.Context, oldName, newName string) error {
	session, err := d.client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Run(fmt.Sprintf("mv %s/%s %s/%s", d.dir, oldName, d.dir, newName))
}

func (d *SCPDriver) SupportsResume() bool { return false }

func (d *SCPDriver) Quit(ctx context.Context) error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}

var _ proto.Driver = (*SCPDriver)(nil)
