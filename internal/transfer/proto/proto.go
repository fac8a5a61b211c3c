// Package proto defines the protocol driver interface that sf_*/gf_*
// workers drive through the lifecycle in spec §4.3, and a registry of
// the concrete drivers in localproto, ftpproto, sftpproto, httpproto.
package proto

import (
	"context"
	"io"
	"time"
)

// FileInfo describes one remote directory entry as returned by List,
// carrying just what the retrieve-list filters in spec §4.5 need:
// name, size, and modification time.
type FileInfo struct {
	Name  string
	Size  int64
	Mtime time.Time
}

// Driver is one protocol end-to-end session: connect, optionally
// authenticate and change directory, then stream files in either
// direction. A Driver instance is not safe for concurrent use — one
// worker drives one Driver for the lifetime of its connection,
// including across a burst loop's job-to-job reuse (spec §4.4).
type Driver interface {
	// Connect dials and authenticates against addr using the
	// credentials and options carried in cfg. Connect must be callable
	// again on the same Driver after Quit to support reconnects.
	Connect(ctx context.Context, cfg Config) error

	// Chdir changes the working directory, creating it first with
	// mode dirMode if createIfMissing is set (spec §4.3 step 4:
	// "creating it with a configured mode if CREATE_TARGET_DIR is
	// on").
	Chdir(ctx context.Context, dir string, createIfMissing bool, dirMode uint32) error

	// List returns the directory entries of the current working
	// directory, used by fetch workers to drive check_list (spec
	// §4.3's fetch-worker extras).
	List(ctx context.Context) ([]FileInfo, error)

	// OpenWrite opens name for writing starting at offset bytes into
	// the remote file (0 for a fresh transfer, >0 for an
	// append/resume when file_size_offset != -1). size is the total
	// local file size, known to the caller before the remote write
	// begins; protocols that must declare a size up front (SCP's sink
	// header) use it, others ignore it. The returned WriteCloser's
	// Close completes the remote-side commit.
	OpenWrite(ctx context.Context, name string, offset, size int64) (io.WriteCloser, error)

	// OpenRead opens name for reading, used by fetch workers.
	OpenRead(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes name from the remote side, used by fetch workers
	// when the FRA requests remove=YES (spec §4.3).
	Delete(ctx context.Context, name string) error

	// Rename renames a remote file, used by the DOT/DOT_VMS/POSTFIX
	// lock-mode rename-after-transfer step (spec §4.3).
	Rename(ctx context.Context, oldName, newName string) error

	// SupportsResume reports whether OpenWrite's offset parameter is
	// honored by this protocol (local and SFTP support append by
	// offset; FTP's STOR-with-REST support is protocol/server
	// dependent and modeled as supported here; HTTP fetch-only drivers
	// report false).
	SupportsResume() bool

	// Quit closes the session cleanly. After Quit the Driver may be
	// reconnected via Connect for burst reuse.
	Quit(ctx context.Context) error
}

// Config carries the subset of a job's FSA-derived connection
// parameters every driver needs: host, port, credentials, and the
// burst-compatibility fields D/W compare across a reused connection
// (spec §4.4: "fsa.protocol, port, auth mode, and (for SCP) target
// dir, (for SFTP) user match the prior job").
type Config struct {
	Host     string
	Port     int
	User     string
	Password string

	// TLS requests implicit FTPS (ftpproto) or is ignored elsewhere.
	TLS bool

	// KeyFile/KeyPassphrase select SFTP/SCP public-key auth; empty
	// falls back to ssh-agent (sftpproto, grounded on backend/sftp/
	// ssh.go's dialer chain: public key first, agent second).
	KeyFile       string
	KeyPassphrase string

	// TargetDir is the SCP remote target directory, one of the
	// fields the burst handshake compares for compatibility.
	TargetDir string

	// PassiveMode selects FTP passive (EPSV/PASV) transfers; active
	// mode is not modeled since every production AFD deployment the
	// spec describes runs behind NAT.
	PassiveMode bool

	ConnectTimeout time.Duration
}

// CompatibleWith reports whether cfg can be reused for a subsequent
// burst job without reconnecting, per spec §4.4's compatibility
// check: "fsa.protocol, port, auth mode, and (for SCP) target dir,
// (for SFTP) user match the prior job".
func (cfg Config) CompatibleWith(other Config) bool {
	return cfg.Host == other.Host &&
		cfg.Port == other.Port &&
		cfg.User == other.User &&
		cfg.TLS == other.TLS &&
		cfg.TargetDir == other.TargetDir
}
