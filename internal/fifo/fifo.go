//go:build linux || darwin

// Package fifo implements the named-pipe command channels described in
// spec §4.6: MON_CMD_FIFO/AFD_CMD_FIFO opcode commands, the one-byte
// ACKN response fifos, SF_FIN_FIFO's fixed pid frames, FD_WAKE_UP_FIFO
// and RETRY_MON_FIFO/<i> wake tokens, TRL_CALC_FIFO's FSA-position
// frames, and DELETE_JOBS_FIFO's partial-read-resumption framing.
package fifo

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Pipe wraps a Unix named pipe opened read-write so that readers never
// observe EOF between writers (spec §4.6: "created at startup if absent
// ... and held open read-write by the owning supervisor so readers do
// not see EOF").
type Pipe struct {
	file *os.File
	path string
}

// Open creates path as a FIFO (mode 0600) if it does not already exist,
// then opens it O_RDWR.
func Open(path string) (*Pipe, error) {
	if err := unix.Mkfifo(path, 0600); err != nil && !os.IsExist(err) {
		return nil, fmt.Errorf("fifo: mkfifo %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("fifo: open %s: %w", path, err)
	}
	return &Pipe{file: f, path: path}, nil
}

// File returns the underlying *os.File, for use with select-style
// multiplexing (e.g. via an fd set or a read loop in its own
// goroutine).
func (p *Pipe) File() *os.File { return p.file }

// Path returns the filesystem path this fifo was opened from.
func (p *Pipe) Path() string { return p.path }

// Close closes the underlying file descriptor. The fifo special file
// itself is left in place; supervisors unlink fifos only as part of
// full teardown, not on ordinary close.
func (p *Pipe) Close() error {
	return p.file.Close()
}

// Write writes b to the fifo. Individual writes at or below PIPE_BUF
// are atomic per POSIX, which is what lets command fifos be shared by
// multiple concurrent writers safely (spec §8: "process-safe by kernel
// atomic-write guarantees").
func (p *Pipe) Write(b []byte) (int, error) {
	return p.file.Write(b)
}
