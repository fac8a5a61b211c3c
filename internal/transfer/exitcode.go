// Package transfer implements the sf_*/gf_* worker lifecycle (spec
// §4.3): spool filtering, lock-mode rename handling, rate-paced
// protocol streaming over internal/transfer/proto, the burst-reuse
// loop (spec §4.4), and fetch-side retrieve-list integration (spec
// §4.5). It is the orchestration layer the cmd/sf and cmd/gf binaries
// wire up; this package itself never forks or execs.
package transfer

import "fmt"

// ExitCode enumerates a worker's process exit status (spec §4.3 step
// 7). Zero is success; every other value names a specific failure
// point so D's reaper (spec §4.4 step 1) can classify it without
// re-parsing worker output.
type ExitCode int

const (
	ExitSuccess ExitCode = iota
	ExitConnectError
	ExitAuthError
	ExitTypeError
	ExitChdirError
	ExitOpenRemoteError
	ExitWriteRemoteError
	ExitCloseRemoteError
	ExitOpenLocalError
	ExitReadLocalError
	ExitWriteLocalError
	ExitMoveError
	ExitRenameError
	ExitRemoveLockfileError
	ExitStillFilesToSend
	ExitGotKilled
	ExitIsFaulty
	ExitAllocError
)

func (c ExitCode) String() string {
	switch c {
	case ExitSuccess:
		return "SUCCESS"
	case ExitConnectError:
		return "CONNECT_ERROR"
	case ExitAuthError:
		return "AUTH_ERROR"
	case ExitTypeError:
		return "TYPE_ERROR"
	case ExitChdirError:
		return "CHDIR_ERROR"
	case ExitOpenRemoteError:
		return "OPEN_REMOTE_ERROR"
	case ExitWriteRemoteError:
		return "WRITE_REMOTE_ERROR"
	case ExitCloseRemoteError:
		return "CLOSE_REMOTE_ERROR"
	case ExitOpenLocalError:
		return "OPEN_LOCAL_ERROR"
	case ExitReadLocalError:
		return "READ_LOCAL_ERROR"
	case ExitWriteLocalError:
		return "WRITE_LOCAL_ERROR"
	case ExitMoveError:
		return "MOVE_ERROR"
	case ExitRenameError:
		return "RENAME_ERROR"
	case ExitRemoveLockfileError:
		return "REMOVE_LOCKFILE_ERROR"
	case ExitStillFilesToSend:
		return "STILL_FILES_TO_SEND"
	case ExitGotKilled:
		return "GOT_KILLED"
	case ExitIsFaulty:
		return "IS_FAULTY_VAR"
	case ExitAllocError:
		return "ALLOC_ERROR"
	default:
		return fmt.Sprintf("ExitCode(%d)", int(c))
	}
}

// WorkerError pairs an ExitCode with the underlying cause, letting a
// worker's top-level loop map any step's failure straight to its exit
// status without a parallel chain of sentinel errors.
type WorkerError struct {
	Code ExitCode
	Err  error
}

func (e *WorkerError) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

func fail(code ExitCode, err error) error {
	return &WorkerError{Code: code, Err: err}
}
