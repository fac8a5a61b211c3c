package transfer

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/hfs/afd-sub005/internal/ratelimit"
	"github.com/hfs/afd-sub005/internal/transfer/proto"
)

// defaultBlockSize is the block size a send worker streams in when no
// smaller trl_per_process budget is configured (spec §4.3 step 5:
// "stream in blocks of min(block_size, trl_per_process)").
const defaultBlockSize = 32 * 1024

// SendResult summarizes one file's outcome for the caller's aggregate
// counters and "X bytes in Y files" exit log (spec §4.3 steps 5, 8).
type SendResult struct {
	Name  string
	Bytes int64
}

// SendFile streams localPath to the remote name remoteName via
// driver, resuming at offset bytes if offset > 0 (spec §4.3 step 5:
// "open remote with offset=local-size iff file_size_offset != -1").
// It paces writes against bucket (nil disables pacing) in blocks of at
// most blockSize bytes (0 selects defaultBlockSize), mapping every
// failure point to the matching ExitCode via WorkerError.
func SendFile(ctx context.Context, driver proto.Driver, localPath, remoteName string, offset int64, size int64, bucket *ratelimit.TokenBucket, blockSize int, waker FDWaker, log *logrus.Entry) (int64, error) {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}

	local, err := os.Open(localPath)
	if err != nil {
		return 0, fail(ExitOpenLocalError, err)
	}
	defer local.Close()

	if offset > 0 {
		if _, err := local.Seek(offset, io.SeekStart); err != nil {
			return 0, fail(ExitReadLocalError, err)
		}
	}

	remote, err := driver.OpenWrite(ctx, remoteName, offset, size)
	if err != nil {
		return 0, fail(ExitOpenRemoteError, err)
	}

	buf := make([]byte, blockSize)
	var sent int64
	for {
		n, rerr := local.Read(buf)
		if n > 0 {
			if bucket != nil {
				if werr := bucket.WaitN(ctx, n); werr != nil {
					remote.Close()
					return sent, fail(ExitWriteRemoteError, werr)
				}
			}
			if _, werr := remote.Write(buf[:n]); werr != nil {
				remote.Close()
				return sent, fail(ExitWriteRemoteError, werr)
			}
			sent += int64(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			remote.Close()
			return sent, fail(ExitReadLocalError, rerr)
		}
	}

	if err := remote.Close(); err != nil {
		return sent, fail(ExitCloseRemoteError, err)
	}
	notifyFD(waker, log)
	return sent, nil
}

// FinishTransfer runs the post-write rename spec §4.3 step 5 describes
// after a successful SendFile under a lock mode that stages under a
// different remote name: rename staged -> final. It does not touch the
// job slot or any host counter. Modes with NeedsRename()==false are a
// no-op.
func FinishTransfer(ctx context.Context, driver proto.Driver, mode LockMode, stagedName, finalName string) error {
	if !mode.NeedsRename() {
		return nil
	}
	if err := driver.Rename(ctx, stagedName, finalName); err != nil {
		return fail(ExitRenameError, err)
	}
	return nil
}

// FDWaker posts a single token on FD_WAKE_UP_FIFO, the signal spec
// §4.3 step 5 requires after each successfully transferred file so D
// can re-check the host's eligibility without waiting for its next
// scheduler tick.
type FDWaker interface {
	Send() error
}

func notifyFD(waker FDWaker, log *logrus.Entry) {
	if waker == nil {
		return
	}
	if err := waker.Send(); err != nil && log != nil {
		log.WithError(err).Warn("failed to signal FD_WAKE_UP_FIFO")
	}
}
