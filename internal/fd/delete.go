package fd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hfs/afd-sub005/internal/fifo"
	"github.com/hfs/afd-sub005/internal/queue"
)

// ApplyDelete implements spec §4.4 step 2: route one DELETE_JOBS_FIFO
// command to the matching Queue operation. The caller (cmd/fd's
// select loop) is responsible for deciding when the fifo has data
// ready and calling fifo.DeleteReader.Next to get cmd; this function
// is the pure dispatch from command to queue mutation.
//
// DeleteSingleFile's Target is the full local spool path of the file
// to remove (its parent directory name is the job's msg_name, the
// same msg_name/filename nesting the spool layout already uses), so
// the size Queue.DeleteSingleFile needs for its counter decrement is
// read via Stat rather than carried on the wire.
func ApplyDelete(q *queue.Queue, cmd fifo.DeleteCommand) error {
	switch cmd.Type {
	case fifo.DeleteAllJobsFromHost:
		return q.DeleteByHost(cmd.Target)
	case fifo.DeleteMessage:
		return q.DeleteByMessage(cmd.Target)
	case fifo.DeleteSingleFile:
		info, err := os.Stat(cmd.Target)
		if err != nil {
			return fmt.Errorf("fd: stat %s for single-file delete: %w", cmd.Target, err)
		}
		msgName := filepath.Base(filepath.Dir(cmd.Target))
		return q.DeleteSingleFile(msgName, cmd.Target, uint64(info.Size()))
	default:
		return fmt.Errorf("fd: unknown delete command type %d", cmd.Type)
	}
}
