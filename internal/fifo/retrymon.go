package fifo

import (
	"fmt"
	"path/filepath"
)

// RetryMonPath returns the path of the RETRY_MON_FIFO wake-up pipe for
// monitor row index i, one per MSA row (spec §4.6:
// "RETRY_MON_FIFO/<i>: wake-up token for the probe of MSA row i").
func RetryMonPath(fifoDir string, i int) string {
	return filepath.Join(fifoDir, fmt.Sprintf("RETRY_MON_FIFO.%d", i))
}
