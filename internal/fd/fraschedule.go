package fd

import (
	"time"

	"github.com/hfs/afd-sub005/internal/status"
)

// DueDirectory is one FRA row whose poll interval has elapsed.
type DueDirectory struct {
	Pos    int
	Status status.FetchStatus
}

// ScanDue implements spec §4.4 step 4: periodically re-check FRA for
// fetch directories whose next_check_time <= now, returning them so
// the caller can synthesize retrieve jobs (enqueue a QB entry
// referencing the FRA position). Rows with DirFlagDisabled set are
// skipped. Every due row's next_check_time is advanced by its
// poll_interval and persisted before it's returned, so a caller that
// crashes mid-tick won't re-synthesize the same job indefinitely once
// it restarts and re-scans.
func ScanDue(area *status.Area, now time.Time) ([]DueDirectory, error) {
	nowUnix := now.UTC().Unix()
	var due []DueDirectory

	n := area.Count()
	for i := 0; i < n; i++ {
		var f status.FetchStatus
		if err := area.ReadRecord(i, &f); err != nil {
			return due, err
		}
		if f.Flags&status.DirFlagDisabled != 0 {
			continue
		}
		if f.NextCheckTime > nowUnix {
			continue
		}
		due = append(due, DueDirectory{Pos: i, Status: f})

		f.NextCheckTime = nowUnix + int64(f.PollInterval)
		if err := area.WriteRecord(i, &f); err != nil {
			return due, err
		}
	}
	return due, nil
}
