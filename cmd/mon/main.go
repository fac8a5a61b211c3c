// Command mon is G, one probe of a single remote AFD (spec §4.7):
// forked by cmd/afd_mon once per MSA row, it owns that row for its
// entire lifetime, reconnecting on any protocol error until its parent
// kills it (config reload, DISABLE_MON, or shutdown).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/hfs/afd-sub005/internal/fifo"
	"github.com/hfs/afd-sub005/internal/monitor"
	"github.com/hfs/afd-sub005/internal/status"
)

func main() {
	workDir := flag.String("w", os.Getenv("MON_WORK_DIR"), "monitor working directory")
	pos := flag.Int("p", -1, "MSA row position this probe owns")
	flag.Parse()
	if *workDir == "" || *pos < 0 {
		logrus.Fatal("mon: -w and -p are required")
	}

	log := logrus.WithFields(logrus.Fields{"component": "mon", "pos": *pos})
	fifoDir := filepath.Join(*workDir, "fifodir")

	area, err := status.Attach(filepath.Join(fifoDir, "msa"))
	if err != nil {
		log.WithError(err).Fatal("attach MSA")
	}
	defer area.Detach()

	var cfg status.MonitorStatus
	if err := area.ReadRecord(*pos, &cfg); err != nil {
		log.WithError(err).Fatal("read MSA row")
	}
	log = log.WithField("alias", cfg.Alias)

	hosts := monitor.NewHostList(int(cfg.NoOfHosts))
	probe := monitor.NewProbe(area, *pos, cfg, hosts, monitor.DialTCP, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// RETRY_MON_FIFO/<pos> carries F's wake-up token for this row; a
	// drain-only reader keeps F's write from blocking. Forcing an
	// immediate reconnect (rather than waiting out Probe.Run's own
	// retry backoff) would need a wake channel threaded into Probe.Run,
	// which the current probe API doesn't expose.
	if pipe, err := fifo.Open(fifo.RetryMonPath(fifoDir, *pos)); err != nil {
		log.WithError(err).Warn("open RETRY_MON_FIFO, retry wake-ups disabled for this row")
	} else {
		wake := fifo.NewWakeUp(pipe)
		go func() {
			defer pipe.Close()
			for wake.Drain() == nil {
			}
		}()
	}

	if err := probe.Run(ctx); err != nil {
		log.WithError(err).Info("mon probe exiting")
	}
}
