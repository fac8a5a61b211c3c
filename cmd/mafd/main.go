// Command mafd is the control wrapper around afd_mon (spec §6):
// `mafd [-a|-c|-C|-d|-s|-S] [-w <workdir>]` starts, checks, or shuts
// the monitor supervisor down, exactly one of the six mode flags at a
// time.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/hfs/afd-sub005/internal/fifo"
	"github.com/hfs/afd-sub005/internal/status"
)

const (
	exitOK           = 0
	exitUsage        = 1
	exitAlreadyActive = 5
)

var (
	flagAuto    bool
	flagCheck   bool
	flagCheckOnly bool
	flagShutdown bool
	flagStatus  bool
	flagSilent  bool
	workDir     string
)

func main() {
	root := &cobra.Command{
		Use:   "mafd",
		Short: "start, check, or shut down afd_mon",
		RunE:  run,
	}
	flags := root.Flags()
	flags.BoolVarP(&flagAuto, "auto", "a", false, "start afd_mon if it isn't already running")
	flags.BoolVarP(&flagCheck, "check", "c", false, "start afd_mon if not running, exit 5 if it is")
	flags.BoolVarP(&flagCheckOnly, "check-only", "C", false, "report whether afd_mon is running, never start it")
	flags.BoolVarP(&flagShutdown, "shutdown", "d", false, "shut afd_mon down")
	flags.BoolVarP(&flagStatus, "status", "s", false, "print monitor status")
	flags.BoolVarP(&flagSilent, "silent-shutdown", "S", false, "shut afd_mon down without printing status")
	flags.StringVarP(&workDir, "workdir", "w", os.Getenv("MON_WORK_DIR"), "monitor working directory")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
}

func run(cmd *cobra.Command, args []string) error {
	set := 0
	for _, b := range []bool{flagAuto, flagCheck, flagCheckOnly, flagShutdown, flagStatus, flagSilent} {
		if b {
			set++
		}
	}
	if set != 1 {
		cmd.SilenceUsage = false
		os.Exit(exitUsage)
	}
	if workDir == "" {
		fmt.Fprintln(os.Stderr, "mafd: no working directory given (-w or MON_WORK_DIR)")
		os.Exit(exitUsage)
	}

	fifoDir := filepath.Join(workDir, "fifodir")

	switch {
	case flagAuto:
		return startIfNotActive(fifoDir)
	case flagCheck:
		pids, err := activePIDs(fifoDir)
		if err != nil {
			return err
		}
		if len(pids) > 0 {
			fmt.Println("AFD already active")
			os.Exit(exitAlreadyActive)
		}
		return startIfNotActive(fifoDir)
	case flagCheckOnly:
		pids, err := activePIDs(fifoDir)
		if err != nil {
			return err
		}
		if len(pids) == 0 {
			fmt.Println("AFD not active")
			os.Exit(1)
		}
		fmt.Printf("AFD active, %d probe(s) running\n", len(pids))
		return nil
	case flagShutdown, flagSilent:
		return shutdown(fifoDir, flagShutdown)
	case flagStatus:
		return printStatus(fifoDir)
	}
	return nil
}

func startIfNotActive(fifoDir string) error {
	pids, err := activePIDs(fifoDir)
	if err != nil {
		return err
	}
	if len(pids) > 0 {
		return nil
	}
	c := exec.Command("afd_mon", "-w", workDir)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Start()
}

// shutdown sends SHUTDOWN on MON_CMD_FIFO and waits briefly for
// MON_ACTIVE_FILE to empty out; verbose controls whether progress is
// printed (spec §6 distinguishes -d from the silent -S).
func shutdown(fifoDir string, verbose bool) error {
	pipe, err := fifo.Open(filepath.Join(fifoDir, "MON_CMD_FIFO"))
	if err != nil {
		return fmt.Errorf("mafd: open MON_CMD_FIFO: %w", err)
	}
	defer pipe.Close()
	if verbose {
		fmt.Println("sending SHUTDOWN to afd_mon")
	}
	if _, err := pipe.Write([]byte{byte(fifo.Shutdown)}); err != nil {
		return fmt.Errorf("mafd: write SHUTDOWN: %w", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		pids, err := activePIDs(fifoDir)
		if err != nil {
			return err
		}
		if len(pids) == 0 {
			if verbose {
				fmt.Println("afd_mon is down")
			}
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("mafd: afd_mon did not shut down within the timeout")
}

func printStatus(fifoDir string) error {
	pids, err := activePIDs(fifoDir)
	if err != nil {
		return err
	}
	if len(pids) == 0 {
		fmt.Println("afd_mon not active")
		return nil
	}
	fmt.Printf("afd_mon active, pids: %v\n", pids)

	area, err := status.Attach(filepath.Join(fifoDir, "msa"))
	if err != nil {
		return fmt.Errorf("mafd: attach MSA: %w", err)
	}
	defer area.Detach()

	for i := 0; i < area.Count(); i++ {
		var m status.MonitorStatus
		if err := area.ReadRecord(i, &m); err != nil {
			return err
		}
		fmt.Printf("%3d  %-12s  %s\n", i, m.Alias, m.ConnectStatus)
	}
	return nil
}

// activePIDs reads MON_ACTIVE_FILE (one decimal pid per line, written
// by cmd/afd_mon) and filters it down to pids that are actually
// alive, so a stale file left behind by a crashed supervisor doesn't
// read as "still running".
func activePIDs(fifoDir string) ([]int, error) {
	path := filepath.Join(fifoDir, "MON_ACTIVE_FILE")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pids []int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		if unix.Kill(pid, 0) == nil {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}
