// Command mafdcmd emits opcodes onto MON_CMD_FIFO / RETRY_MON_FIFO
// (spec §6): `mafdcmd [-e|-E|-X|-r] [-w <workdir>] <alias|position>
// ...` enables, enables-all, disables, or wakes-for-retry the named
// MSA rows, gated by the caller's permissions file grant.
package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hfs/afd-sub005/internal/afdconfig"
	"github.com/hfs/afd-sub005/internal/fifo"
	"github.com/hfs/afd-sub005/internal/monitor"
	"github.com/hfs/afd-sub005/internal/status"
)

var (
	flagEnable    bool
	flagEnableAll bool
	flagDisable   bool
	flagRetry     bool
	workDir       string
)

func main() {
	root := &cobra.Command{
		Use:   "mafdcmd [-e|-E|-X|-r] [-w <workdir>] <alias|position> ...",
		Short: "enable, disable, or retry monitored AFDs",
		Args:  cobra.ArbitraryArgs,
		RunE:  run,
	}
	flags := root.Flags()
	flags.BoolVarP(&flagEnable, "enable", "e", false, "enable the named monitored AFD(s)")
	flags.BoolVarP(&flagEnableAll, "enable-all", "E", false, "enable every monitored AFD")
	flags.BoolVarP(&flagDisable, "disable", "X", false, "disable the named monitored AFD(s)")
	flags.BoolVarP(&flagRetry, "retry", "r", false, "wake the probe for an immediate retry")
	flags.StringVarP(&workDir, "workdir", "w", os.Getenv("MON_WORK_DIR"), "monitor working directory")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mafdcmd:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	set := 0
	for _, b := range []bool{flagEnable, flagEnableAll, flagDisable, flagRetry} {
		if b {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of -e, -E, -X, -r is required")
	}
	if workDir == "" {
		return fmt.Errorf("no working directory given (-w or MON_WORK_DIR)")
	}
	if !flagEnableAll && len(args) == 0 {
		return fmt.Errorf("at least one <alias|position> is required")
	}

	fifoDir := filepath.Join(workDir, "fifodir")
	if err := checkPermission(workDir, requiredToken()); err != nil {
		return err
	}

	area, err := status.Attach(filepath.Join(fifoDir, "msa"))
	if err != nil {
		return fmt.Errorf("attach MSA: %w", err)
	}
	defer area.Detach()

	if flagEnableAll {
		for i := 0; i < area.Count(); i++ {
			if err := sendMonCmd(fifoDir, fifo.EnableMon, strconv.Itoa(i)); err != nil {
				return err
			}
		}
		return nil
	}

	for _, arg := range args {
		pos, err := resolveRow(area, arg)
		if err != nil {
			return err
		}
		switch {
		case flagEnable:
			err = sendMonCmd(fifoDir, fifo.EnableMon, strconv.Itoa(pos))
		case flagDisable:
			err = sendMonCmd(fifoDir, fifo.DisableMon, strconv.Itoa(pos))
		case flagRetry:
			err = wakeRetry(fifoDir, pos)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
	}
	return nil
}

func requiredToken() string {
	switch {
	case flagDisable:
		return afdconfig.PermDisableAFD
	case flagRetry:
		return afdconfig.PermRetry
	default:
		return afdconfig.PermMonCtrl
	}
}

// checkPermission gates every mafdcmd invocation on mafd_cmd plus the
// action-specific token from the permissions file grammar (spec §6);
// "all" grants every token (afdconfig.ParsePermissions already expands
// it). The permissions file path isn't named in the persisted-state
// layout the rest of this tree follows; etc/afd.users under the work
// dir is this binary's own convention, alongside etc/AFD_MON_CONFIG
// and etc/HOSTS.
func checkPermission(workDir, token string) error {
	data, err := os.ReadFile(filepath.Join(workDir, "etc", "afd.users"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read permissions file: %w", err)
	}
	perms := afdconfig.ParsePermissions(data)

	u, err := user.Current()
	if err != nil {
		return fmt.Errorf("look up current user: %w", err)
	}
	granted := perms.Lookup(u.Username)
	if !granted.Has(afdconfig.PermMafdCmd) {
		return fmt.Errorf("user %s is not permitted to run mafdcmd", u.Username)
	}
	if !granted.Has(token) {
		return fmt.Errorf("user %s lacks the %q permission", u.Username, token)
	}
	return nil
}

// resolveRow accepts either a bare MSA position or an alias, matching
// mafdcmd's documented `<alias|position>` argument grammar.
func resolveRow(area *status.Area, arg string) (int, error) {
	if pos, err := strconv.Atoi(arg); err == nil {
		return pos, nil
	}
	pos, err := monitor.RowByAlias(area, arg)
	if err != nil {
		return -1, err
	}
	if pos < 0 {
		return -1, fmt.Errorf("no monitored AFD named %q", arg)
	}
	return pos, nil
}

func sendMonCmd(fifoDir string, op fifo.Opcode, arg string) error {
	pipe, err := fifo.Open(filepath.Join(fifoDir, "MON_CMD_FIFO"))
	if err != nil {
		return fmt.Errorf("open MON_CMD_FIFO: %w", err)
	}
	defer pipe.Close()
	return fifo.NewCommandWriter(pipe).Write(fifo.Command{Op: op, Arg: arg})
}

func wakeRetry(fifoDir string, pos int) error {
	pipe, err := fifo.Open(fifo.RetryMonPath(fifoDir, pos))
	if err != nil {
		return fmt.Errorf("open RETRY_MON_FIFO.%d: %w", pos, err)
	}
	defer pipe.Close()
	return fifo.NewWakeUp(pipe).Send()
}
