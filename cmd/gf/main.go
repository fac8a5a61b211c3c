// Command gf_loc is one instance of the fetch-worker family (spec
// §4.3 fetch extras, §4.5): forked by cmd/fd once per synthesized
// retrieve-job QB entry, it connects to the directory's configured
// remote, runs check_list against the directory's retrieve list, and
// fetches whatever CheckListPass says is new.
//
// Like cmd/sf, gf_loc/gf_ftp/gf_sftp/gf_scp/gf_http share this same
// main and differ only in which internal/transfer/proto driver
// newDriver selects from the host's configured protocol.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hfs/afd-sub005/internal/fifo"
	"github.com/hfs/afd-sub005/internal/retrieve"
	"github.com/hfs/afd-sub005/internal/status"
	"github.com/hfs/afd-sub005/internal/transfer"
	"github.com/hfs/afd-sub005/internal/transfer/proto"
	"github.com/hfs/afd-sub005/internal/transfer/proto/ftpproto"
	"github.com/hfs/afd-sub005/internal/transfer/proto/httpproto"
	"github.com/hfs/afd-sub005/internal/transfer/proto/localproto"
	"github.com/hfs/afd-sub005/internal/transfer/proto/sftpproto"
)

const defaultConnectTimeout = time.Minute

func main() {
	var (
		workDir   string
		dirAlias  string
		hostPos   int
		slotIndex int
	)
	parseFlags(&workDir, &dirAlias, &hostPos, &slotIndex)

	log := logrus.WithFields(logrus.Fields{"component": "gf", "dir_alias": dirAlias})
	code := run(log, workDir, dirAlias, hostPos)
	finish(workDir, code, log)
}

func run(log *logrus.Entry, workDir, dirAlias string, hostPos int) transfer.ExitCode {
	fifoDir := filepath.Join(workDir, "fifodir")

	fsaArea, err := status.Attach(filepath.Join(fifoDir, "fsa"))
	if err != nil {
		log.WithError(err).Error("attach FSA")
		return transfer.ExitAllocError
	}
	defer fsaArea.Detach()

	var host status.HostStatus
	if err := fsaArea.ReadRecord(hostPos, &host); err != nil {
		log.WithError(err).Error("read host status")
		return transfer.ExitAllocError
	}

	fraArea, err := status.Attach(filepath.Join(fifoDir, "fra"))
	if err != nil {
		log.WithError(err).Error("attach FRA")
		return transfer.ExitAllocError
	}
	defer fraArea.Detach()

	fra, err := lookupFRA(fraArea, dirAlias)
	if err != nil {
		log.WithError(err).Error("look up FRA row")
		return transfer.ExitAllocError
	}

	remotePath, err := parseFetchURL(fra.URL)
	if err != nil {
		log.WithError(err).Error("parse FRA URL")
		return transfer.ExitAllocError
	}

	driver, cfg, err := newDriver(host)
	if err != nil {
		log.WithError(err).Error("unsupported protocol")
		return transfer.ExitConnectError
	}
	cfg.ConnectTimeout = defaultConnectTimeout

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	if err := driver.Connect(ctx, cfg); err != nil {
		log.WithError(err).Error("connect")
		return transfer.ExitConnectError
	}
	defer driver.Quit(ctx)

	if remotePath != "" {
		if err := driver.Chdir(ctx, remotePath, false, 0); err != nil {
			log.WithError(err).Error("chdir")
			return transfer.ExitChdirError
		}
	}

	store, err := retrieve.Attach(filepath.Join(workDir, "files", "incoming", "ls_data"), dirAlias)
	if err != nil {
		log.WithError(err).Error("attach retrieve list")
		return transfer.ExitAllocError
	}
	defer store.Detach()

	stupidMode := fra.Flags&status.DirFlagStupidMode != 0
	toFetch, err := transfer.CheckListPass(ctx, driver, store, stupidMode, fra.PassesFilters)
	if err != nil {
		log.WithError(err).Error("check_list pass")
		return classifyExitCode(err, transfer.ExitOpenRemoteError)
	}

	localDir := filepath.Join(workDir, "files", "incoming", dirAlias)
	if err := os.MkdirAll(localDir, 0755); err != nil {
		log.WithError(err).Error("create local fetch directory")
		return transfer.ExitOpenLocalError
	}

	keepTimeStamp := host.Flags&status.FlagKeepTimeStamp != 0
	removeRemote := fra.Flags&status.DirFlagRemove != 0

	var fetched int
	for _, info := range toFetch {
		if _, err := transfer.FetchOne(ctx, driver, info, localDir, keepTimeStamp, removeRemote); err != nil {
			return classifyExitCode(err, transfer.ExitWriteLocalError)
		}
		if err := store.MarkRetrieved(info.Name); err != nil {
			log.WithError(err).WithField("file", info.Name).Warn("failed to mark retrieve-list entry retrieved")
		}
		fetched++
	}

	log.WithField("files", fetched).Info("gf worker finished")
	return transfer.ExitSuccess
}

// lookupFRA scans the FRA for the row whose DirAlias matches alias.
// FRA rows aren't keyed by position the way FSA rows are looked up by
// cmd/fd (Dispatch only hands this worker a host position/alias), so a
// linear scan over what is typically a handful of fetch directories
// is simplest.
func lookupFRA(area *status.Area, alias string) (status.FetchStatus, error) {
	for i := 0; i < area.Count(); i++ {
		var fra status.FetchStatus
		if err := area.ReadRecord(i, &fra); err != nil {
			return status.FetchStatus{}, err
		}
		if fra.DirAlias == alias {
			return fra, nil
		}
	}
	return status.FetchStatus{}, fmt.Errorf("gf: no FRA row for dir_alias %q", alias)
}

// parseFetchURL extracts the remote directory path from an FRA URL
// field (e.g. "ftp://host:port/remote/dir"); host/port themselves come
// from the FSA row sharing this job's alias, not from the URL.
func parseFetchURL(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("gf: parse url %q: %w", raw, err)
	}
	return u.Path, nil
}

// newDriver mirrors cmd/sf's protocol registry; gf workers need no
// port/lock-mode fields from a message file since a fetch job has no
// MDB entry, only the FSA host row and the FRA directory row.
func newDriver(host status.HostStatus) (proto.Driver, proto.Config, error) {
	cfg := proto.Config{Host: host.RealHostname[0]}
	switch host.Protocol {
	case status.ProtoLOC:
		return localproto.New(host.RealHostname[0]), cfg, nil
	case status.ProtoFTP:
		return ftpproto.New(), cfg, nil
	case status.ProtoSFTP, status.ProtoSCP:
		if host.Protocol == status.ProtoSCP {
			return sftpproto.NewSCP(), cfg, nil
		}
		return sftpproto.New(), cfg, nil
	case status.ProtoHTTP:
		return httpproto.New(), cfg, nil
	default:
		return nil, cfg, fmt.Errorf("gf: unsupported protocol %v", host.Protocol)
	}
}

func classifyExitCode(err error, def transfer.ExitCode) transfer.ExitCode {
	var we *transfer.WorkerError
	if errors.As(err, &we) {
		return we.Code
	}
	return def
}

func parseFlags(workDir, dirAlias *string, hostPos, slotIndex *int) {
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-w":
			i++
			*workDir = args[i]
		case "-h":
			i++
			*dirAlias = args[i]
		case "-p":
			i++
			*hostPos, _ = strconv.Atoi(args[i])
		case "-s":
			i++
			*slotIndex, _ = strconv.Atoi(args[i])
		}
	}
}

// finish reports code to D over SF_FIN_FIFO exactly as cmd/sf does:
// D's reaper doesn't distinguish a send worker's pid from a fetch
// worker's, it only needs the pid back to map to a connection-table
// slot (spec §4.4 step 1).
func finish(workDir string, code transfer.ExitCode, log *logrus.Entry) {
	fifoDir := filepath.Join(workDir, "fifodir")
	pipe, err := fifo.Open(filepath.Join(fifoDir, "SF_FIN_FIFO"))
	if err != nil {
		log.WithError(err).Error("open SF_FIN_FIFO to report finish")
		os.Exit(int(code))
	}
	defer pipe.Close()
	if err := fifo.NewPidWriter(pipe).WritePID(int32(os.Getpid())); err != nil {
		log.WithError(err).Error("write pid to SF_FIN_FIFO")
	}
	os.Exit(int(code))
}
