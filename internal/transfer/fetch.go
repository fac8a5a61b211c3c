package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/hfs/afd-sub005/internal/retrieve"
	"github.com/hfs/afd-sub005/internal/transfer/proto"
)

// dotfileName is the staging name a fetch worker writes a remote file
// under before renaming it to its final local name (spec §4.3 fetch
// extras: "Files are fetched to a dotfile .NAME then renamed to NAME
// on success").
func dotfileName(name string) string {
	return "." + name
}

// FetchOne retrieves one remote file via driver into localDir,
// writing it to a dotfile first and renaming it into place only once
// the transfer completes, then restoring its modification time if
// keepTimeStamp is set and removing the remote copy if removeRemote is
// set (spec §4.3 fetch extras). It returns the number of bytes
// written.
func FetchOne(ctx context.Context, driver proto.Driver, info proto.FileInfo, localDir string, keepTimeStamp, removeRemote bool) (int64, error) {
	remote, err := driver.OpenRead(ctx, info.Name)
	if err != nil {
		return 0, fail(ExitOpenRemoteError, err)
	}
	defer remote.Close()

	dotPath := filepath.Join(localDir, dotfileName(info.Name))
	local, err := os.OpenFile(dotPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fail(ExitOpenLocalError, err)
	}

	written, err := io.Copy(local, remote)
	if err != nil {
		local.Close()
		os.Remove(dotPath)
		return written, fail(ExitWriteLocalError, err)
	}
	if err := local.Close(); err != nil {
		os.Remove(dotPath)
		return written, fail(ExitWriteLocalError, err)
	}

	finalPath := filepath.Join(localDir, info.Name)
	if err := os.Rename(dotPath, finalPath); err != nil {
		return written, fail(ExitRenameError, err)
	}

	if keepTimeStamp && !info.Mtime.IsZero() {
		if err := os.Chtimes(finalPath, info.Mtime, info.Mtime); err != nil {
			return written, fail(ExitWriteLocalError, err)
		}
	}

	if removeRemote {
		if err := driver.Delete(ctx, info.Name); err != nil {
			return written, fail(ExitOpenRemoteError, err)
		}
	}
	return written, nil
}

// CheckListPass lists driver's current directory and feeds every
// entry through store.CheckList, returning the entries the caller
// should actually fetch (spec §4.3 fetch extras, §4.5). stupidMode
// disables persistence semantics inside store (the store itself still
// decides what that means per entry); passesFilters implements the
// ignore-size/ignore-file-time tri-sign comparisons
// (status.FetchStatus.PassesFilters satisfies the signature).
func CheckListPass(ctx context.Context, driver proto.Driver, store *retrieve.Store, stupidMode bool, passesFilters func(size, ageSeconds int64) bool) ([]proto.FileInfo, error) {
	if err := store.MarkNotInListAll(); err != nil {
		return nil, err
	}

	entries, err := driver.List(ctx)
	if err != nil {
		return nil, fail(ExitOpenRemoteError, err)
	}

	var toFetch []proto.FileInfo
	for _, e := range entries {
		mtime := int64(-1)
		if !e.Mtime.IsZero() {
			mtime = e.Mtime.UTC().Unix()
		}
		result, err := store.CheckList(e.Name, e.Size, mtime, stupidMode, passesFilters)
		if err != nil {
			return nil, err
		}
		if result == retrieve.Fetch {
			toFetch = append(toFetch, e)
		}
	}

	if !stupidMode {
		if err := store.Compact(); err != nil {
			return nil, err
		}
	} else {
		if err := store.Truncate(); err != nil {
			return nil, err
		}
	}
	return toFetch, nil
}
