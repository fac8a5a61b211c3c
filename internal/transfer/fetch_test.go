package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hfs/afd-sub005/internal/retrieve"
	"github.com/hfs/afd-sub005/internal/transfer/proto"
	"github.com/hfs/afd-sub005/internal/transfer/proto/localproto"
)

func TestFetchOneWritesDotfileThenRenames(t *testing.T) {
	remoteDir := t.TempDir()
	localDir := t.TempDir()
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(remoteDir, "data.csv"), []byte("1,2,3"), 0644); err != nil {
		t.Fatal(err)
	}
	driver := localproto.New(remoteDir)
	if err := driver.Chdir(ctx, ".", false, 0755); err != nil {
		t.Fatal(err)
	}

	mtime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := driver.SetModTime("data.csv", mtime); err != nil {
		t.Fatal(err)
	}

	written, err := FetchOne(ctx, driver, proto.FileInfo{Name: "data.csv", Size: 5, Mtime: mtime}, localDir, true, false)
	if err != nil {
		t.Fatalf("FetchOne failed: %v", err)
	}
	if written != 5 {
		t.Fatalf("written = %d, want 5", written)
	}

	if _, err := os.Stat(filepath.Join(localDir, ".data.csv")); !os.IsNotExist(err) {
		t.Fatalf("expected dotfile to be gone after rename, stat err = %v", err)
	}
	info, err := os.Stat(filepath.Join(localDir, "data.csv"))
	if err != nil {
		t.Fatalf("expected final file to exist: %v", err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Fatalf("ModTime = %v, want %v (KEEP_TIME_STAMP)", info.ModTime(), mtime)
	}
}

func TestFetchOneRemovesRemoteWhenRequested(t *testing.T) {
	remoteDir := t.TempDir()
	localDir := t.TempDir()
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(remoteDir, "gone.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	driver := localproto.New(remoteDir)
	if err := driver.Chdir(ctx, ".", false, 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := FetchOne(ctx, driver, proto.FileInfo{Name: "gone.txt", Size: 1}, localDir, false, true); err != nil {
		t.Fatalf("FetchOne failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(remoteDir, "gone.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected remote file removed, stat err = %v", err)
	}
}

func TestCheckListPassSelectsNewFiles(t *testing.T) {
	remoteDir := t.TempDir()
	ctx := context.Background()
	if err := os.WriteFile(filepath.Join(remoteDir, "new.txt"), []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	driver := localproto.New(remoteDir)
	if err := driver.Chdir(ctx, ".", false, 0755); err != nil {
		t.Fatal(err)
	}

	store, err := retrieve.Attach(t.TempDir(), "dir1")
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer store.Detach()

	toFetch, err := CheckListPass(ctx, driver, store, false, nil)
	if err != nil {
		t.Fatalf("CheckListPass failed: %v", err)
	}
	if len(toFetch) != 1 || toFetch[0].Name != "new.txt" {
		t.Fatalf("expected new.txt selected for fetch, got %+v", toFetch)
	}

	toFetchAgain, err := CheckListPass(ctx, driver, store, false, nil)
	if err != nil {
		t.Fatalf("second CheckListPass failed: %v", err)
	}
	if len(toFetchAgain) != 1 {
		t.Fatalf("expected file still listed on second pass (not yet marked retrieved), got %+v", toFetchAgain)
	}
}
