package transfer

import "testing"

func TestParseLockMode(t *testing.T) {
	cases := map[string]LockMode{
		"":         LockNone,
		"no":       LockNone,
		"lockfile": LockFile,
		"dot":      LockDotPrefix,
		"DOT_VMS":  LockDotVMS,
		"postfix":  LockPostfix,
		"garbage":  LockNone,
	}
	for in, want := range cases {
		if got := ParseLockMode(in); got != want {
			t.Errorf("ParseLockMode(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStageNameAndRename(t *testing.T) {
	cases := []struct {
		mode       LockMode
		name       string
		wantStage  string
		wantRename bool
	}{
		{LockNone, "foo", "foo", false},
		{LockFile, "foo", "foo", false},
		{LockDotPrefix, "foo", ".foo", true},
		{LockDotVMS, "foo", ".foo.", true},
		{LockPostfix, "foo", "foo.tmp", true},
	}
	for _, c := range cases {
		if got := c.mode.StageName(c.name); got != c.wantStage {
			t.Errorf("mode %v StageName(%q) = %q, want %q", c.mode, c.name, got, c.wantStage)
		}
		if got := c.mode.NeedsRename(); got != c.wantRename {
			t.Errorf("mode %v NeedsRename() = %v, want %v", c.mode, got, c.wantRename)
		}
	}
}

func TestPeerLockFileOnlyForLockFileMode(t *testing.T) {
	if got := LockFile.PeerLockFile("foo"); got != "foo.lock" {
		t.Errorf("LockFile.PeerLockFile(foo) = %q, want foo.lock", got)
	}
	if got := LockDotPrefix.PeerLockFile("foo"); got != "" {
		t.Errorf("LockDotPrefix.PeerLockFile(foo) = %q, want empty", got)
	}
}
