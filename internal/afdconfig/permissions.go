package afdconfig

import (
	"bufio"
	"strings"
)

// Permission tokens named in spec §6's permissions file grammar.
const (
	PermAll         = "all"
	PermMonCtrl     = "mon_ctrl"
	PermMonStartup  = "mon_startup"
	PermMonShutdown = "mon_shutdown"
	PermMafdCmd     = "mafd_cmd"
	PermDisableAFD  = "disable_afd"
	PermRetry       = "retry"
)

var allTokens = []string{
	PermMonCtrl, PermMonStartup, PermMonShutdown,
	PermMafdCmd, PermDisableAFD, PermRetry,
}

// PermissionSet is the set of tokens granted to one user.
type PermissionSet map[string]bool

// Has reports whether token is granted. Matching is substring-based
// rather than exact-token, the same way the teacher's mafd.c checks a
// permission line with posi() (a plain substring search) instead of a
// tokenizer — preserved here rather than tightened, since a
// permissions file already under the operator's control gains nothing
// from stricter matching and every caller only ever checks the fixed
// token set above.
func (p PermissionSet) Has(token string) bool {
	for granted, ok := range p {
		if ok && strings.Contains(granted, token) {
			return true
		}
	}
	return false
}

// Permissions maps user name to that user's granted tokens.
type Permissions map[string]PermissionSet

// ParsePermissions parses the permissions file grammar: per
// non-comment, non-blank line, `username token...`. "all" implies
// every other token (spec §6: "'all' implies every token"), matching
// mafd.c's literal check of the first three bytes of the permission
// string against "all" before falling back to per-token substring
// checks.
func ParsePermissions(data []byte) Permissions {
	perms := make(Permissions)
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		user := fields[0]
		set := make(PermissionSet)
		for _, tok := range fields[1:] {
			if tok == PermAll {
				set[PermAll] = true
				for _, t := range allTokens {
					set[t] = true
				}
				continue
			}
			set[tok] = true
		}
		perms[user] = set
	}
	return perms
}

// Lookup returns the permission set for user, or an empty set (no
// permissions) if the user has no line in the file.
func (p Permissions) Lookup(user string) PermissionSet {
	if set, ok := p[user]; ok {
		return set
	}
	return PermissionSet{}
}
