package transfer

import "strings"

// RenameRule rewrites a local filename into the name a send worker
// stores it under remotely (spec §4.3 step 5: "optionally rewrite name
// by a rename rule"). AFD's rename.rule grammar is a list of
// prefix/suffix substitutions tried in order; the first matching rule
// wins and later ones are ignored, the same first-match-wins shape
// internal/afdconfig's permission lookup uses for its token list.
type RenameRule struct {
	// MatchPrefix/MatchSuffix select which names this rule applies to;
	// an empty string matches unconditionally on that axis.
	MatchPrefix string
	MatchSuffix string

	// ReplacePrefix/ReplaceSuffix, when non-empty, replace the matched
	// prefix/suffix; the unmatched middle of the name is preserved.
	ReplacePrefix string
	ReplaceSuffix string
}

// Matches reports whether name satisfies this rule's prefix/suffix
// conditions.
func (r RenameRule) Matches(name string) bool {
	if r.MatchPrefix != "" && !strings.HasPrefix(name, r.MatchPrefix) {
		return false
	}
	if r.MatchSuffix != "" && !strings.HasSuffix(name, r.MatchSuffix) {
		return false
	}
	return true
}

// Apply rewrites name per this rule. Callers should check Matches
// first; Apply itself performs no matching.
func (r RenameRule) Apply(name string) string {
	if r.MatchPrefix != "" && r.ReplacePrefix != "" {
		name = r.ReplacePrefix + strings.TrimPrefix(name, r.MatchPrefix)
	}
	if r.MatchSuffix != "" && r.ReplaceSuffix != "" {
		name = strings.TrimSuffix(name, r.MatchSuffix) + r.ReplaceSuffix
	}
	return name
}

// RenameRules is an ordered list of RenameRule; ApplyFirst returns the
// result of the first matching rule, or name unchanged if none match.
type RenameRules []RenameRule

func (rules RenameRules) ApplyFirst(name string) string {
	for _, r := range rules {
		if r.Matches(name) {
			return r.Apply(name)
		}
	}
	return name
}
