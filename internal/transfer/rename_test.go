package transfer

import "testing"

func TestRenameRuleAppliesPrefixAndSuffix(t *testing.T) {
	r := RenameRule{MatchPrefix: "raw_", ReplacePrefix: "done_", MatchSuffix: ".dat", ReplaceSuffix: ".out"}
	if !r.Matches("raw_report.dat") {
		t.Fatalf("expected rule to match raw_report.dat")
	}
	if got := r.Apply("raw_report.dat"); got != "done_report.out" {
		t.Fatalf("Apply() = %q, want done_report.out", got)
	}
}

func TestRenameRuleNoMatch(t *testing.T) {
	r := RenameRule{MatchPrefix: "raw_"}
	if r.Matches("other.dat") {
		t.Fatalf("expected no match for other.dat")
	}
}

func TestRenameRulesFirstMatchWins(t *testing.T) {
	rules := RenameRules{
		{MatchPrefix: "a_", ReplacePrefix: "first_"},
		{MatchPrefix: "a_", ReplacePrefix: "second_"},
	}
	if got := rules.ApplyFirst("a_x"); got != "first_x" {
		t.Fatalf("ApplyFirst() = %q, want first_x", got)
	}
}

func TestRenameRulesNoMatchReturnsUnchanged(t *testing.T) {
	rules := RenameRules{{MatchPrefix: "a_"}}
	if got := rules.ApplyFirst("b_x"); got != "b_x" {
		t.Fatalf("ApplyFirst() = %q, want unchanged b_x", got)
	}
}
