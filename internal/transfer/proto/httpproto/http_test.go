package httpproto

import "testing"

func TestResourceNameExtractsTail(t *testing.T) {
	cases := map[string]string{
		"http://host/a/b/report.csv": "report.csv",
		"http://host/report.csv":     "report.csv",
		"http://host/":               "",
		"http://host":                "host",
	}
	for url, want := range cases {
		if got := resourceName(url); got != want {
			t.Errorf("resourceName(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestSupportsResumeIsFalse(t *testing.T) {
	if New().SupportsResume() {
		t.Fatalf("http driver must not report resume support")
	}
}
