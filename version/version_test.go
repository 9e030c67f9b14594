package version

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompileTimeValues(t *testing.T) {
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })

	Version = "v1.2.3"
	Commit = "0123456789abcdef"
	Date = "2026-01-02T03:04:05Z"

	if got := GetVersion(); got != "v1.2.3" {
		t.Errorf("GetVersion() = %q", got)
	}
	if got, want := GetFullVersion(), "v1.2.3 (0123456, built 2026-01-02T03:04:05Z)"; got != want {
		t.Errorf("GetFullVersion() = %q, want %q", got, want)
	}
	if info := GetInfo(); info.Package != "dbooru" || info.Commit != Commit {
		t.Errorf("GetInfo() = %+v", info)
	}
}

func TestPrintVersion(t *testing.T) {
	var buf bytes.Buffer
	PrintVersion(&buf, "dbooru")
	out := buf.String()
	for _, want := range []string{"dbooru version ", "Package: dbooru", "Commit: ", "Build Date: "} {
		if !strings.Contains(out, want) {
			t.Errorf("PrintVersion output missing %q:\n%s", want, out)
		}
	}
}
