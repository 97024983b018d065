package version

import (
	"strings"
	"testing"
)

func TestStringIncludesBuildFields(t *testing.T) {
	Version, Commit = "v1.2.3", "abc123"
	t.Cleanup(func() { Version, Commit = "dev", "unknown" })

	out := String()
	if !strings.HasPrefix(out, "alphafeed v1.2.3\n") || !strings.Contains(out, "commit: abc123") {
		t.Fatalf("unexpected version output %q", out)
	}
}
