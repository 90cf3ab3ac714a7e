package version

import "testing"

func TestGetVersionInfo(t *testing.T) {
	previousVersion := Version
	previousBuilt := Built
	previousCommit := GitCommit

	Version = "v1.2.3-rc1"
	Built = "2026-01-11T12:34:56Z"
	GitCommit = "abc123"

	t.Cleanup(func() {
		Version = previousVersion
		Built = previousBuilt
		GitCommit = previousCommit
	})

	info := GetVersionInfo()
	if info.Major != 1 || info.Minor != 2 || info.Patch != 3 {
		t.Fatalf("expected 1.2.3, got %d.%d.%d", info.Major, info.Minor, info.Patch)
	}
	expected := "dtreewatch v1.2.3-rc1 (commit abc123, built 2026-01-11T12:34:56Z)"
	if line := info.Line("dtreewatch"); line != expected {
		t.Fatalf("expected %q, got %q", expected, line)
	}
}

func TestDevVersion(t *testing.T) {
	info := VersionInfo{Version: "dev"}
	if line := info.Line("dtreestress"); line != "dtreestress dev" {
		t.Fatalf("expected plain dev line, got %q", line)
	}
	if major, minor, patch := parseSemver("dev"); major != 0 || minor != 0 || patch != 0 {
		t.Fatalf("expected zero version for dev, got %d.%d.%d", major, minor, patch)
	}
}
