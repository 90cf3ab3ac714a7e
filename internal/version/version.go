package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Set at build time with -ldflags "-X dtreewatch/internal/version.Version=...".
var Version = "dev"
var Built = ""
var GitCommit = ""

type VersionInfo struct {
	Version   string `json:"version"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Patch     int    `json:"patch"`
	Built     string `json:"built"`
	GitCommit string `json:"git_commit,omitempty"`
}

func GetVersionInfo() VersionInfo {
	major, minor, patch := parseSemver(Version)
	return VersionInfo{
		Version:   Version,
		Major:     major,
		Minor:     minor,
		Patch:     patch,
		Built:     Built,
		GitCommit: GitCommit,
	}
}

// Line renders the version for --version output.
func (info VersionInfo) Line(program string) string {
	line := fmt.Sprintf("%s %s", program, info.Version)
	details := []string{}
	if info.GitCommit != "" {
		details = append(details, "commit "+info.GitCommit)
	}
	if info.Built != "" {
		details = append(details, "built "+info.Built)
	}
	if len(details) > 0 {
		line += " (" + strings.Join(details, ", ") + ")"
	}
	return line
}

func parseSemver(value string) (int, int, int) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "v")
	if index := strings.IndexAny(value, "-+"); index >= 0 {
		value = value[:index]
	}
	parts := strings.SplitN(value, ".", 3)
	numbers := [3]int{}
	for index, part := range parts {
		parsed, err := strconv.Atoi(part)
		if err != nil {
			return 0, 0, 0
		}
		numbers[index] = parsed
	}
	return numbers[0], numbers[1], numbers[2]
}
