package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dtreewatch/internal/stress"
)

func TestParseArgsDefaults(t *testing.T) {
	var errOut bytes.Buffer
	cfg, err := parseArgs([]string{"/tmp/tree"}, &errOut)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Options.Mode != stress.ModeMixed {
		t.Fatalf("expected mixed mode, got %q", cfg.Options.Mode)
	}
	if cfg.Options.Delay != time.Microsecond {
		t.Fatalf("expected 1µs delay, got %s", cfg.Options.Delay)
	}
	if cfg.Options.PathLimit != stress.DefaultPathLimit {
		t.Fatalf("expected default path limit, got %d", cfg.Options.PathLimit)
	}
}

func TestParseArgsOptions(t *testing.T) {
	var errOut bytes.Buffer
	args := []string{"-l", "/tmp/stress.log", "-m", "5", "-s", "2ms", "-z", "/tmp/stop", "--seed", "9", "--tag", "ab", "/tmp/tree", "m"}
	cfg, err := parseArgs(args, &errOut)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	options := cfg.Options
	if options.Mode != stress.ModeRename || options.MaxOps != 5 || options.Delay != 2*time.Millisecond {
		t.Fatalf("unexpected options %+v", options)
	}
	if options.StopFile != "/tmp/stop" || options.Seed != 9 || options.Tag != "ab" {
		t.Fatalf("unexpected options %+v", options)
	}
	if cfg.LogFile != "/tmp/stress.log" {
		t.Fatalf("expected log file, got %q", cfg.LogFile)
	}
}

func TestParseArgsErrors(t *testing.T) {
	cases := [][]string{
		{},
		{"/a", "q"},
		{"/a", "c", "extra"},
		{"-m", "-1", "/a"},
		{"-s", "-1s", "/a"},
	}
	for _, args := range cases {
		var errOut bytes.Buffer
		if _, err := parseArgs(args, &errOut); err == nil {
			t.Fatalf("args %v: expected error", args)
		}
	}

	var errOut bytes.Buffer
	if _, err := parseArgs([]string{"--help"}, &errOut); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
}

func TestRunCreatesDirectories(t *testing.T) {
	root := t.TempDir()
	logFile := filepath.Join(t.TempDir(), "stress.log")
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"-l", logFile, "-m", "5", "-s", "0s", "--tag", "rt", root, "c"}, &out, &errOut)
	if code != exitCodeSuccess {
		t.Fatalf("expected exit %d, got %d (%s)", exitCodeSuccess, code, errOut.String())
	}
	if !strings.HasPrefix(out.String(), "5 operations") {
		t.Fatalf("unexpected summary %q", out.String())
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected generated directories")
	}
	logged, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(logged), "mkdir") {
		t.Fatalf("expected mkdir lines in the log, got %q", logged)
	}
}

func TestRunRejectsMissingRoot(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, &out, &errOut)
	if code != exitCodeUsage {
		t.Fatalf("expected exit %d, got %d", exitCodeUsage, code)
	}
}
