package main

import (
	"bytes"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dtreewatch/internal/config"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	var errOut bytes.Buffer
	cfg, err := loadConfig([]string{"/tmp"}, &errOut, envMap(nil))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Settings.ReadBufferSize != config.DefaultReadBufferSize {
		t.Fatalf("expected default buffer size, got %d", cfg.Settings.ReadBufferSize)
	}
	if cfg.Settings.RenameWait != config.DefaultRenameWait {
		t.Fatalf("expected default rename wait, got %s", cfg.Settings.RenameWait)
	}
	if len(cfg.Roots) != 1 || cfg.Roots[0] != "/tmp" {
		t.Fatalf("unexpected roots %v", cfg.Roots)
	}
	if cfg.Settings.Sources["verbosity"] != config.SourceDefault {
		t.Fatalf("expected default source, got %q", cfg.Settings.Sources["verbosity"])
	}
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dtreewatch.yaml")
	payload := "verbosity: 1\ncheck_cache: true\nread_buffer_size: 4096\nrename_wait: 5ms\n"
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	env := envMap(map[string]string{
		"DTREEWATCH_VERBOSITY":        "2",
		"DTREEWATCH_READ_BUFFER_SIZE": "8192",
	})

	var errOut bytes.Buffer
	cfg, err := loadConfig([]string{"--config", path, "-v", "3", "/a", "/b"}, &errOut, env)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	settings := cfg.Settings
	if settings.Verbosity != 3 || settings.Sources["verbosity"] != config.SourceFlag {
		t.Fatalf("expected flag verbosity 3, got %d from %s", settings.Verbosity, settings.Sources["verbosity"])
	}
	if settings.ReadBufferSize != 8192 || settings.Sources["read_buffer_size"] != config.SourceEnv {
		t.Fatalf("expected env buffer size 8192, got %d from %s", settings.ReadBufferSize, settings.Sources["read_buffer_size"])
	}
	if !settings.CheckCache || settings.Sources["check_cache"] != config.SourceFile {
		t.Fatalf("expected check cache from file, got %v from %s", settings.CheckCache, settings.Sources["check_cache"])
	}
	if settings.RenameWait != 5*time.Millisecond {
		t.Fatalf("expected rename wait 5ms, got %s", settings.RenameWait)
	}
	if len(cfg.Roots) != 2 {
		t.Fatalf("expected two roots, got %v", cfg.Roots)
	}
	if cfg.ConfigFile != path {
		t.Fatalf("expected config file %q, got %q", path, cfg.ConfigFile)
	}
}

func TestLoadConfigFileFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dtreewatch.yaml")
	if err := os.WriteFile(path, []byte("listen: 127.0.0.1:0\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	var errOut bytes.Buffer
	cfg, err := loadConfig([]string{"/a"}, &errOut, envMap(map[string]string{configEnvKey: path}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Settings.Listen != "127.0.0.1:0" {
		t.Fatalf("expected listen from file, got %q", cfg.Settings.Listen)
	}
}

func TestLoadConfigShortFlags(t *testing.T) {
	var errOut bytes.Buffer
	args := []string{"-x", "-d", "-l", "/tmp/watch.log", "-a", "/tmp/stop", "-b", "1000", "--allowed-origins", "a.example,b.example", "/a"}
	cfg, err := loadConfig(args, &errOut, envMap(nil))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	settings := cfg.Settings
	if !settings.CheckCache || !settings.DumpCache {
		t.Fatalf("expected check and dump enabled, got %+v", settings)
	}
	if settings.LogFile != "/tmp/watch.log" || settings.AbortStopFile != "/tmp/stop" {
		t.Fatalf("unexpected files %q %q", settings.LogFile, settings.AbortStopFile)
	}
	if settings.ReadBufferSize != 1000 {
		t.Fatalf("expected buffer 1000, got %d", settings.ReadBufferSize)
	}
	if len(settings.AllowedOrigins) != 2 {
		t.Fatalf("expected two origins, got %v", settings.AllowedOrigins)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "no paths", args: []string{}},
		{name: "small buffer", args: []string{"-b", "10", "/a"}},
		{name: "negative verbosity", args: []string{"-v", "-1", "/a"}},
		{name: "rename wait too long", args: []string{"--rename-wait", "2s", "/a"}},
		{name: "unknown flag", args: []string{"--bogus", "/a"}},
		{name: "empty config", args: []string{"--config", " ", "/a"}},
		{name: "missing config", args: []string{"--config", "/nonexistent/dtreewatch.yaml", "/a"}},
		{name: "bad env", args: []string{"/a"}, env: map[string]string{"DTREEWATCH_CHECK_CACHE": "maybe"}},
	}
	for _, testCase := range cases {
		var errOut bytes.Buffer
		if _, err := loadConfig(testCase.args, &errOut, envMap(testCase.env)); err == nil {
			t.Fatalf("%s: expected error", testCase.name)
		}
	}
}

func TestLoadConfigHelpAndVersion(t *testing.T) {
	var errOut bytes.Buffer
	_, err := loadConfig([]string{"--help"}, &errOut, envMap(nil))
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
	if !strings.Contains(errOut.String(), "Usage: dtreewatch") {
		t.Fatalf("expected usage output, got %q", errOut.String())
	}

	cfg, err := loadConfig([]string{"-V"}, &errOut, envMap(nil))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.ShowVersion {
		t.Fatalf("expected ShowVersion")
	}
}
