package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"dtreewatch/internal/cli"
	"dtreewatch/internal/config"
	"dtreewatch/internal/logging"
)

const configEnvKey = config.EnvPrefix + "CONFIG"

type Config struct {
	Settings    config.Settings
	Roots       []string
	ConfigFile  string
	NoPrompt    bool
	ShowVersion bool
}

type flagValues struct {
	Verbosity      int
	LogFile        string
	CheckCache     bool
	DumpCache      bool
	ReadBufferSize int
	RenameWait     time.Duration
	AbortStopFile  string
	ConfigFile     string
	Listen         string
	Token          string
	AllowedOrigins cli.StringList
	NoPrompt       bool
	Help           bool
	Version        bool
	Set            map[string]bool
	Args           []string
}

type helpOption struct {
	Name string
	Desc string
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"v":               "verbosity",
	"l":               "log_file",
	"x":               "check_cache",
	"d":               "dump_cache",
	"b":               "read_buffer_size",
	"rename-wait":     "rename_wait",
	"a":               "abort_stop_file",
	"listen":          "listen",
	"token":           "token",
	"allowed-origins": "allowed_origins",
}

// loadConfig merges defaults, the optional YAML file, the environment and
// the command line, in increasing order of precedence.
func loadConfig(args []string, errOut io.Writer, lookupEnv func(string) (string, bool)) (Config, error) {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	defaults := config.Defaults()
	flags, err := parseFlags(args, defaults, errOut)
	if err != nil {
		return Config{}, err
	}
	if flags.Version {
		return Config{ShowVersion: true}, nil
	}

	cfg := Config{
		Settings: defaults,
		NoPrompt: flags.NoPrompt,
	}

	configFile := ""
	if value, ok := lookupEnv(configEnvKey); ok {
		configFile = strings.TrimSpace(value)
	}
	if flags.Set["config"] {
		configFile = strings.TrimSpace(flags.ConfigFile)
		if configFile == "" {
			return Config{}, fmt.Errorf("invalid --config: value cannot be empty")
		}
	}
	if configFile != "" {
		file, err := config.LoadFile(configFile)
		if err != nil {
			return Config{}, err
		}
		if err := cfg.Settings.ApplyFile(file); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", configFile, err)
		}
	}
	cfg.ConfigFile = configFile

	if err := cfg.Settings.ApplyEnv(lookupEnv); err != nil {
		return Config{}, err
	}
	applyFlags(&cfg.Settings, flags)

	if err := cfg.Settings.Validate(); err != nil {
		return Config{}, err
	}

	if len(flags.Args) == 0 {
		printHelp(errOut, defaults)
		return Config{}, fmt.Errorf("at least one directory path is required")
	}
	cfg.Roots = flags.Args
	return cfg, nil
}

func applyFlags(settings *config.Settings, flags flagValues) {
	for name := range flags.Set {
		key, ok := flagKeys[name]
		if !ok {
			continue
		}
		settings.MarkFlag(key)
		switch key {
		case "verbosity":
			settings.Verbosity = flags.Verbosity
		case "log_file":
			settings.LogFile = strings.TrimSpace(flags.LogFile)
		case "check_cache":
			settings.CheckCache = flags.CheckCache
		case "dump_cache":
			settings.DumpCache = flags.DumpCache
		case "read_buffer_size":
			settings.ReadBufferSize = flags.ReadBufferSize
		case "rename_wait":
			settings.RenameWait = flags.RenameWait
		case "abort_stop_file":
			settings.AbortStopFile = strings.TrimSpace(flags.AbortStopFile)
		case "listen":
			settings.Listen = strings.TrimSpace(flags.Listen)
		case "token":
			settings.Token = strings.TrimSpace(flags.Token)
		case "allowed_origins":
			settings.AllowedOrigins = []string(flags.AllowedOrigins)
		}
	}
}

func parseFlags(args []string, defaults config.Settings, errOut io.Writer) (flagValues, error) {
	if args == nil {
		args = []string{}
	}
	fs := flag.NewFlagSet("dtreewatch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	verbosity := fs.Int("v", defaults.Verbosity, "Logging verbosity")
	logFile := fs.String("l", defaults.LogFile, "Append log lines to file")
	checkCache := fs.Bool("x", defaults.CheckCache, "Check cached paths after each event")
	dumpCache := fs.Bool("d", defaults.DumpCache, "Dump the cache to the log after each event")
	readBufferSize := fs.Int("b", defaults.ReadBufferSize, "Read buffer size in bytes")
	renameWait := fs.Duration("rename-wait", defaults.RenameWait, "Wait for the second half of a rename")
	abortStopFile := fs.String("a", defaults.AbortStopFile, "Abort on cache inconsistency and create stop file")
	configFile := fs.String("config", "", "YAML configuration file")
	listen := fs.String("listen", defaults.Listen, "HTTP address for the remote console and metrics")
	token := fs.String("token", defaults.Token, "Auth token for HTTP endpoints")
	allowedOrigins := cli.StringList{}
	fs.Var(&allowedOrigins, "allowed-origins", "Allowed websocket origins (comma separated)")
	noPrompt := fs.Bool("no-prompt", false, "Do not read commands from stdin")
	helpVersion := cli.AddHelpVersionFlags(fs, "Show help", "Print version and exit")

	fs.Usage = func() {
		printHelp(fs.Output(), defaults)
	}

	if err := fs.Parse(args); err != nil {
		return flagValues{}, err
	}

	flags := flagValues{
		Verbosity:      *verbosity,
		LogFile:        *logFile,
		CheckCache:     *checkCache,
		DumpCache:      *dumpCache,
		ReadBufferSize: *readBufferSize,
		RenameWait:     *renameWait,
		AbortStopFile:  *abortStopFile,
		ConfigFile:     *configFile,
		Listen:         *listen,
		Token:          *token,
		AllowedOrigins: allowedOrigins,
		NoPrompt:       *noPrompt,
		Help:           helpVersion.Help,
		Version:        helpVersion.Version,
		Set:            cli.SetFlags(fs),
		Args:           fs.Args(),
	}

	if flags.Help {
		fs.Usage()
		return flags, flag.ErrHelp
	}
	return flags, nil
}

func printHelp(out io.Writer, defaults config.Settings) {
	fmt.Fprintln(out, "Usage: dtreewatch [options] directory-path...")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Maintain a cache of every directory below the given roots")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")

	writeOptionGroup(out, "Watching", []helpOption{
		{Name: "-v LEVEL", Desc: "Logging verbosity: 0 warnings, 1 info, 2 debug (env: DTREEWATCH_VERBOSITY, default: 0)"},
		{Name: "-l FILE", Desc: "Append log lines to FILE (env: DTREEWATCH_LOG_FILE)"},
		{Name: "-x", Desc: "Check cached paths after each event (env: DTREEWATCH_CHECK_CACHE)"},
		{Name: "-d", Desc: "Dump the cache to the log after each event (env: DTREEWATCH_DUMP_CACHE)"},
		{Name: "-b SIZE", Desc: fmt.Sprintf("Read buffer size in bytes (env: DTREEWATCH_READ_BUFFER_SIZE, default: %d)", defaults.ReadBufferSize)},
		{Name: "--rename-wait DURATION", Desc: fmt.Sprintf("Wait for the second half of a rename (env: DTREEWATCH_RENAME_WAIT, default: %s)", defaults.RenameWait)},
		{Name: "-a FILE", Desc: "Abort on cache inconsistency and create FILE (env: DTREEWATCH_ABORT_STOP_FILE)"},
	})
	writeOptionGroup(out, "Remote console", []helpOption{
		{Name: "--listen ADDR", Desc: "Serve /ws/console, /api/status and /metrics on ADDR (env: DTREEWATCH_LISTEN, default: disabled)"},
		{Name: "--token TOKEN", Desc: "Auth token for HTTP endpoints (env: DTREEWATCH_TOKEN, default: none)"},
		{Name: "--allowed-origins LIST", Desc: "Allowed websocket origins (env: DTREEWATCH_ALLOWED_ORIGINS)"},
	})
	writeOptionGroup(out, "General", []helpOption{
		{Name: "--config FILE", Desc: "YAML configuration file (env: " + configEnvKey + ")"},
		{Name: "--no-prompt", Desc: "Do not read commands from stdin"},
		{Name: "--help", Desc: "Show this help message"},
		{Name: "--version", Desc: "Print version and exit"},
	})
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Exit codes:")
	fmt.Fprintln(out, "  0  Quit, or no roots left to monitor")
	fmt.Fprintln(out, "  1  Usage or configuration error")
	fmt.Fprintln(out, "  2  Fatal runtime error")
	fmt.Fprintln(out, "  3  Aborted on cache inconsistency")
}

func writeOptionGroup(out io.Writer, title string, options []helpOption) {
	if len(options) == 0 {
		return
	}
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, title+":")
	for _, option := range options {
		fmt.Fprintf(out, "  %-24s %s\n", option.Name, option.Desc)
	}
}

func logStartupSources(logger *logging.Logger, cfg Config) {
	if logger == nil {
		return
	}
	keys := make([]string, 0, len(cfg.Settings.Sources))
	for key, source := range cfg.Settings.Sources {
		if source != config.SourceDefault {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)
	fields := make(map[string]string, len(keys)+1)
	for _, key := range keys {
		fields[key] = string(cfg.Settings.Sources[key])
	}
	if cfg.ConfigFile != "" {
		fields["config_file"] = cfg.ConfigFile
	}
	logger.Info("configuration overrides", fields)
}
