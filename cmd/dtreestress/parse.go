package main

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"dtreewatch/internal/cli"
	"dtreewatch/internal/stress"
)

type Config struct {
	Options     stress.Options
	LogFile     string
	Verbose     bool
	ShowVersion bool
}

func parseArgs(args []string, errOut io.Writer) (Config, error) {
	fs := flag.NewFlagSet("dtreestress", flag.ContinueOnError)
	fs.SetOutput(errOut)
	logFile := fs.String("l", "", "Record activity in log file")
	maxOps := fs.Int("m", 0, "Stop after this many operations (0 means unlimited)")
	delay := fs.Duration("s", time.Microsecond, "Delay between operations")
	stopFile := fs.String("z", "", "Stop as soon as this file is created")
	seed := fs.Uint64("seed", 0, "Random seed")
	tag := fs.String("tag", "", "Prefix for generated names (default: random)")
	pathLimit := fs.Int("path-limit", stress.DefaultPathLimit, "Maximum generated path length below the root")
	verbose := fs.Bool("verbose", false, "Log each operation to stderr")
	helpVersion := cli.AddHelpVersionFlags(fs, "Show this help message", "Print version and exit")
	fs.Usage = func() {
		printStressHelp(fs.Output())
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if helpVersion.Help {
		fs.Usage()
		return Config{}, flag.ErrHelp
	}
	if helpVersion.Version {
		return Config{ShowVersion: true}, nil
	}

	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return Config{}, fmt.Errorf("expected a directory path and an optional mode")
	}
	mode := stress.ModeMixed
	if fs.NArg() == 2 {
		parsed, err := stress.ParseMode(fs.Arg(1))
		if err != nil {
			fs.Usage()
			return Config{}, err
		}
		mode = parsed
	}
	if *maxOps < 0 {
		return Config{}, fmt.Errorf("invalid -m: must be >= 0")
	}
	if *delay < 0 {
		return Config{}, fmt.Errorf("invalid -s: must be >= 0")
	}

	return Config{
		Options: stress.Options{
			Root:      strings.TrimSpace(fs.Arg(0)),
			Mode:      mode,
			MaxOps:    *maxOps,
			Delay:     *delay,
			StopFile:  strings.TrimSpace(*stopFile),
			Seed:      *seed,
			Tag:       strings.TrimSpace(*tag),
			PathLimit: *pathLimit,
		},
		LogFile: strings.TrimSpace(*logFile),
		Verbose: *verbose,
	}, nil
}

func printStressHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: dtreestress [options] dirpath [c|d|m|x]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Perform random operations in the directory tree 'dirpath'")
	fmt.Fprintln(out, "  c  create directories")
	fmt.Fprintln(out, "  d  delete directories")
	fmt.Fprintln(out, "  m  rename directories")
	fmt.Fprintln(out, "  x  mix of all three (default)")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	writeStressOption(out, "-l FILE", "Record activity in log file")
	writeStressOption(out, "-m MAXOPS", "Do at most MAXOPS operations (default: unlimited)")
	writeStressOption(out, "-s DURATION", "Delay between operations (default: 1µs)")
	writeStressOption(out, "-z FILE", "Stop as soon as FILE is created")
	writeStressOption(out, "--seed N", "Random seed (default: 0)")
	writeStressOption(out, "--tag TAG", "Prefix for generated names (default: random)")
	writeStressOption(out, "--path-limit N", fmt.Sprintf("Maximum generated path length (default: %d)", stress.DefaultPathLimit))
	writeStressOption(out, "--verbose", "Log each operation to stderr")
	writeStressOption(out, "--help", "Show this help message")
	writeStressOption(out, "--version", "Print version and exit")
}

func writeStressOption(out io.Writer, name, desc string) {
	fmt.Fprintf(out, "  %-18s %s\n", name, desc)
}
