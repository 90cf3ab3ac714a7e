package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"dtreewatch/internal/logging"
	"dtreewatch/internal/stress"
	"dtreewatch/internal/version"
)

const (
	exitCodeSuccess = 0
	exitCodeUsage   = 1
	exitCodeFailure = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	cfg, err := parseArgs(args, errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitCodeSuccess
		}
		fmt.Fprintf(errOut, "dtreestress: %v\n", err)
		return exitCodeUsage
	}
	if cfg.ShowVersion {
		fmt.Fprintln(out, version.GetVersionInfo().Line("dtreestress"))
		return exitCodeSuccess
	}

	level := logging.LevelWarning
	if cfg.Verbose {
		level = logging.LevelInfo
	}
	logger := logging.NewLoggerWithOutput(nil, level, errOut)
	defer logger.Close()
	if cfg.LogFile != "" {
		if err := logger.OpenFile(cfg.LogFile); err != nil {
			fmt.Fprintf(errOut, "dtreestress: %v\n", err)
			return exitCodeUsage
		}
	}

	options := cfg.Options
	options.Logger = logger
	generator, err := stress.New(options)
	if err != nil {
		fmt.Fprintf(errOut, "dtreestress: %v\n", err)
		return exitCodeUsage
	}
	logger.Info("stress run started", map[string]string{
		"root": options.Root,
		"mode": string(options.Mode),
		"tag":  generator.Tag(),
	})

	stats, err := generator.Run(ctx)
	logger.Info("stress run finished", map[string]string{
		"ops":     strconv.Itoa(stats.Ops),
		"created": strconv.Itoa(stats.Created),
		"removed": strconv.Itoa(stats.Removed),
		"renamed": strconv.Itoa(stats.Renamed),
		"skipped": strconv.Itoa(stats.Skipped),
	})
	if err != nil {
		fmt.Fprintf(errOut, "dtreestress: %v\n", err)
		return exitCodeFailure
	}
	fmt.Fprintf(out, "%d operations: %d created, %d removed, %d renamed\n",
		stats.Ops, stats.Created, stats.Removed, stats.Renamed)
	return exitCodeSuccess
}
