package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dtreewatch/internal/console"
	"dtreewatch/internal/logging"
	"dtreewatch/internal/metrics"
	"dtreewatch/internal/version"
	"dtreewatch/internal/watcher"
)

const (
	prompt          = "dtreewatch> "
	noRootsMessage  = "No more root paths left to monitor; bye!"
	promptDrainWait = 100 * time.Millisecond
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	cfg, err := loadConfig(args, errOut, os.LookupEnv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitCodeSuccess
		}
		fmt.Fprintf(errOut, "dtreewatch: %v\n", err)
		return exitCodeUsage
	}
	if cfg.ShowVersion {
		fmt.Fprintln(out, version.GetVersionInfo().Line("dtreewatch"))
		return exitCodeSuccess
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	logger := logging.NewLoggerWithOutput(nil, logging.LevelForVerbosity(cfg.Settings.Verbosity), errOut)
	stopSignals := watchShutdownSignals(logger, cancel, signalCh)
	defer stopSignals()

	return runWatcher(ctx, cfg, logger, in, out)
}

// runWatcher builds the engine and its operator surfaces and runs until the
// engine stops. The returned value is the process exit code.
func runWatcher(ctx context.Context, cfg Config, logger *logging.Logger, in io.Reader, out io.Writer) int {
	out = &lockedWriter{w: out}
	settings := cfg.Settings
	if settings.LogFile != "" {
		if err := logger.OpenFile(settings.LogFile); err != nil {
			logger.Error("open log file failed", map[string]string{
				"path":  settings.LogFile,
				"error": err.Error(),
			})
			return exitCodeUsage
		}
	}
	defer logger.Close()
	logStartupSources(logger, cfg)

	registry := metrics.New()
	engine, err := watcher.New(watcher.Options{
		Roots:          cfg.Roots,
		Logger:         logger,
		Metrics:        registry,
		ReadBufferSize: settings.ReadBufferSize,
		RenameWait:     settings.RenameWait,
		CheckCache:     settings.CheckCache,
		DumpCache:      settings.DumpCache,
		AbortStopFile:  settings.AbortStopFile,
		Verbosity:      settings.Verbosity,
	})
	if err != nil {
		logger.Error("watcher setup failed", map[string]string{
			"error": err.Error(),
		})
		if isUsageError(err) {
			return exitCodeUsage
		}
		return exitCodeFatal
	}
	defer engine.Close()

	operator := console.New(engine, registry, logger)

	if settings.Listen != "" {
		stopServer, err := startHTTPServer(ctx, settings, operator, engine, registry, logger)
		if err != nil {
			logger.Error("http server failed", map[string]string{
				"addr":  settings.Listen,
				"error": err.Error(),
			})
			return exitCodeFatal
		}
		defer stopServer()
	}

	promptDone := make(chan struct{})
	if cfg.NoPrompt || in == nil {
		close(promptDone)
	} else {
		go func() {
			defer close(promptDone)
			runPrompt(ctx, operator, engine.Done(), in, out)
		}()
	}

	err = engine.Run(ctx)
	select {
	case <-promptDone:
	case <-time.After(promptDrainWait):
	}
	return exitCodeFor(err, logger, out)
}

func exitCodeFor(err error, logger *logging.Logger, out io.Writer) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return exitCodeSuccess
	case errors.Is(err, watcher.ErrNoRoots):
		fmt.Fprintln(out, noRootsMessage)
		return exitCodeSuccess
	case errors.Is(err, watcher.ErrAborted):
		logger.Error("aborted on cache inconsistency", map[string]string{
			"error": err.Error(),
		})
		return exitCodeAborted
	default:
		logger.Error("watcher stopped", map[string]string{
			"error": err.Error(),
		})
		return exitCodeFatal
	}
}

func isUsageError(err error) bool {
	return errors.Is(err, watcher.ErrDuplicateRoot) ||
		errors.Is(err, watcher.ErrNotDirectory) ||
		errors.Is(err, fs.ErrNotExist)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (writer *lockedWriter) Write(p []byte) (int, error) {
	writer.mu.Lock()
	defer writer.mu.Unlock()
	return writer.w.Write(p)
}
