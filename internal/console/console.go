// Package console implements the operator command set of the watch engine.
// Commands are single letters followed by an optional argument; arguments are
// split with shell quoting rules so paths containing spaces can be quoted.
package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"dtreewatch/internal/logging"
	"dtreewatch/internal/metrics"
	"dtreewatch/internal/watcher"

	"github.com/kballard/go-shellquote"
)

const Usage = `Commands:
  0          rebuild the cache from scratch
  a path     add or refresh a subtree in the cache
  c          verify cached paths, reporting each missing one
  C          verify cached paths, summary only
  d          toggle dumping the cache after each event
  l          list cache entries
  q          quit
  v [n]      toggle verbosity, or set it to n
  w file     write the cached path list to file
  x          toggle checking the cache after each event
  z path     remove a subtree from the cache
`

// Console runs operator commands against an engine.
type Console struct {
	engine  *watcher.Engine
	metrics *metrics.Registry
	logger  *logging.Logger
}

func New(engine *watcher.Engine, registry *metrics.Registry, logger *logging.Logger) *Console {
	return &Console{engine: engine, metrics: registry, logger: logger}
}

// Exec runs line on the engine goroutine and returns the command output.
func (c *Console) Exec(ctx context.Context, line string) (string, error) {
	var out bytes.Buffer
	err := c.engine.Do(ctx, func(engine *watcher.Engine) error {
		return c.Execute(engine, line, &out)
	})
	return out.String(), err
}

// Execute runs line against engine, which must be owned by the calling
// goroutine. Command failures are written to out; only fatal engine errors
// are returned.
func (c *Console) Execute(engine *watcher.Engine, line string, out io.Writer) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	words, err := shellquote.Split(line)
	if err != nil {
		fmt.Fprintf(out, "bad command: %v\n", err)
		fmt.Fprint(out, Usage)
		return nil
	}
	command, args := words[0], words[1:]
	if len(command) != 1 {
		fmt.Fprint(out, Usage)
		return nil
	}
	c.logger.Info("console command", map[string]string{
		"command": line,
	})

	switch {
	case command == "0" && len(args) == 0:
		c.metrics.ObserveCommand(command)
		if err := engine.Rebuild(); err != nil {
			fmt.Fprintf(out, "rebuild failed: %v\n", err)
			return err
		}
		fmt.Fprintf(out, "cache rebuilt: %d entries\n", engine.Cache().Len())
	case command == "a" && len(args) == 1:
		c.metrics.ObserveCommand(command)
		path, err := filepath.Abs(args[0])
		if err != nil {
			fmt.Fprintf(out, "bad path %s: %v\n", args[0], err)
			return nil
		}
		zapped, added, err := engine.AddSubtree(path)
		if errors.Is(err, watcher.ErrRebuilt) {
			fmt.Fprintf(out, "refresh %s failed after %d entries: %v\n", path, zapped, err)
			fmt.Fprintf(out, "cache rebuilt: %d entries\n", engine.Cache().Len())
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "add %s failed: %v\n", path, err)
			return err
		}
		fmt.Fprintf(out, "zapped %d entries, added %d entries under %s\n", zapped, added, path)
	case (command == "c" || command == "C") && len(args) == 0:
		c.metrics.ObserveCommand(command)
		report := engine.Verify()
		if command == "c" {
			for _, failure := range report.Missing {
				fmt.Fprintf(out, "missing: [%d] %s: %v\n", failure.Slot, failure.Path, failure.Err)
			}
		}
		for _, failure := range report.NotDirectory {
			fmt.Fprintf(out, "not a directory: [%d] %s\n", failure.Slot, failure.Path)
		}
		fmt.Fprintf(out, "verified %d entries: %d missing, %d not directories\n",
			report.Checked, len(report.Missing), len(report.NotDirectory))
	case command == "d" && len(args) == 0:
		c.metrics.ObserveCommand(command)
		engine.SetDumpCache(!engine.DumpCacheEnabled())
		fmt.Fprintf(out, "dump cache after each event: %s\n", onOff(engine.DumpCacheEnabled()))
	case command == "l" && len(args) == 0:
		c.metrics.ObserveCommand(command)
		entries := engine.Entries()
		for _, entry := range entries {
			fmt.Fprintf(out, "%5d %5d %s\n", entry.Slot, entry.Handle, entry.Path)
		}
		fmt.Fprintf(out, "%d entries\n", len(entries))
	case command == "q" && len(args) == 0:
		c.metrics.ObserveCommand(command)
		engine.Stop()
		fmt.Fprintln(out, "bye")
	case command == "v" && len(args) <= 1:
		verbosity := logging.VerbosityQuiet
		if len(args) == 1 {
			value, err := strconv.Atoi(args[0])
			if err != nil || value < 0 {
				fmt.Fprint(out, Usage)
				return nil
			}
			verbosity = value
		} else if engine.Verbosity() == logging.VerbosityQuiet {
			verbosity = logging.VerbosityBasic
		}
		c.metrics.ObserveCommand(command)
		engine.SetVerbosity(verbosity)
		fmt.Fprintf(out, "verbosity: %d\n", verbosity)
	case command == "w" && len(args) == 1:
		c.metrics.ObserveCommand(command)
		if err := engine.WritePathsFile(args[0]); err != nil {
			fmt.Fprintf(out, "write failed: %v\n", err)
			return nil
		}
		fmt.Fprintf(out, "wrote %d paths to %s\n", engine.Cache().Len(), args[0])
	case command == "x" && len(args) == 0:
		c.metrics.ObserveCommand(command)
		engine.SetCheckCache(!engine.CheckCacheEnabled())
		fmt.Fprintf(out, "check cache after each event: %s\n", onOff(engine.CheckCacheEnabled()))
	case command == "z" && len(args) == 1:
		c.metrics.ObserveCommand(command)
		path, err := filepath.Abs(args[0])
		if err != nil {
			fmt.Fprintf(out, "bad path %s: %v\n", args[0], err)
			return nil
		}
		removed, err := engine.ZapSubtree(path)
		if errors.Is(err, watcher.ErrRebuilt) {
			fmt.Fprintf(out, "zap %s failed after %d entries: %v\n", path, removed, err)
			fmt.Fprintf(out, "cache rebuilt: %d entries\n", engine.Cache().Len())
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "zap %s failed: %v\n", path, err)
			return err
		}
		fmt.Fprintf(out, "zapped %d entries under %s\n", removed, path)
	default:
		fmt.Fprint(out, Usage)
	}
	return nil
}

func onOff(value bool) string {
	if value {
		return "on"
	}
	return "off"
}
