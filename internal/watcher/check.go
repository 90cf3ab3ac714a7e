package watcher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"dtreewatch/internal/logging"

	"golang.org/x/sys/unix"
)

// PathFailure is a cached path that could not be confirmed on disk.
type PathFailure struct {
	Slot int
	Path string
	Err  error
}

// VerifyReport is the result of checking every cached path against the
// filesystem.
type VerifyReport struct {
	Checked      int
	Missing      []PathFailure
	NotDirectory []PathFailure
}

// Verify stats every cached path.
func (engine *Engine) Verify() VerifyReport {
	report := VerifyReport{}
	for _, entry := range engine.cache.Entries() {
		report.Checked++
		var stat unix.Stat_t
		if err := unix.Lstat(entry.Path, &stat); err != nil {
			report.Missing = append(report.Missing, PathFailure{Slot: entry.Slot, Path: entry.Path, Err: err})
			continue
		}
		if stat.Mode&unix.S_IFMT != unix.S_IFDIR {
			report.NotDirectory = append(report.NotDirectory, PathFailure{Slot: entry.Slot, Path: entry.Path, Err: ErrNotDirectory})
		}
	}
	return report
}

func (engine *Engine) logVerifyReport(report VerifyReport, summary bool) {
	if !summary {
		for _, failure := range report.Missing {
			engine.logger.Info("cached path missing", map[string]string{
				"slot":  itoa(failure.Slot),
				"path":  failure.Path,
				"error": failure.Err.Error(),
			})
		}
	}
	for _, failure := range report.NotDirectory {
		engine.logger.Warn("cached path is not a directory", map[string]string{
			"slot": itoa(failure.Slot),
			"path": failure.Path,
		})
	}
	engine.logger.Debug("cache checked", map[string]string{
		"checked": itoa(report.Checked),
		"missing": itoa(len(report.Missing)),
	})
}

// Entries returns the active cache entries in slot order.
func (engine *Engine) Entries() []WatchEntry {
	return engine.cache.Entries()
}

func (engine *Engine) dumpToLog() {
	for _, entry := range engine.cache.Entries() {
		engine.logger.Debug("cache entry", map[string]string{
			"slot": itoa(entry.Slot),
			"wd":   itoa(entry.Handle),
			"path": entry.Path,
		})
	}
	engine.logger.Debug("cache dumped", map[string]string{
		"entries": itoa(engine.cache.Len()),
	})
}

// WritePaths writes the sorted cached paths to w, one per line.
func (engine *Engine) WritePaths(w io.Writer) error {
	writer := bufio.NewWriter(w)
	for _, path := range engine.cache.Paths() {
		if _, err := fmt.Fprintln(writer, path); err != nil {
			return err
		}
	}
	return writer.Flush()
}

// WritePathsFile writes the cached path list to the named file.
func (engine *Engine) WritePathsFile(name string) (err error) {
	file, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return engine.WritePaths(file)
}

// abort creates the stop file, records a snapshot of the cache and the
// recent log in the log and returns ErrAborted.
func (engine *Engine) abort(handle int) error {
	file, err := os.OpenFile(engine.stopFile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		engine.logger.Error("create stop file failed", map[string]string{
			"path":  engine.stopFile,
			"error": err.Error(),
		})
	} else {
		_ = file.Close()
	}

	recent := engine.logger.Buffer().List()
	engine.logger.Error("aborting on cache inconsistency", map[string]string{
		"wd":        itoa(handle),
		"stop_file": engine.stopFile,
		"entries":   itoa(engine.cache.Len()),
	})
	for _, entry := range engine.cache.Entries() {
		engine.logger.Error("cache entry", map[string]string{
			"slot": itoa(entry.Slot),
			"wd":   itoa(entry.Handle),
			"path": entry.Path,
		})
	}
	for _, entry := range recent {
		engine.logger.Error("recent log", map[string]string{
			"line": logging.FormatEntry(entry),
		})
	}
	return errors.Join(ErrAborted, fmt.Errorf("%w: wd %d", ErrCacheMiss, handle))
}
