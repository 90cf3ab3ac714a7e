package watcher

import (
	"path/filepath"
	"strconv"
)

func (engine *Engine) processRecord(buf []byte, retried bool) (step, error) {
	event, size, err := decodeEvent(buf)
	if err != nil {
		return step{}, &WatchError{Op: "decode record", Err: err}
	}
	kind := event.Kind()
	if !retried {
		engine.observeEvent(event)
	}

	var entry WatchEntry
	if event.Handle != -1 && kind != KindIgnored {
		slot, ok := engine.cache.LookupHandle(event.Handle)
		if !ok {
			return engine.cacheMiss(event.Handle)
		}
		entry, _ = engine.cache.Entry(slot)
	}

	result := step{consumed: size}
	switch kind {
	case KindCreated, KindMovedTo:
		if event.IsDir() {
			if err := engine.handleCreated(entry, event); err != nil {
				return step{}, err
			}
		}
	case KindDeletedSelf:
		if err := engine.handleDeletedSelf(entry); err != nil {
			return step{}, err
		}
	case KindMovedFrom:
		if event.IsDir() {
			result, err = engine.handleMovedFrom(entry, event, size, buf[size:], retried)
			if err != nil || result.needMore || result.discard {
				return result, err
			}
		}
	case KindMovedSelf:
		result, err = engine.handleMovedSelf(entry, size)
		if err != nil || result.discard {
			return result, err
		}
	case KindQueueOverflow:
		engine.overflowCount++
		engine.logger.Warn("event queue overflow", map[string]string{
			"overflows": itoa(engine.overflowCount),
		})
		return step{discard: true}, engine.reinitialize(reasonOverflow)
	case KindUnmounted:
		engine.logger.Warn("filesystem unmounted", map[string]string{
			"path": entry.Path,
		})
		engine.cache.MarkEmpty(entry.Slot)
	}

	engine.updateGauges()
	return engine.afterEvent(result)
}

func (engine *Engine) observeEvent(event Event) {
	engine.metrics.ObserveEvent(event.Kind().String())
	fields := map[string]string{
		"wd":   itoa(event.Handle),
		"mask": MaskString(event.Mask),
	}
	if event.Cookie != 0 {
		fields["cookie"] = strconv.FormatUint(uint64(event.Cookie), 10)
	}
	if event.Name != "" {
		fields["name"] = event.Name
	}
	engine.logger.Debug("event", fields)
}

func (engine *Engine) cacheMiss(handle int) (step, error) {
	engine.logger.Warn("watch handle not found in cache", map[string]string{
		"wd": itoa(handle),
	})
	if engine.stopFile != "" {
		return step{}, engine.abort(handle)
	}
	return step{discard: true}, engine.reinitialize(reasonCacheMiss)
}

func (engine *Engine) handleCreated(parent WatchEntry, event Event) error {
	path := filepath.Join(parent.Path, event.Name)
	if _, ok := engine.cache.LookupPath(path); ok {
		engine.logger.Info("directory already in cache", map[string]string{
			"path": path,
		})
		return nil
	}
	engine.logger.Info("directory appeared", map[string]string{
		"path": path,
		"kind": event.Kind().String(),
	})
	_, err := engine.watchSubtree(path)
	return err
}

func (engine *Engine) handleDeletedSelf(entry WatchEntry) error {
	engine.logger.Info("directory deleted", map[string]string{
		"path": entry.Path,
		"wd":   itoa(entry.Handle),
	})
	wasRoot := engine.roots.IsRoot(entry.Path)
	engine.cache.MarkEmpty(entry.Slot)
	if !wasRoot {
		return nil
	}
	engine.logger.Warn("root directory deleted", map[string]string{
		"path": entry.Path,
	})
	remaining, err := engine.roots.Zap(entry.Path)
	if err != nil {
		return err
	}
	if remaining == 0 {
		engine.updateGauges()
		return ErrNoRoots
	}
	return nil
}

func (engine *Engine) handleMovedSelf(entry WatchEntry, size int) (step, error) {
	if !engine.roots.IsRoot(entry.Path) {
		return step{consumed: size}, nil
	}
	engine.logger.Warn("root directory moved", map[string]string{
		"path": entry.Path,
	})
	remaining, err := engine.roots.Zap(entry.Path)
	if err != nil {
		return step{}, err
	}
	if !engine.roots.CoveredByOther(entry.Path, "") {
		if _, err := engine.zapSubtree(entry.Path); err != nil {
			if remaining == 0 {
				return step{}, ErrNoRoots
			}
			engine.logger.Warn("watch removal failed", map[string]string{
				"path":  entry.Path,
				"error": err.Error(),
			})
			return step{discard: true}, engine.reinitialize(reasonRemoveFailed)
		}
	}
	if remaining == 0 {
		engine.updateGauges()
		return step{}, ErrNoRoots
	}
	return step{consumed: size}, nil
}

// afterEvent runs the optional consistency check and cache dump.
func (engine *Engine) afterEvent(result step) (step, error) {
	if engine.checkCache {
		report := engine.Verify()
		engine.logVerifyReport(report, false)
		if len(report.NotDirectory) > 0 {
			return step{discard: true}, engine.reinitialize(reasonNotDirectory)
		}
	}
	if engine.dumpCache {
		engine.dumpToLog()
	}
	return result, nil
}
