package watcher

import "path/filepath"

// handleMovedFrom applies the one-record rename heuristic. size is the
// length of the MovedFrom record and rest holds the bytes behind it.
func (engine *Engine) handleMovedFrom(parent WatchEntry, event Event, size int, rest []byte, retried bool) (step, error) {
	oldPath := filepath.Join(parent.Path, event.Name)

	if len(rest) > 0 {
		next, nextSize, err := decodeEvent(rest)
		if err == nil && next.Kind() == KindMovedTo && next.Cookie == event.Cookie {
			engine.observeEvent(next)
			slot, ok := engine.cache.LookupHandle(next.Handle)
			if !ok {
				return engine.cacheMiss(next.Handle)
			}
			target, _ := engine.cache.Entry(slot)
			newPath := filepath.Join(target.Path, next.Name)
			if err := engine.rewriteCachedPaths(oldPath, newPath); err != nil {
				return step{}, err
			}
			return step{consumed: size + nextSize}, nil
		}
	}

	if len(rest) > 0 || retried {
		engine.logger.Info("directory moved out of tree", map[string]string{
			"path": oldPath,
		})
		engine.metrics.ObserveRename("out_of_tree")
		if _, err := engine.zapSubtree(oldPath); err != nil {
			engine.logger.Warn("watch removal failed", map[string]string{
				"path":  oldPath,
				"error": err.Error(),
			})
			return step{discard: true}, engine.reinitialize(reasonRemoveFailed)
		}
		return step{consumed: size}, nil
	}

	engine.logger.Debug("rename pair incomplete", map[string]string{
		"path":   oldPath,
		"cookie": itoa(int(event.Cookie)),
	})
	return step{needMore: true}, nil
}

// rewriteCachedPaths renames oldPath and everything cached below it.
func (engine *Engine) rewriteCachedPaths(oldPath, newPath string) error {
	engine.logger.Info("directory renamed", map[string]string{
		"from": oldPath,
		"to":   newPath,
	})
	engine.metrics.ObserveRename("in_tree")

	rewritten := engine.cache.RewritePrefix(oldPath, newPath)
	for _, entry := range rewritten {
		engine.logger.Debug("cache entry renamed", map[string]string{
			"slot": itoa(entry.Slot),
			"wd":   itoa(entry.Handle),
			"path": entry.Path,
		})
	}
	for _, root := range engine.roots.Rewrite(oldPath, newPath) {
		engine.logger.Info("root path renamed", map[string]string{
			"path": root,
		})
	}
	if len(rewritten) > 0 {
		return nil
	}
	if _, ok := engine.cache.LookupPath(newPath); ok {
		return nil
	}
	// The source was never cached, so the destination is treated as new.
	_, err := engine.watchSubtree(newPath)
	return err
}

// zapSubtree removes path and its descendants from the cache, releasing
// their kernel watches. It returns the number of entries removed.
func (engine *Engine) zapSubtree(path string) (int, error) {
	removed := 0
	for _, slot := range engine.cache.SubtreeSlots(path) {
		entry, ok := engine.cache.Entry(slot)
		if !ok {
			continue
		}
		if err := engine.channel.RemoveWatch(entry.Handle); err != nil {
			return removed, &WatchError{Op: "remove watch", Path: entry.Path, Err: err}
		}
		engine.cache.MarkEmpty(slot)
		removed++
		engine.logger.Debug("cache entry removed", map[string]string{
			"slot": itoa(slot),
			"wd":   itoa(entry.Handle),
			"path": entry.Path,
		})
	}
	engine.logger.Info("subtree removed", map[string]string{
		"path":    path,
		"entries": itoa(removed),
	})
	engine.updateGauges()
	return removed, nil
}
