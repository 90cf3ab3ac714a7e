package watcher

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// watchSubtree registers a watch and a cache entry for root and every
// directory below it. Directories that vanish during the walk are skipped;
// any other registration failure is fatal. It returns the number of entries
// added.
func (engine *Engine) watchSubtree(root string) (int, error) {
	added := 0
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			engine.logger.Info("walk skipped path", map[string]string{
				"path":  path,
				"error": err.Error(),
			})
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		ok, err := engine.watchDirectory(path)
		if err != nil {
			return err
		}
		if ok {
			added++
		}
		return nil
	})
	if err != nil {
		return added, err
	}
	engine.logger.Info("subtree watched", map[string]string{
		"path":    root,
		"entries": itoa(added),
	})
	engine.updateGauges()
	return added, nil
}

func (engine *Engine) watchDirectory(path string) (bool, error) {
	mask := uint32(watchMask)
	if engine.roots.IsRoot(path) {
		mask = rootMask
	}
	handle, err := engine.channel.AddWatch(path, mask)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			engine.logger.Info("directory vanished before it could be watched", map[string]string{
				"path": path,
			})
			return false, nil
		}
		return false, &WatchError{Op: "add watch", Path: path, Err: err}
	}

	if slot, ok := engine.cache.LookupHandle(handle); ok {
		cached, _ := engine.cache.Entry(slot)
		engine.logger.Debug("watch already cached", map[string]string{
			"path":   path,
			"cached": cached.Path,
			"wd":     itoa(handle),
		})
		return false, nil
	}
	if slot, ok := engine.cache.LookupPath(path); ok {
		engine.cache.Rebind(slot, handle)
		engine.logger.Info("cached path rebound to new watch", map[string]string{
			"path": path,
			"wd":   itoa(handle),
		})
		return false, nil
	}

	slot := engine.cache.Insert(handle, path)
	engine.logger.Debug("watch added", map[string]string{
		"slot": itoa(slot),
		"wd":   itoa(handle),
		"path": path,
	})
	return true, nil
}
