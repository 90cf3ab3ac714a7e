package watcher

import (
	"errors"
	"fmt"
)

const (
	reasonInitial      = "initial"
	reasonOperator     = "operator"
	reasonCacheMiss    = "cache_miss"
	reasonOverflow     = "queue_overflow"
	reasonRemoveFailed = "remove_failed"
	reasonNotDirectory = "not_directory"
)

// reinitialize discards the channel and the cache and rebuilds both from a
// walk of the active roots.
func (engine *Engine) reinitialize(reason string) error {
	fresh := reason == reasonInitial || reason == reasonOperator
	if engine.channel != nil {
		if err := engine.channel.Close(); err != nil {
			engine.logger.Warn("close notification channel failed", map[string]string{
				"error": err.Error(),
			})
		}
		engine.channel = nil
	}
	if fresh {
		engine.rebuildCount = 0
		engine.logger.Info("initializing cache", map[string]string{
			"reason": reason,
		})
	} else {
		engine.rebuildCount++
		engine.logger.Warn("reinitializing cache and notification channel", map[string]string{
			"reason":   reason,
			"rebuilds": itoa(engine.rebuildCount),
		})
	}
	engine.metrics.ObserveRebuild(reason)

	channel, err := engine.open()
	if err != nil {
		return &WatchError{Op: "open notification channel", Err: err}
	}
	if channel == nil {
		return &WatchError{Op: "open notification channel", Err: errors.New("no channel returned")}
	}
	engine.channel = channel
	engine.cache.Reset()

	for _, root := range engine.roots.Active() {
		if _, err := engine.watchSubtree(root); err != nil {
			return err
		}
	}

	fields := map[string]string{
		"entries": itoa(engine.cache.Len()),
		"reason":  reason,
	}
	if fresh {
		engine.logger.Info("cache built", fields)
	} else {
		engine.logger.Warn("rebuilt cache", fields)
	}
	engine.updateGauges()
	return nil
}

// Rebuild discards and rebuilds the cache on operator request.
func (engine *Engine) Rebuild() error {
	return engine.fail(engine.reinitialize(reasonOperator))
}

// AddSubtree drops path and its cached descendants, then watches path and
// everything below it again. It returns the number of entries dropped and
// added. A failed watch removal rebuilds the whole cache instead.
func (engine *Engine) AddSubtree(path string) (zapped, added int, err error) {
	zapped, err = engine.zapSubtree(path)
	if err != nil {
		return zapped, 0, engine.removeFailed(path, err)
	}
	added, err = engine.watchSubtree(path)
	return zapped, added, engine.fail(err)
}

// ZapSubtree removes path and its descendants from the cache. A failed
// watch removal rebuilds the whole cache and is reported as ErrRebuilt.
func (engine *Engine) ZapSubtree(path string) (int, error) {
	removed, err := engine.zapSubtree(path)
	if err != nil {
		return removed, engine.removeFailed(path, err)
	}
	return removed, nil
}

// removeFailed rebuilds after a watch removal failed on an operator request.
func (engine *Engine) removeFailed(path string, cause error) error {
	engine.logger.Warn("watch removal failed", map[string]string{
		"path":  path,
		"error": cause.Error(),
	})
	if err := engine.reinitialize(reasonRemoveFailed); err != nil {
		return engine.fail(err)
	}
	return fmt.Errorf("%w: %v", ErrRebuilt, cause)
}
