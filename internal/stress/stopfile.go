package stress

import (
	"context"
	"path/filepath"

	"dtreewatch/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// watchStopFile calls stop as soon as path is created. The returned func
// releases the watch.
func watchStopFile(ctx context.Context, path string, stop context.CancelFunc, logger *logging.Logger) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				logger.Info("stop file created", map[string]string{"path": path})
				stop()
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("stop file watch error", map[string]string{"error": err.Error()})
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		_ = watcher.Close()
		<-done
	}, nil
}
