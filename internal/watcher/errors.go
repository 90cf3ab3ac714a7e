package watcher

import (
	"errors"
	"fmt"
)

var (
	ErrCacheMiss     = errors.New("watch handle not found in cache")
	ErrNoRoots       = errors.New("no root paths left to monitor")
	ErrAborted       = errors.New("aborted on cache inconsistency")
	ErrDuplicateRoot = errors.New("duplicate root path")
	ErrNotDirectory  = errors.New("not a directory")
	ErrStopped       = errors.New("engine stopped")
	ErrEmptyRead     = errors.New("read from notification channel returned 0")
	ErrRebuilt       = errors.New("cache rebuilt after failed watch removal")
)

// WatchError records a failed operation on a path.
type WatchError struct {
	Op   string
	Path string
	Err  error
}

func (err *WatchError) Error() string {
	if err == nil {
		return "<nil>"
	}
	if err.Path == "" {
		return fmt.Sprintf("%s: %v", err.Op, err.Err)
	}
	return fmt.Sprintf("%s %s: %v", err.Op, err.Path, err.Err)
}

func (err *WatchError) Unwrap() error {
	if err == nil {
		return nil
	}
	return err.Err
}
