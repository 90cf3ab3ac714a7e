package watcher

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Root is one top-level directory handed to the engine at startup.
type Root struct {
	Path   string
	Device uint64
	Inode  uint64
	Zapped bool
}

// RootSet is the fixed list of roots. Roots are zapped, never removed.
type RootSet struct {
	roots []Root
}

// NewRootSet validates paths: each must be an existing directory and no two
// may name the same device and inode.
func NewRootSet(paths []string) (*RootSet, error) {
	if len(paths) == 0 {
		return nil, errors.New("at least one directory is required")
	}
	set := &RootSet{roots: make([]Root, 0, len(paths))}
	for _, path := range paths {
		absolute, err := filepath.Abs(path)
		if err != nil {
			return nil, &WatchError{Op: "resolve root", Path: path, Err: err}
		}
		var stat unix.Stat_t
		if err := unix.Lstat(absolute, &stat); err != nil {
			return nil, &WatchError{Op: "lstat root", Path: absolute, Err: err}
		}
		if stat.Mode&unix.S_IFMT != unix.S_IFDIR {
			return nil, &WatchError{Op: "root", Path: absolute, Err: ErrNotDirectory}
		}
		root := Root{Path: absolute, Device: uint64(stat.Dev), Inode: uint64(stat.Ino)}
		for _, existing := range set.roots {
			if existing.Device == root.Device && existing.Inode == root.Inode {
				return nil, fmt.Errorf("%w: %s and %s", ErrDuplicateRoot, existing.Path, root.Path)
			}
		}
		set.roots = append(set.roots, root)
	}
	return set, nil
}

// IsRoot reports whether path is exactly an active root.
func (set *RootSet) IsRoot(path string) bool {
	return set.index(path) >= 0
}

func (set *RootSet) index(path string) int {
	for index, root := range set.roots {
		if !root.Zapped && root.Path == path {
			return index
		}
	}
	return -1
}

// Zap marks the active root path as zapped and returns the number of roots
// still active.
func (set *RootSet) Zap(path string) (int, error) {
	index := set.index(path)
	if index < 0 {
		return set.Remaining(), &WatchError{Op: "zap root", Path: path, Err: errors.New("root not found")}
	}
	set.roots[index].Zapped = true
	return set.Remaining(), nil
}

func (set *RootSet) Remaining() int {
	remaining := 0
	for _, root := range set.roots {
		if !root.Zapped {
			remaining++
		}
	}
	return remaining
}

// Active returns the paths of the roots that are not zapped.
func (set *RootSet) Active() []string {
	paths := make([]string, 0, len(set.roots))
	for _, root := range set.roots {
		if !root.Zapped {
			paths = append(paths, root.Path)
		}
	}
	return paths
}

// All returns a copy of every root, zapped or not.
func (set *RootSet) All() []Root {
	roots := make([]Root, len(set.roots))
	copy(roots, set.roots)
	return roots
}

// CoveredByOther reports whether path lies below an active root other than
// the root named exclude.
func (set *RootSet) CoveredByOther(path, exclude string) bool {
	for _, root := range set.roots {
		if root.Zapped || root.Path == exclude {
			continue
		}
		if withinPath(root.Path, path) {
			return true
		}
	}
	return false
}

// Rewrite renames active roots at or below oldPrefix.
func (set *RootSet) Rewrite(oldPrefix, newPrefix string) []string {
	rewritten := []string{}
	for index, root := range set.roots {
		if root.Zapped || !withinPath(oldPrefix, root.Path) {
			continue
		}
		set.roots[index].Path = replacePrefix(root.Path, oldPrefix, newPrefix)
		rewritten = append(rewritten, set.roots[index].Path)
	}
	return rewritten
}
