package watcher

import (
	"sort"
	"strings"
)

const (
	cacheGrowth = 200
	freeHandle  = -1
)

// WatchEntry is one cached directory.
type WatchEntry struct {
	Slot   int
	Handle int
	Path   string
}

type cacheSlot struct {
	handle int
	path   string
}

// Cache maps watch handles to the absolute path of the watched directory.
// Slots are reused in place and the slot array only grows. It is not safe
// for concurrent use.
type Cache struct {
	slots     []cacheSlot
	byHandle  map[int]int
	byPath    map[string]int
	firstFree int
}

func NewCache() *Cache {
	return &Cache{
		byHandle: make(map[int]int),
		byPath:   make(map[string]int),
	}
}

// Len returns the number of active entries.
func (cache *Cache) Len() int {
	return len(cache.byHandle)
}

// Capacity returns the number of allocated slots.
func (cache *Cache) Capacity() int {
	return len(cache.slots)
}

func (cache *Cache) LookupHandle(handle int) (int, bool) {
	slot, ok := cache.byHandle[handle]
	return slot, ok
}

func (cache *Cache) LookupPath(path string) (int, bool) {
	slot, ok := cache.byPath[path]
	return slot, ok
}

// Entry returns the entry stored in slot.
func (cache *Cache) Entry(slot int) (WatchEntry, bool) {
	if slot < 0 || slot >= len(cache.slots) || cache.slots[slot].handle == freeHandle {
		return WatchEntry{}, false
	}
	return WatchEntry{Slot: slot, Handle: cache.slots[slot].handle, Path: cache.slots[slot].path}, true
}

// Insert stores a new entry in the first free slot and returns the slot.
func (cache *Cache) Insert(handle int, path string) int {
	slot := cache.findFreeSlot()
	cache.slots[slot] = cacheSlot{handle: handle, path: path}
	cache.byHandle[handle] = slot
	cache.byPath[path] = slot
	cache.firstFree = slot + 1
	return slot
}

// Rebind points an existing slot at a new handle.
func (cache *Cache) Rebind(slot, handle int) {
	if slot < 0 || slot >= len(cache.slots) || cache.slots[slot].handle == freeHandle {
		return
	}
	delete(cache.byHandle, cache.slots[slot].handle)
	cache.slots[slot].handle = handle
	cache.byHandle[handle] = slot
}

func (cache *Cache) findFreeSlot() int {
	for slot := cache.firstFree; slot < len(cache.slots); slot++ {
		if cache.slots[slot].handle == freeHandle {
			return slot
		}
	}
	first := len(cache.slots)
	for range cacheGrowth {
		cache.slots = append(cache.slots, cacheSlot{handle: freeHandle})
	}
	return first
}

// MarkEmpty frees slot.
func (cache *Cache) MarkEmpty(slot int) {
	if slot < 0 || slot >= len(cache.slots) {
		return
	}
	entry := cache.slots[slot]
	if entry.handle == freeHandle {
		return
	}
	if current, ok := cache.byHandle[entry.handle]; ok && current == slot {
		delete(cache.byHandle, entry.handle)
	}
	if current, ok := cache.byPath[entry.path]; ok && current == slot {
		delete(cache.byPath, entry.path)
	}
	cache.slots[slot] = cacheSlot{handle: freeHandle}
	if slot < cache.firstFree {
		cache.firstFree = slot
	}
}

// Reset frees every slot.
func (cache *Cache) Reset() {
	for slot := range cache.slots {
		cache.slots[slot] = cacheSlot{handle: freeHandle}
	}
	clear(cache.byHandle)
	clear(cache.byPath)
	cache.firstFree = 0
}

// Entries returns the active entries in slot order.
func (cache *Cache) Entries() []WatchEntry {
	entries := make([]WatchEntry, 0, cache.Len())
	for slot, entry := range cache.slots {
		if entry.handle == freeHandle {
			continue
		}
		entries = append(entries, WatchEntry{Slot: slot, Handle: entry.handle, Path: entry.path})
	}
	return entries
}

// Paths returns the cached paths sorted.
func (cache *Cache) Paths() []string {
	paths := make([]string, 0, cache.Len())
	for _, entry := range cache.slots {
		if entry.handle != freeHandle {
			paths = append(paths, entry.path)
		}
	}
	sort.Strings(paths)
	return paths
}

// SubtreeSlots returns the slots whose path is prefix or lies below it.
func (cache *Cache) SubtreeSlots(prefix string) []int {
	slots := []int{}
	for slot, entry := range cache.slots {
		if entry.handle != freeHandle && withinPath(prefix, entry.path) {
			slots = append(slots, slot)
		}
	}
	return slots
}

// RewritePrefix replaces oldPrefix with newPrefix in every entry at or below
// oldPrefix and returns the rewritten entries.
func (cache *Cache) RewritePrefix(oldPrefix, newPrefix string) []WatchEntry {
	rewritten := []WatchEntry{}
	for _, slot := range cache.SubtreeSlots(oldPrefix) {
		entry := &cache.slots[slot]
		if current, ok := cache.byPath[entry.path]; ok && current == slot {
			delete(cache.byPath, entry.path)
		}
		entry.path = replacePrefix(entry.path, oldPrefix, newPrefix)
		rewritten = append(rewritten, WatchEntry{Slot: slot, Handle: entry.handle, Path: entry.path})
	}
	for _, entry := range rewritten {
		cache.byPath[entry.Path] = entry.Slot
	}
	return rewritten
}

// withinPath reports whether path equals prefix or names something below it.
func withinPath(prefix, path string) bool {
	if path == prefix {
		return true
	}
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	return strings.HasPrefix(path, prefix+"/")
}

func replacePrefix(path, oldPrefix, newPrefix string) string {
	if path == oldPrefix {
		return newPrefix
	}
	rest := strings.TrimPrefix(path, oldPrefix)
	if oldPrefix == "/" {
		rest = "/" + rest
	}
	if newPrefix == "/" {
		return rest
	}
	return newPrefix + rest
}
