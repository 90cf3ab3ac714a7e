package logging

import "sync"

const defaultSubscriberBuffer = 100

type subscriber struct {
	entries chan LogEntry
	dropped uint64
}

// LogHub fans entries out to live subscribers such as remote console
// clients. Broadcast never blocks: an entry that does not fit in a
// subscriber's buffer is dropped for that subscriber only.
type LogHub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	dropped     uint64
	closed      bool
}

func NewLogHub() *LogHub {
	return &LogHub{subscribers: make(map[*subscriber]struct{})}
}

// Subscribe registers a subscriber with room for buffer pending entries.
// The returned func unregisters it and closes the channel.
func (h *LogHub) Subscribe(buffer int) (<-chan LogEntry, func()) {
	if h == nil {
		return nil, func() {}
	}
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	sub := &subscriber{entries: make(chan LogEntry, buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.entries)
		return sub.entries, func() {}
	}
	h.subscribers[sub] = struct{}{}
	return sub.entries, func() { h.remove(sub) }
}

func (h *LogHub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	h.dropped += sub.dropped
	close(sub.entries)
}

func (h *LogHub) Broadcast(entry LogEntry) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.entries <- entry:
		default:
			sub.dropped++
		}
	}
}

// Dropped reports how many entries were discarded across all subscribers,
// past and present.
func (h *LogHub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	total := h.dropped
	for sub := range h.subscribers {
		total += sub.dropped
	}
	return total
}

func (h *LogHub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *LogHub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		h.dropped += sub.dropped
		close(sub.entries)
	}
}
