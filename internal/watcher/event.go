package watcher

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	recordHeaderSize = unix.SizeofInotifyEvent
	maxNameLength    = 255 + 1
	// MaxRecordSize is the largest record the kernel can deliver.
	MaxRecordSize = recordHeaderSize + maxNameLength
	// DefaultReadBufferSize holds 100 maximal records.
	DefaultReadBufferSize = 100 * MaxRecordSize
)

// Kind classifies a notification record.
type Kind int

const (
	KindOther Kind = iota
	KindCreated
	KindDeletedSelf
	KindMovedFrom
	KindMovedTo
	KindMovedSelf
	KindQueueOverflow
	KindUnmounted
	KindIgnored
)

var kindNames = map[Kind]string{
	KindOther:         "other",
	KindCreated:       "created",
	KindDeletedSelf:   "deleted_self",
	KindMovedFrom:     "moved_from",
	KindMovedTo:       "moved_to",
	KindMovedSelf:     "moved_self",
	KindQueueOverflow: "queue_overflow",
	KindUnmounted:     "unmounted",
	KindIgnored:       "ignored",
}

func (kind Kind) String() string {
	if name, ok := kindNames[kind]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(kind))
}

// Event is one decoded inotify record.
type Event struct {
	Handle int
	Mask   uint32
	Cookie uint32
	Name   string
}

// Kind reports the event kind. The watch mask only asks for one event bit
// per record so the first match wins.
func (event Event) Kind() Kind {
	switch {
	case event.Mask&unix.IN_Q_OVERFLOW != 0:
		return KindQueueOverflow
	case event.Mask&unix.IN_IGNORED != 0:
		return KindIgnored
	case event.Mask&unix.IN_CREATE != 0:
		return KindCreated
	case event.Mask&unix.IN_MOVED_TO != 0:
		return KindMovedTo
	case event.Mask&unix.IN_MOVED_FROM != 0:
		return KindMovedFrom
	case event.Mask&unix.IN_DELETE_SELF != 0:
		return KindDeletedSelf
	case event.Mask&unix.IN_MOVE_SELF != 0:
		return KindMovedSelf
	case event.Mask&unix.IN_UNMOUNT != 0:
		return KindUnmounted
	default:
		return KindOther
	}
}

func (event Event) IsDir() bool {
	return event.Mask&unix.IN_ISDIR != 0
}

var maskNames = []struct {
	bit  uint32
	name string
}{
	{unix.IN_ACCESS, "IN_ACCESS"},
	{unix.IN_ATTRIB, "IN_ATTRIB"},
	{unix.IN_CLOSE_NOWRITE, "IN_CLOSE_NOWRITE"},
	{unix.IN_CLOSE_WRITE, "IN_CLOSE_WRITE"},
	{unix.IN_CREATE, "IN_CREATE"},
	{unix.IN_DELETE, "IN_DELETE"},
	{unix.IN_DELETE_SELF, "IN_DELETE_SELF"},
	{unix.IN_IGNORED, "IN_IGNORED"},
	{unix.IN_ISDIR, "IN_ISDIR"},
	{unix.IN_MODIFY, "IN_MODIFY"},
	{unix.IN_MOVE_SELF, "IN_MOVE_SELF"},
	{unix.IN_MOVED_FROM, "IN_MOVED_FROM"},
	{unix.IN_MOVED_TO, "IN_MOVED_TO"},
	{unix.IN_OPEN, "IN_OPEN"},
	{unix.IN_Q_OVERFLOW, "IN_Q_OVERFLOW"},
	{unix.IN_UNMOUNT, "IN_UNMOUNT"},
}

// MaskString renders the set bits of an inotify mask.
func MaskString(mask uint32) string {
	names := make([]string, 0, 2)
	for _, entry := range maskNames {
		if mask&entry.bit != 0 {
			names = append(names, entry.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("0x%x", mask)
	}
	return strings.Join(names, " ")
}

// decodeEvent decodes the record at the start of buf and returns its size.
func decodeEvent(buf []byte) (Event, int, error) {
	if len(buf) < recordHeaderSize {
		return Event{}, 0, fmt.Errorf("short record header: %d bytes", len(buf))
	}
	nameLength := int(binary.NativeEndian.Uint32(buf[12:16]))
	size := recordHeaderSize + nameLength
	if size > len(buf) {
		return Event{}, 0, fmt.Errorf("truncated record: need %d bytes, have %d", size, len(buf))
	}
	name := buf[recordHeaderSize:size]
	if index := bytes.IndexByte(name, 0); index >= 0 {
		name = name[:index]
	}
	event := Event{
		Handle: int(int32(binary.NativeEndian.Uint32(buf[0:4]))),
		Mask:   binary.NativeEndian.Uint32(buf[4:8]),
		Cookie: binary.NativeEndian.Uint32(buf[8:12]),
		Name:   string(name),
	}
	return event, size, nil
}
