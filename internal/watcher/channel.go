package watcher

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

const (
	watchMask = unix.IN_CREATE | unix.IN_MOVED_FROM | unix.IN_MOVED_TO | unix.IN_DELETE_SELF | unix.IN_ONLYDIR
	rootMask  = watchMask | unix.IN_MOVE_SELF
)

// Channel is the kernel notification source.
type Channel interface {
	// AddWatch registers path and returns its watch handle. Registering a
	// path that is already watched returns the existing handle.
	AddWatch(path string, mask uint32) (int, error)
	RemoveWatch(handle int) error
	// Read blocks until at least one record is available.
	Read(buf []byte) (int, error)
	// ReadTimeout waits up to timeout for records and returns 0 when
	// none arrived.
	ReadTimeout(buf []byte, timeout time.Duration) (int, error)
	// Fd returns a pollable descriptor, or -1 when the channel has none.
	Fd() int
	Close() error
}

// OpenFunc opens a fresh notification channel.
type OpenFunc func() (Channel, error)

type inotifyChannel struct {
	fd int
}

// OpenInotify opens an inotify instance.
func OpenInotify() (Channel, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, &WatchError{Op: "inotify_init1", Err: err}
	}
	return &inotifyChannel{fd: fd}, nil
}

func (channel *inotifyChannel) AddWatch(path string, mask uint32) (int, error) {
	handle, err := unix.InotifyAddWatch(channel.fd, path, mask)
	if err != nil {
		return -1, err
	}
	return handle, nil
}

func (channel *inotifyChannel) RemoveWatch(handle int) error {
	_, err := unix.InotifyRmWatch(channel.fd, uint32(handle))
	return err
}

func (channel *inotifyChannel) Read(buf []byte) (int, error) {
	for {
		n, err := unix.Read(channel.fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

func (channel *inotifyChannel) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	milliseconds := int(timeout.Milliseconds())
	if milliseconds < 1 {
		milliseconds = 1
	}
	fds := []unix.PollFd{{Fd: int32(channel.fd), Events: unix.POLLIN}}
	ready, err := unix.Poll(fds, milliseconds)
	if errors.Is(err, unix.EINTR) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if ready == 0 {
		return 0, nil
	}
	return channel.Read(buf)
}

func (channel *inotifyChannel) Fd() int {
	return channel.fd
}

func (channel *inotifyChannel) Close() error {
	if channel.fd < 0 {
		return nil
	}
	err := unix.Close(channel.fd)
	channel.fd = -1
	return err
}
