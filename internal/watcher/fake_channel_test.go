package watcher

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// fakeChannel hands out watch handles and replays queued records.
type fakeChannel struct {
	kernel        *fakeKernel
	handles       map[string]int
	reads         [][]byte
	supplementary [][]byte
	removed       []int
	timeouts      int
	closed        bool
}

// fakeKernel opens fake channels and keeps them for inspection.
type fakeKernel struct {
	opened     []*fakeChannel
	nextHandle int
	failRemove bool
}

func (kernel *fakeKernel) open() (Channel, error) {
	channel := &fakeChannel{kernel: kernel, handles: map[string]int{}}
	kernel.opened = append(kernel.opened, channel)
	return channel, nil
}

func (kernel *fakeKernel) current() *fakeChannel {
	return kernel.opened[len(kernel.opened)-1]
}

func (channel *fakeChannel) AddWatch(path string, mask uint32) (int, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return -1, unix.ENOENT
	}
	if !info.IsDir() && mask&unix.IN_ONLYDIR != 0 {
		return -1, unix.ENOTDIR
	}
	if handle, ok := channel.handles[path]; ok {
		return handle, nil
	}
	channel.kernel.nextHandle++
	channel.handles[path] = channel.kernel.nextHandle
	return channel.kernel.nextHandle, nil
}

func (channel *fakeChannel) RemoveWatch(handle int) error {
	if channel.kernel.failRemove {
		return unix.EINVAL
	}
	channel.removed = append(channel.removed, handle)
	return nil
}

func (channel *fakeChannel) Read(buf []byte) (int, error) {
	if len(channel.reads) == 0 {
		return 0, nil
	}
	next := channel.reads[0]
	channel.reads = channel.reads[1:]
	return copy(buf, next), nil
}

func (channel *fakeChannel) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	channel.timeouts++
	if len(channel.supplementary) == 0 {
		return 0, nil
	}
	next := channel.supplementary[0]
	channel.supplementary = channel.supplementary[1:]
	return copy(buf, next), nil
}

func (channel *fakeChannel) Fd() int {
	return -1
}

func (channel *fakeChannel) Close() error {
	if channel.closed {
		return errors.New("already closed")
	}
	channel.closed = true
	return nil
}

func (channel *fakeChannel) handle(t *testing.T, path string) int {
	t.Helper()
	handle, ok := channel.handles[path]
	if !ok {
		t.Fatalf("expected a watch on %s", path)
	}
	return handle
}

// queue adds one read made of records.
func (channel *fakeChannel) queue(records ...[]byte) {
	channel.reads = append(channel.reads, concat(records))
}

func (channel *fakeChannel) queueSupplementary(records ...[]byte) {
	channel.supplementary = append(channel.supplementary, concat(records))
}

func concat(records [][]byte) []byte {
	out := []byte{}
	for _, record := range records {
		out = append(out, record...)
	}
	return out
}

// encodeRecord lays out a record the way the kernel does, padding the name
// to a multiple of 16 bytes.
func encodeRecord(handle int, mask uint32, cookie uint32, name string) []byte {
	nameLength := 0
	if name != "" {
		nameLength = (len(name) + 1 + 15) / 16 * 16
	}
	record := make([]byte, recordHeaderSize+nameLength)
	binary.NativeEndian.PutUint32(record[0:4], uint32(int32(handle)))
	binary.NativeEndian.PutUint32(record[4:8], mask)
	binary.NativeEndian.PutUint32(record[8:12], cookie)
	binary.NativeEndian.PutUint32(record[12:16], uint32(nameLength))
	copy(record[recordHeaderSize:], name)
	return record
}

func newFakeEngine(t *testing.T, options Options) (*Engine, *fakeKernel) {
	t.Helper()
	kernel := &fakeKernel{}
	options.Open = kernel.open
	engine, err := New(options)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine, kernel
}

func mkdirAll(t *testing.T, paths ...string) {
	t.Helper()
	for _, path := range paths {
		if err := os.MkdirAll(path, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", path, err)
		}
	}
}

// walkDirs returns every directory below the roots, the way a fresh rebuild
// would see them.
func walkDirs(t *testing.T, roots ...string) []string {
	t.Helper()
	paths := []string{}
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("walk %s: %v", root, err)
		}
	}
	sort.Strings(paths)
	return paths
}

func assertPaths(t *testing.T, got, expected []string) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("expected paths %v, got %v", expected, got)
	}
	for index := range expected {
		if got[index] != expected[index] {
			t.Fatalf("expected paths %v, got %v", expected, got)
		}
	}
}
