package watcher

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dtreewatch/internal/logging"
	"dtreewatch/internal/metrics"

	"golang.org/x/sys/unix"
)

const DefaultRenameWait = 2 * time.Millisecond

type Options struct {
	Roots   []string
	Open    OpenFunc
	Logger  *logging.Logger
	Metrics *metrics.Registry
	// ReadBufferSize bounds the primary read. Supplementary reads may use
	// the rest of the buffer.
	ReadBufferSize int
	RenameWait     time.Duration
	CheckCache     bool
	DumpCache      bool
	// AbortStopFile switches cache misses from rebuilding to aborting. The
	// file is created before the engine stops.
	AbortStopFile string
	Verbosity     int
}

// Stats is a point-in-time summary of the engine.
type Stats struct {
	Entries     int
	ActiveRoots int
	Reads       int
	Rebuilds    int
	Overflows   int
}

type request struct {
	fn   func(*Engine) error
	done chan error
}

// Engine owns the watch cache, the root set and the notification channel.
type Engine struct {
	open     OpenFunc
	channel  Channel
	cache    *Cache
	roots    *RootSet
	logger   *logging.Logger
	metrics  *metrics.Registry
	buf      []byte
	readSize int

	renameWait time.Duration
	checkCache bool
	dumpCache  bool
	stopFile   string
	verbosity  int

	readCount     int
	rebuildCount  int
	overflowCount int

	wakeFd   int
	requests chan request
	done     chan struct{}
	stopped  bool
	failure  error
}

// New validates the roots, opens the notification channel and builds the
// initial cache.
func New(options Options) (*Engine, error) {
	roots, err := NewRootSet(options.Roots)
	if err != nil {
		return nil, err
	}
	if options.Open == nil {
		options.Open = OpenInotify
	}
	readSize := options.ReadBufferSize
	if readSize == 0 {
		readSize = DefaultReadBufferSize
	}
	if readSize < MaxRecordSize {
		return nil, fmt.Errorf("read buffer size %d is smaller than one record (%d)", readSize, MaxRecordSize)
	}
	renameWait := options.RenameWait
	if renameWait <= 0 {
		renameWait = DefaultRenameWait
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, &WatchError{Op: "eventfd", Err: err}
	}

	engine := &Engine{
		open:       options.Open,
		cache:      NewCache(),
		roots:      roots,
		logger:     options.Logger,
		metrics:    options.Metrics,
		buf:        make([]byte, max(readSize, DefaultReadBufferSize)),
		readSize:   readSize,
		renameWait: renameWait,
		checkCache: options.CheckCache,
		dumpCache:  options.DumpCache,
		stopFile:   options.AbortStopFile,
		verbosity:  options.Verbosity,
		wakeFd:     wakeFd,
		requests:   make(chan request, 16),
		done:       make(chan struct{}),
	}
	if err := engine.reinitialize(reasonInitial); err != nil {
		engine.Close()
		return nil, err
	}
	return engine, nil
}

// Run processes events and requests until ctx is cancelled, Stop is called
// from a request, every root is gone (ErrNoRoots) or a fatal error occurs.
func (engine *Engine) Run(ctx context.Context) error {
	defer close(engine.done)
	stopWake := context.AfterFunc(ctx, engine.wake)
	defer stopWake()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fds := []unix.PollFd{
			{Fd: int32(engine.channel.Fd()), Events: unix.POLLIN},
			{Fd: int32(engine.wakeFd), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return &WatchError{Op: "poll", Err: err}
		}

		if fds[1].Revents&unix.POLLIN != 0 {
			engine.drainWake()
			engine.serveRequests()
			if engine.failure != nil {
				return engine.failure
			}
			if engine.stopped {
				return nil
			}
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return &WatchError{Op: "poll", Err: errors.New("notification channel error")}
		}
		if fds[0].Revents&unix.POLLIN != 0 {
			if err := engine.ProcessEvents(); err != nil {
				return err
			}
		}
	}
}

// Do runs fn on the engine goroutine and returns its error.
func (engine *Engine) Do(ctx context.Context, fn func(*Engine) error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case engine.requests <- req:
	case <-engine.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	engine.wake()
	select {
	case err := <-req.done:
		return err
	case <-engine.done:
		select {
		case err := <-req.done:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (engine *Engine) serveRequests() {
	for {
		select {
		case req := <-engine.requests:
			req.done <- req.fn(engine)
			if engine.failure != nil || engine.stopped {
				return
			}
		default:
			return
		}
	}
}

func (engine *Engine) wake() {
	var value [8]byte
	binary.NativeEndian.PutUint64(value[:], 1)
	_, _ = unix.Write(engine.wakeFd, value[:])
}

func (engine *Engine) drainWake() {
	var value [8]byte
	_, _ = unix.Read(engine.wakeFd, value[:])
}

// Stop makes Run return nil once the current request completes.
func (engine *Engine) Stop() {
	engine.stopped = true
}

// fail records a fatal error raised while serving a request.
func (engine *Engine) fail(err error) error {
	if err != nil && engine.failure == nil {
		engine.failure = err
	}
	return err
}

// Close releases the notification channel and the wake descriptor.
func (engine *Engine) Close() error {
	var err error
	if engine.channel != nil {
		err = engine.channel.Close()
		engine.channel = nil
	}
	if engine.wakeFd >= 0 {
		_ = unix.Close(engine.wakeFd)
		engine.wakeFd = -1
	}
	return err
}

// Done is closed when Run returns.
func (engine *Engine) Done() <-chan struct{} {
	return engine.done
}

func (engine *Engine) Cache() *Cache {
	return engine.cache
}

func (engine *Engine) Roots() *RootSet {
	return engine.roots
}

// Paths returns the sorted cached paths.
func (engine *Engine) Paths() []string {
	return engine.cache.Paths()
}

func (engine *Engine) Stats() Stats {
	return Stats{
		Entries:     engine.cache.Len(),
		ActiveRoots: engine.roots.Remaining(),
		Reads:       engine.readCount,
		Rebuilds:    engine.rebuildCount,
		Overflows:   engine.overflowCount,
	}
}

func (engine *Engine) CheckCacheEnabled() bool {
	return engine.checkCache
}

func (engine *Engine) SetCheckCache(enabled bool) {
	engine.checkCache = enabled
}

func (engine *Engine) DumpCacheEnabled() bool {
	return engine.dumpCache
}

func (engine *Engine) SetDumpCache(enabled bool) {
	engine.dumpCache = enabled
}

func (engine *Engine) Verbosity() int {
	return engine.verbosity
}

// SetVerbosity changes the minimum level written to the console.
func (engine *Engine) SetVerbosity(verbosity int) {
	engine.verbosity = verbosity
	if engine.logger != nil {
		engine.logger.SetLevel(logging.LevelForVerbosity(verbosity))
	}
}

func (engine *Engine) updateGauges() {
	engine.metrics.SetCacheEntries(engine.cache.Len())
	engine.metrics.SetActiveRoots(engine.roots.Remaining())
}

func itoa(value int) string {
	return strconv.Itoa(value)
}
