package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultBufferSize = 1000

type Logger struct {
	buffer      *LogBuffer
	output      *log.Logger
	minLevel    *atomic.Value
	baseContext map[string]string
	hub         *LogHub
	sinks       *sinkSet
}

// sinkSet holds extra writers (log files) that receive every entry
// regardless of the minimum level.
type sinkSet struct {
	mu      sync.Mutex
	writers []*log.Logger
	closers []io.Closer
}

func NewLogger(buffer *LogBuffer, minLevel Level) *Logger {
	return NewLoggerWithOutput(buffer, minLevel, os.Stderr)
}

func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	if output == nil {
		output = io.Discard
	}
	level := &atomic.Value{}
	level.Store(normalizeLevel(minLevel))
	return &Logger{
		buffer:   buffer,
		output:   log.New(output, "", log.LstdFlags),
		minLevel: level,
		hub:      NewLogHub(),
		sinks:    &sinkSet{},
	}
}

func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.buffer
}

func (l *Logger) Subscribe() (<-chan LogEntry, func()) {
	if l == nil || l.hub == nil {
		return nil, func() {}
	}
	return l.hub.Subscribe(0)
}

func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return l
	}
	return &Logger{
		buffer:      l.buffer,
		output:      l.output,
		minLevel:    l.minLevel,
		baseContext: cloneFields(l.baseContext, fields),
		hub:         l.hub,
		sinks:       l.sinks,
	}
}

// OpenFile appends every subsequent entry to path. Entries reach the file
// whatever the minimum level is.
func (l *Logger) OpenFile(path string) error {
	if l == nil {
		return nil
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	l.sinks.mu.Lock()
	l.sinks.writers = append(l.sinks.writers, log.New(file, "", log.LstdFlags|log.Lmicroseconds))
	l.sinks.closers = append(l.sinks.closers, file)
	l.sinks.mu.Unlock()
	return nil
}

// Close releases log files opened with OpenFile and the subscriber hub.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.sinks.mu.Lock()
	closers := l.sinks.closers
	l.sinks.writers = nil
	l.sinks.closers = nil
	l.sinks.mu.Unlock()

	var firstErr error
	for _, closer := range closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if l.hub != nil {
		l.hub.Close()
	}
	return firstErr
}

func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.minLevel.Store(normalizeLevel(level))
}

func (l *Logger) Level() Level {
	if l == nil {
		return LevelInfo
	}
	return l.minLevel.Load().(Level)
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return levelRank(level) >= levelRank(l.Level())
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if l == nil {
		return
	}
	enabled := l.Enabled(level)
	l.sinks.mu.Lock()
	hasSinks := len(l.sinks.writers) > 0
	l.sinks.mu.Unlock()
	if !enabled && !hasSinks {
		return
	}

	context := cloneFields(l.baseContext, fields)
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   context,
	}
	if len(entry.Context) == 0 {
		entry.Context = nil
	}
	line := FormatEntry(entry)

	if hasSinks {
		l.sinks.mu.Lock()
		for _, writer := range l.sinks.writers {
			writer.Print(line)
		}
		l.sinks.mu.Unlock()
	}
	if !enabled {
		return
	}
	if l.buffer != nil {
		l.buffer.Add(entry)
	}
	if l.hub != nil {
		l.hub.Broadcast(entry)
	}
	if l.output != nil {
		l.output.Print(line)
	}
}

func normalizeLevel(level Level) Level {
	switch level {
	case LevelDebug, LevelInfo, LevelWarning, LevelError:
		return level
	default:
		return LevelInfo
	}
}

func levelRank(level Level) int {
	switch level {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarning:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

func ParseLevel(value string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warning", "warn":
		return LevelWarning, true
	case "error":
		return LevelError, true
	default:
		return "", false
	}
}

func cloneFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	combined := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		combined[key] = value
	}
	for key, value := range extra {
		combined[key] = value
	}
	return combined
}

// FormatEntry renders an entry as level=... msg="..." followed by the
// context fields sorted by key.
func FormatEntry(entry LogEntry) string {
	builder := strings.Builder{}
	builder.WriteString("level=")
	builder.WriteString(string(entry.Level))
	builder.WriteString(" msg=")
	builder.WriteString(strconv.Quote(entry.Message))

	if len(entry.Context) == 0 {
		return builder.String()
	}

	keys := make([]string, 0, len(entry.Context))
	for key := range entry.Context {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		builder.WriteString(" ")
		builder.WriteString(fmt.Sprintf("%s=%s", key, strconv.Quote(entry.Context[key])))
	}
	return builder.String()
}
