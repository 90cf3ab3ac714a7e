// Package stress randomly creates, removes and renames directories under a
// tree so the watcher can be exercised against a moving target.
package stress

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dtreewatch/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Marker is embedded in every generated directory name. Only directories
// carrying it are removed or renamed.
const Marker = "--"

const (
	DefaultPathLimit = 60
	renameSuffix     = "__ren"
)

type Mode string

const (
	ModeCreate Mode = "create"
	ModeDelete Mode = "delete"
	ModeRename Mode = "rename"
	ModeMixed  Mode = "mixed"
)

// ParseMode accepts the long mode names and the single letters c, d, m
// and x.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "c", "create":
		return ModeCreate, nil
	case "d", "delete":
		return ModeDelete, nil
	case "m", "rename":
		return ModeRename, nil
	case "x", "mixed", "":
		return ModeMixed, nil
	default:
		return "", fmt.Errorf("unknown mode %q", value)
	}
}

type Options struct {
	Root string
	Mode Mode
	// MaxOps stops the run after that many operations; 0 means unlimited.
	MaxOps   int
	Delay    time.Duration
	StopFile string
	Seed     uint64
	// Tag prefixes generated names. A random tag is chosen when empty.
	Tag string
	// PathLimit bounds generated paths, measured relative to Root.
	PathLimit int
	Logger    *logging.Logger
}

type Stats struct {
	Ops     int `json:"ops"`
	Created int `json:"created"`
	Removed int `json:"removed"`
	Renamed int `json:"renamed"`
	Skipped int `json:"skipped"`
}

// Generator performs the random operations. It is not safe for concurrent
// use.
type Generator struct {
	root      string
	mode      Mode
	maxOps    int
	stopFile  string
	tag       string
	pathLimit int
	limiter   *rate.Limiter
	random    *rand.Rand
	logger    *logging.Logger
	stats     Stats
}

func New(options Options) (*Generator, error) {
	root := strings.TrimSpace(options.Root)
	if root == "" {
		return nil, errors.New("root directory is required")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	if options.MaxOps < 0 {
		return nil, fmt.Errorf("max operations must be >= 0, got %d", options.MaxOps)
	}
	if options.Delay < 0 {
		return nil, fmt.Errorf("delay must be >= 0, got %s", options.Delay)
	}

	mode := options.Mode
	if mode == "" {
		mode = ModeMixed
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	tag := options.Tag
	if tag == "" {
		tag = strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	}
	if strings.Contains(tag, Marker) || strings.ContainsRune(tag, filepath.Separator) {
		return nil, fmt.Errorf("invalid tag %q", tag)
	}
	pathLimit := options.PathLimit
	if pathLimit <= 0 {
		pathLimit = DefaultPathLimit
	}
	limit := rate.Inf
	if options.Delay > 0 {
		limit = rate.Every(options.Delay)
	}
	stopFile := options.StopFile
	if stopFile != "" {
		if stopFile, err = filepath.Abs(stopFile); err != nil {
			return nil, err
		}
	}

	return &Generator{
		root:      root,
		mode:      mode,
		maxOps:    options.MaxOps,
		stopFile:  stopFile,
		tag:       tag,
		pathLimit: pathLimit,
		limiter:   rate.NewLimiter(limit, 1),
		random:    rand.New(rand.NewPCG(options.Seed, options.Seed^0x9e3779b97f4a7c15)),
		logger:    options.Logger,
	}, nil
}

func (g *Generator) Tag() string {
	return g.tag
}

func (g *Generator) Stats() Stats {
	return g.stats
}

// Run performs operations until MaxOps is reached, the stop file appears
// or ctx is cancelled. Reaching a stop condition is not an error.
func (g *Generator) Run(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if g.stopFile != "" {
		stop, err := watchStopFile(ctx, g.stopFile, cancel, g.logger)
		if err != nil {
			return g.stats, err
		}
		defer stop()
	}

	for {
		if g.maxOps > 0 && g.stats.Ops >= g.maxOps {
			return g.stats, nil
		}
		if g.stopFileExists() {
			g.logger.Info("stop file found", map[string]string{"path": g.stopFile})
			return g.stats, nil
		}
		if err := g.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return g.stats, nil
			}
			return g.stats, err
		}
		if ctx.Err() != nil {
			return g.stats, nil
		}
		if err := g.Step(); err != nil {
			return g.stats, err
		}
	}
}

func (g *Generator) stopFileExists() bool {
	if g.stopFile == "" {
		return false
	}
	_, err := os.Lstat(g.stopFile)
	return err == nil
}

// Step performs one operation. A skipped attempt does not count towards
// MaxOps.
func (g *Generator) Step() error {
	dirs, err := g.listDirectories()
	if err != nil {
		return err
	}

	mode := g.mode
	if mode == ModeMixed {
		mode = []Mode{ModeCreate, ModeDelete, ModeRename}[g.random.IntN(3)]
	}
	var performed bool
	switch mode {
	case ModeCreate:
		performed = g.create(dirs)
	case ModeDelete:
		performed = g.remove(dirs)
	case ModeRename:
		performed = g.rename(dirs)
	}
	if !performed {
		g.stats.Skipped++
		return nil
	}
	g.stats.Ops++
	return nil
}

// listDirectories walks the tree without following symbolic links. Entries
// that vanish during the walk are skipped.
func (g *Generator) listDirectories() ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(g.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == g.root {
				return err
			}
			return nil
		}
		if entry.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", g.root, err)
	}
	return dirs, nil
}

func (g *Generator) relative(path string) string {
	rel, err := filepath.Rel(g.root, path)
	if err != nil || rel == "." {
		return ""
	}
	return rel
}

func (g *Generator) tooLong(path string) bool {
	return len(g.relative(path)) > g.pathLimit
}

func (g *Generator) create(dirs []string) bool {
	parent := dirs[g.random.IntN(len(dirs))]
	opNumber := strconv.Itoa(g.stats.Ops)
	path := filepath.Join(parent, g.tag+Marker+"cr_"+opNumber)
	if g.tooLong(path) {
		return false
	}
	depth := strings.Count(g.relative(path), string(filepath.Separator))
	if depth > 1 && g.random.IntN(depth) > 0 {
		return false
	}

	g.mkdir(path)
	for level := 1; g.random.IntN(3) < 2; level++ {
		child := filepath.Join(path, g.tag+Marker+"scr"+strconv.Itoa(level)+"_"+opNumber)
		if g.tooLong(child) {
			break
		}
		g.mkdir(child)
		path = child
	}
	return true
}

func (g *Generator) mkdir(path string) {
	if err := os.Mkdir(path, 0o700); err != nil {
		g.logger.Debug("mkdir failed", map[string]string{"path": path, "error": err.Error()})
		return
	}
	g.stats.Created++
	g.logger.Info("mkdir", map[string]string{"path": path})
}

// remove deletes a random generated directory and then its generated
// ancestors while they are empty.
func (g *Generator) remove(dirs []string) bool {
	path := dirs[g.random.IntN(len(dirs))]
	for strings.Contains(g.relative(path), Marker) {
		if err := os.Remove(path); err != nil {
			break
		}
		g.stats.Removed++
		g.logger.Info("rmdir", map[string]string{"path": path})
		path = filepath.Dir(path)
	}
	return true
}

func (g *Generator) rename(dirs []string) bool {
	if len(dirs) < 3 {
		return false
	}
	source := dirs[g.random.IntN(len(dirs))]
	if !strings.Contains(g.relative(source), Marker) {
		return true
	}
	base := filepath.Base(source)
	if index := strings.Index(base, renameSuffix); index >= 0 {
		base = base[:index]
	}
	target := filepath.Join(
		dirs[g.random.IntN(len(dirs))],
		fmt.Sprintf("%s%s%04d-%s", base, renameSuffix, g.stats.Ops, g.tag),
	)
	if g.tooLong(target) {
		return true
	}
	if err := os.Rename(source, target); err != nil {
		g.logger.Debug("rename failed", map[string]string{
			"from":  source,
			"to":    target,
			"error": err.Error(),
		})
		return true
	}
	g.stats.Renamed++
	g.logger.Info("rename", map[string]string{"from": source, "to": target})
	return true
}
