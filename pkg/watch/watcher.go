// Package watch re-runs work when files under a workspace change.
//
// Events are filtered through doublestar include and ignore globs and
// coalesced over a debounce window, so an editor's write-rename dance or a
// branch switch produces a single callback with every changed path.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 300 * time.Millisecond

// DefaultInclude selects the files that can change an audit result.
var DefaultInclude = []string{
	"**/*.{js,jsx,mjs,cjs,ts,tsx,mts,cts}",
	"**/package.json",
}

// builtinIgnore is always applied on top of Config.Ignore.
var builtinIgnore = []string{
	"**/.git/**",
	"**/*.swp",
	"**/*~",
	"**/.DS_Store",
}

// Sentinel errors.
var (
	// ErrInvalidPattern indicates a malformed include or ignore glob.
	ErrInvalidPattern = errors.New("invalid watch pattern")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("watcher already running")
	// ErrWatcherClosed indicates fsnotify closed its channels underneath Run.
	ErrWatcherClosed = errors.New("fsnotify watcher closed")
)

// ChangeFunc receives the sorted, slash-separated paths that changed,
// relative to the watched root.
type ChangeFunc func(ctx context.Context, changed []string) error

// Config configures a Watcher.
type Config struct {
	// Root is the directory tree to watch. Empty means the working directory.
	Root string
	// Include selects files that trigger OnChange. Empty matches every file.
	Include []string
	// Ignore excludes paths from watching and from triggering.
	Ignore []string
	// Debounce is the quiet period before OnChange fires.
	Debounce time.Duration
	// OnChange runs on the watcher goroutine; events arriving meanwhile are
	// batched into the next call.
	OnChange ChangeFunc
	Logger   *slog.Logger
}

// Watcher delivers debounced change notifications for one directory tree.
type Watcher struct {
	root     string
	include  []string
	ignore   []string
	debounce time.Duration
	onChange ChangeFunc
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	started  atomic.Bool
}

// New validates cfg and registers every non-ignored directory under the
// root with fsnotify.
func New(cfg Config) (*Watcher, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}

	if err := validate(cfg.Include); err != nil {
		return nil, err
	}

	if err := validate(cfg.Ignore); err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     absRoot,
		include:  cfg.Include,
		ignore:   append(slices.Clone(builtinIgnore), cfg.Ignore...),
		debounce: cfg.Debounce,
		onChange: cfg.OnChange,
		logger:   cfg.Logger,
	}

	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}

	if w.logger == nil {
		w.logger = slog.Default()
	}

	w.fsw, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if _, err := w.addTree(absRoot); err != nil {
		_ = w.fsw.Close()

		return nil, err
	}

	return w, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string {
	return w.root
}

// Run dispatches callbacks until ctx is canceled, then releases the
// fsnotify handle. It returns nil on cancellation. Run may be called once.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.WarnContext(ctx, "close fsnotify watcher", "error", err)
		}
	}()

	var (
		pending = make(map[string]struct{})
		timer   *time.Timer
		fire    <-chan time.Time
	)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return ErrWatcherClosed
			}

			changed := w.observe(ctx, evt)
			if len(changed) == 0 {
				continue
			}

			for _, rel := range changed {
				pending[rel] = struct{}{}
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}

			fire = timer.C

		case <-fire:
			fire = nil

			changed := slices.Sorted(maps.Keys(pending))
			clear(pending)

			w.dispatch(ctx, changed)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrWatcherClosed
			}

			if fatal(err) {
				return fmt.Errorf("fsnotify: %w", err)
			}

			w.logger.WarnContext(ctx, "fsnotify error", "error", err)
		}
	}
}

// observe extends the watch to new directories and returns the paths evt
// makes relevant. A directory that appears with files already inside it
// reports those files, since their own events were emitted before the
// directory was watched.
func (w *Watcher) observe(ctx context.Context, evt fsnotify.Event) []string {
	if evt.Op == fsnotify.Chmod {
		return nil
	}

	rel, err := filepath.Rel(w.root, evt.Name)
	if err != nil {
		return nil
	}

	rel = filepath.ToSlash(rel)

	if w.ignored(rel) {
		return nil
	}

	if evt.Has(fsnotify.Create) {
		if info, statErr := os.Stat(evt.Name); statErr == nil && info.IsDir() {
			found, addErr := w.addTree(evt.Name)
			if addErr != nil {
				w.logger.WarnContext(ctx, "watch new directory", "path", rel, "error", addErr)
			}

			return found
		}
	}

	if !w.included(rel) {
		return nil
	}

	return []string{rel}
}

func (w *Watcher) dispatch(ctx context.Context, changed []string) {
	if ctx.Err() != nil || w.onChange == nil || len(changed) == 0 {
		return
	}

	w.logger.DebugContext(ctx, "files changed", "count", len(changed), "first", changed[0])

	if err := w.onChange(ctx, changed); err != nil {
		w.logger.ErrorContext(ctx, "change handler failed", "error", err)
	}
}

// addTree registers dir and every non-ignored directory below it and
// returns the included files it passed. Unreadable entries are skipped.
func (w *Watcher) addTree(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Debug("skip unreadable path", "path", path, "error", walkErr)

			return nil
		}

		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return filepath.SkipDir
		}

		rel = filepath.ToSlash(rel)

		if !d.IsDir() {
			if !w.ignored(rel) && w.included(rel) {
				files = append(files, rel)
			}

			return nil
		}

		if rel != "." && (w.ignored(rel) || w.ignored(rel+"/")) {
			return filepath.SkipDir
		}

		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch %s: %w", path, addErr)
		}

		return nil
	})
	if err != nil {
		return files, fmt.Errorf("register directories: %w", err)
	}

	return files, nil
}

func (w *Watcher) ignored(rel string) bool {
	return matchAny(w.ignore, rel)
}

func (w *Watcher) included(rel string) bool {
	return len(w.include) == 0 || matchAny(w.include, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if doublestar.MatchUnvalidated(pattern, rel) {
			return true
		}
	}

	return false
}

func validate(patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
		}
	}

	return nil
}

// fatal reports resource exhaustion, after which the watcher misses events.
func fatal(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EMFILE)
}
