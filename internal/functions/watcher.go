package functions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
)

const (
	defaultDebounceDuration = 100 * time.Millisecond
)

// ChangeFunc is called with the directory of a function whose files changed.
type ChangeFunc func(dir string)

// SourceWatcher watches the function directories under a script root and
// reports which function changed.
type SourceWatcher struct {
	root             string
	watch            []glob.Glob
	ignore           []glob.Glob
	onChange         ChangeFunc
	watcher          *fsnotify.Watcher
	debounceDuration time.Duration
	debounceTimers   map[string]*time.Timer
	mu               sync.Mutex
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// NewSourceWatcher creates a watcher for root. Paths are matched relative
// to root; a path must match a watch pattern and no ignore pattern.
func NewSourceWatcher(root string, watch, ignore []string, onChange ChangeFunc) (*SourceWatcher, error) {
	watchGlobs, err := compileGlobs(watch)
	if err != nil {
		return nil, err
	}
	ignoreGlobs, err := compileGlobs(ignore)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &SourceWatcher{
		root:             root,
		watch:            watchGlobs,
		ignore:           ignoreGlobs,
		onChange:         onChange,
		watcher:          watcher,
		debounceDuration: defaultDebounceDuration,
		debounceTimers:   make(map[string]*time.Timer),
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// SetDebounceDuration sets the debounce duration for file change events.
func (sw *SourceWatcher) SetDebounceDuration(d time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.debounceDuration = d
}

// Start watches root and every function directory below it.
func (sw *SourceWatcher) Start() error {
	if err := sw.watcher.Add(sw.root); err != nil {
		return fmt.Errorf("watching %s: %w", sw.root, err)
	}

	entries, err := os.ReadDir(sw.root)
	if err != nil {
		return fmt.Errorf("reading script root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := sw.addDir(filepath.Join(sw.root, entry.Name())); err != nil {
			log.Warn().Err(err).Str("function", entry.Name()).Msg("Failed to watch function directory")
		}
	}

	sw.wg.Add(1)
	go sw.eventLoop()

	log.Debug().Str("path", sw.root).Msg("Watching script root")
	return nil
}

// Stop stops the watcher and cleans up resources.
func (sw *SourceWatcher) Stop() error {
	sw.cancel()
	sw.wg.Wait()

	sw.mu.Lock()
	for _, timer := range sw.debounceTimers {
		timer.Stop()
	}
	sw.mu.Unlock()

	return sw.watcher.Close()
}

func (sw *SourceWatcher) addDir(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return sw.watcher.Add(path)
	})
}

func (sw *SourceWatcher) eventLoop() {
	defer sw.wg.Done()

	for {
		select {
		case <-sw.ctx.Done():
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handleEvent(event)

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("File watcher error")
		}
	}
}

func (sw *SourceWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := sw.addDir(event.Name); err != nil {
				log.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch new directory")
			}
		}
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	dir, ok := sw.functionDir(event.Name)
	if !ok {
		return
	}

	rel, err := filepath.Rel(sw.root, event.Name)
	if err != nil {
		return
	}
	if !sw.Matches(filepath.ToSlash(rel)) {
		return
	}

	log.Debug().
		Str("file", event.Name).
		Str("function", filepath.Base(dir)).
		Msg("Function source changed")

	sw.debounce(dir)
}

// functionDir returns the top-level directory under root that holds path.
func (sw *SourceWatcher) functionDir(path string) (string, bool) {
	rel, err := filepath.Rel(sw.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}

	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	if first == rel {
		// A file directly under root belongs to no function.
		return "", false
	}
	return filepath.Join(sw.root, first), true
}

// Matches reports whether a path relative to the script root is watched.
func (sw *SourceWatcher) Matches(rel string) bool {
	for _, g := range sw.ignore {
		if g.Match(rel) {
			return false
		}
	}
	if len(sw.watch) == 0 {
		return true
	}
	for _, g := range sw.watch {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (sw *SourceWatcher) debounce(dir string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if timer, exists := sw.debounceTimers[dir]; exists {
		timer.Stop()
	}

	sw.debounceTimers[dir] = time.AfterFunc(sw.debounceDuration, func() {
		if sw.ctx.Err() != nil {
			return
		}
		sw.onChange(dir)
	})
}
