// Package watch reports batches of file changes under a set of paths.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"avatx/internal/logging"
)

// DefaultDelay is how long the watcher waits for changes to settle.
const DefaultDelay = 300 * time.Millisecond

// Watcher collects changes to watched files, and to any file below watched
// directories, and hands them over once no change arrived for the delay.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce func(func())
	skip     map[string]bool
	log      zerolog.Logger

	mu      sync.Mutex
	files   map[string]bool
	dirs    map[string]bool
	pending map[string]bool
}

// New returns a Watcher. Directories named in skipDirs are not descended into.
func New(delay time.Duration, skipDirs []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	w := &Watcher{
		fs:       fsw,
		debounce: debounce.New(delay),
		skip:     map[string]bool{},
		log:      logging.For("watch"),
		files:    map[string]bool{},
		dirs:     map[string]bool{},
		pending:  map[string]bool{},
	}
	for _, d := range skipDirs {
		w.skip[d] = true
	}
	return w, nil
}

// Add watches path. A file is watched through its directory so that editors
// replacing it are noticed; a directory is watched recursively.
func (w *Watcher) Add(path string) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		w.mu.Lock()
		w.files[path] = true
		w.mu.Unlock()
		return w.watchDir(filepath.Dir(path))
	}
	return w.addTree(path)
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skipped(d.Name()) {
			return filepath.SkipDir
		}
		w.mu.Lock()
		w.dirs[path] = true
		w.mu.Unlock()
		return w.watchDir(path)
	})
}

func (w *Watcher) skipped(name string) bool {
	return strings.HasPrefix(name, ".") || w.skip[name]
}

func (w *Watcher) watchDir(dir string) error {
	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	return nil
}

// Run delivers batches of changed paths to fn until ctx ends, then closes
// the watcher. fn is never called concurrently with itself.
func (w *Watcher) Run(ctx context.Context, fn func(changed []string)) error {
	defer w.fs.Close()

	var fnMu sync.Mutex
	flush := func() {
		w.mu.Lock()
		changed := make([]string, 0, len(w.pending))
		for p := range w.pending {
			changed = append(changed, p)
		}
		w.pending = map[string]bool{}
		w.mu.Unlock()
		if len(changed) == 0 || ctx.Err() != nil {
			return
		}
		sort.Strings(changed)

		fnMu.Lock()
		defer fnMu.Unlock()
		fn(changed)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if w.handle(event) {
				w.debounce(flush)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// handle records event and reports whether it concerns a watched path.
func (w *Watcher) handle(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}
	path := filepath.Clean(event.Name)

	if event.Has(fsnotify.Create) && w.under(filepath.Dir(path)) {
		if info, err := os.Stat(path); err == nil && info.IsDir() && !w.skipped(info.Name()) {
			if err := w.addTree(path); err != nil {
				w.log.Debug().Err(err).Str("dir", path).Msg("cannot watch new directory")
			}
			return false
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.files[path] && !w.dirs[filepath.Dir(path)] {
		return false
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		delete(w.dirs, path)
	}
	w.pending[path] = true
	w.log.Debug().Str("path", path).Str("op", event.Op.String()).Msg("change")
	return true
}

func (w *Watcher) under(dir string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirs[dir]
}
