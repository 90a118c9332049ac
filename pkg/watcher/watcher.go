package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/conflictmapper/pkg/events"
)

// DefaultDebounce is how long the watcher waits for changes to settle
const DefaultDebounce = 2 * time.Second

// Invalidator drops cached results that may no longer match the plugins on disk
type Invalidator interface {
	InvalidateCache(ctx context.Context) error
}

// Options configures a Watcher
type Options struct {
	Debounce time.Duration
	Events   *events.Manager // receives plugins_changed; optional
	Log      *logrus.Logger

	// OnChange runs after the cache was invalidated, e.g. to trigger a rescan
	OnChange func(ctx context.Context, paths []string)
}

// Watcher follows the plugins root recursively and invalidates the
// snapshot cache once a burst of filesystem changes has settled.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	target   Invalidator
	debounce time.Duration
	events   *events.Manager
	onChange func(ctx context.Context, paths []string)
	log      *logrus.Logger

	closeOnce sync.Once
}

// New creates a watcher over root. Call Run to start processing events.
func New(root string, target Invalidator, opts Options) (*Watcher, error) {
	if opts.Log == nil {
		opts.Log = logrus.New()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		root:     root,
		fsw:      fsw,
		target:   target,
		debounce: opts.Debounce,
		events:   opts.Events,
		onChange: opts.OnChange,
		log:      opts.Log,
	}

	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", root, err)
	}
	return w, nil
}

// addTree recursively adds all directories under root
func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Run processes filesystem events until ctx is cancelled or the watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	w.log.WithField("root", w.root).Info("Watching plugins directory")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod {
				continue
			}

			// Also watch new directories
			if event.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.log.WithError(err).Warnf("Failed to watch new directory %s", event.Name)
					}
				}
			}

			pending[event.Name] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("Watcher error")

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = make(map[string]bool)

			w.flush(ctx, paths)
		}
	}
}

func (w *Watcher) flush(ctx context.Context, paths []string) {
	log := w.log.WithFields(logrus.Fields{
		"changes": len(paths),
		"plugins": strings.Join(w.pluginsOf(paths), ","),
	})

	if err := w.target.InvalidateCache(ctx); err != nil {
		log.WithError(err).Warn("Failed to invalidate cached snapshot")
	} else {
		log.Info("Plugins changed, cached snapshot invalidated")
	}

	if w.events != nil {
		w.events.Emit(ctx, events.EventPluginsChanged, map[string]any{
			"paths":   paths,
			"plugins": w.pluginsOf(paths),
		})
	}
	if w.onChange != nil {
		w.onChange(ctx, paths)
	}
}

// pluginsOf maps changed paths to the top-level plugin directories they live in
func (w *Watcher) pluginsOf(paths []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range paths {
		rel, err := filepath.Rel(w.root, p)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		top := strings.Split(rel, string(filepath.Separator))[0]
		if !seen[top] {
			seen[top] = true
			out = append(out, top)
		}
	}
	sort.Strings(out)
	return out
}

// Close stops the underlying fsnotify watcher
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}
