package scripts

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zond/juicevox"
)

const (
	debounce = 200 * time.Millisecond
)

// Watcher invalidates cached behaviors of a Store when their files change.
type Watcher struct {
	store     *Store
	logger    *slog.Logger
	fsWatcher *fsnotify.Watcher
	onChange  func(name string)
}

// NewWatcher watches the store directory and every behavior directory in it.
// onChange, if not nil, is called with the behavior name after the cache was
// invalidated.
func NewWatcher(store *Store, logger *slog.Logger, onChange func(name string)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, juicevox.WithStack(err)
	}
	w := &Watcher{
		store:     store,
		logger:    logger,
		fsWatcher: fsWatcher,
		onChange:  onChange,
	}
	if err := w.add(store.Dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	names, err := store.Names()
	if err != nil {
		fsWatcher.Close()
		return nil, err
	}
	for _, name := range names {
		if err := w.add(filepath.Join(store.Dir, name)); err != nil {
			fsWatcher.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) add(path string) error {
	if err := w.fsWatcher.Add(path); err != nil {
		return juicevox.WithStack(err)
	}
	return nil
}

// behavior returns the behavior name path belongs to, if any.
func (w *Watcher) behavior(path string) (string, bool) {
	rel, err := filepath.Rel(w.store.Dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	name := strings.Split(filepath.ToSlash(rel), "/")[0]
	return name, ValidName(name)
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsWatcher.Close()
	pending := map[string]bool{}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			name, ok := w.behavior(ev.Name)
			if !ok {
				continue
			}
			if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == filepath.Clean(w.store.Dir) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := w.add(ev.Name); err != nil {
						w.logger.Warn("watching new behavior", "behavior", name, "err", err)
					}
				}
			}
			pending[name] = true
			timer.Reset(debounce)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("script watcher", "err", err)
		case <-timer.C:
			for name := range pending {
				w.store.Invalidate(name)
				w.logger.Info("behavior changed", "behavior", name)
				if w.onChange != nil {
					w.onChange(name)
				}
			}
			pending = map[string]bool{}
		}
	}
}
