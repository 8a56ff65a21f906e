package titles

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPollInterval is the stat interval used when fsnotify is unavailable.
const DefaultPollInterval = 2 * time.Second

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher reports changes to a single file. It watches the parent directory
// so atomic replace-by-rename writes are still seen, and falls back to
// stat polling when fsnotify cannot be used.
type Watcher struct {
	// path is the file being monitored.
	path string
	// events is buffered to 1 so bursts of writes coalesce into one signal.
	events chan struct{}
	// done is closed by [Watcher.Close].
	done chan struct{}
	// fsw is nil while polling.
	fsw *fsnotify.Watcher
	// once makes Close idempotent.
	once sync.Once
	// polling is set once the watcher has fallen back to stat polling.
	polling atomic.Bool
	// pollInterval is the time between stat calls while polling.
	pollInterval time.Duration
}

// NewWatcher starts watching path. The file need not exist yet, but its
// directory should.
func NewWatcher(path string, pollInterval time.Duration) (*Watcher, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve watch path: %w", err)
	}
	w := &Watcher{
		path:         abs,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pollInterval: pollInterval,
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, polling titles file", "error", err)
		w.startPolling()
		return w, nil
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		slog.Info("cannot watch titles directory, polling instead", "path", abs, "error", err)
		fsw.Close()
		w.startPolling()
		return w, nil
	}
	w.fsw = fsw
	go w.watch(fsw)
	return w, nil
}

// Events returns a channel that receives a signal after each change.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Polling reports whether the watcher is polling instead of using fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		if w.fsw != nil {
			if cerr := w.fsw.Close(); cerr != nil {
				err = fmt.Errorf("close fsnotify watcher: %w", cerr)
			}
		}
	})
	return err
}

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	go w.poll()
}

// watch forwards write, create and rename events for the watched file.
// An fsnotify error switches the watcher to polling.
func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.notify()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, polling titles file", "error", err)
			w.startPolling()
			return
		}
	}
}

// poll stats the file and signals when its modification time or size
// changes.
func (w *Watcher) poll() {
	lastMod, lastSize := w.stat()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			mod, size := w.stat()
			if !mod.Equal(lastMod) || size != lastSize {
				lastMod, lastSize = mod, size
				w.notify()
			}
		}
	}
}

func (w *Watcher) stat() (time.Time, int64) {
	info, err := os.Stat(w.path)
	if err != nil {
		return time.Time{}, -1
	}
	return info.ModTime(), info.Size()
}

// notify queues one signal unless one is already pending.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}

// ///////////////////////////////////////////////
// Store Reloading
// ///////////////////////////////////////////////

// Watch reloads the store whenever its file is edited externally, until ctx
// is done. Writes made by the store itself are ignored by [Store.Reload].
func (s *Store) Watch(ctx context.Context, pollInterval time.Duration) error {
	w, err := NewWatcher(s.path, pollInterval)
	if err != nil {
		return err
	}
	defer w.Close()

	slog.Debug("watching titles file", "path", s.path, "polling", w.Polling())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Events():
			changed, err := s.Reload()
			if err != nil {
				slog.Warn("titles reload failed, keeping current records", "path", s.path, "error", err)
				continue
			}
			if changed {
				slog.Info("titles reloaded", "path", s.path, "records", s.Len())
			}
		}
	}
}
