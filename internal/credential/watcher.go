package credential

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gatekeep/pkg/logging"
)

// DefaultDebounceInterval is the quiet period after the last file event
// before the credential is re-read.
const DefaultDebounceInterval = 500 * time.Millisecond

// ChangeFunc receives the credential now on disk, or nil when it was removed
// or is unreadable.
type ChangeFunc func(cred *Credential)

// Watch reports changes to the credential file made by any process. It blocks
// until ctx is cancelled and the watcher is closed; setup failures are
// returned immediately. The directory is watched rather than the file so that
// atomic renames and removals are observed. Bursts of events are collapsed
// into a single reload.
func (s *FileStore) Watch(ctx context.Context, onChange ChangeFunc) error {
	return s.watch(ctx, DefaultDebounceInterval, onChange)
}

func (s *FileStore) watch(ctx context.Context, debounce time.Duration, onChange ChangeFunc) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &storeWatcher{
		store:    s,
		name:     filepath.Base(s.path),
		debounce: debounce,
		onChange: onChange,
	}
	logging.Info("CredentialStore", "Watching %s for credential changes", dir)
	w.run(ctx, watcher)
	logging.Debug("CredentialStore", "Stopped watching %s", dir)
	return nil
}

type storeWatcher struct {
	store    *FileStore
	name     string
	debounce time.Duration
	onChange ChangeFunc

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// run owns the fsnotify watcher; events and errors channels are read only here.
func (w *storeWatcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer func() {
		w.stop()
		watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Error("CredentialStore", err, "fsnotify error")
		}
	}
}

func (w *storeWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != w.name {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	logging.Debug("CredentialStore", "Credential file event: %s", event.Op)
	w.reloadDebounced()
}

func (w *storeWatcher) reloadDebounced() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *storeWatcher) reload() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}

	cred, err := w.store.Load()
	if err != nil {
		logging.Error("CredentialStore", err, "Failed to reload credential after change")
		return
	}
	w.onChange(cred)
}

func (w *storeWatcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}
