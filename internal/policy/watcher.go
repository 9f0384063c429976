package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jonesrussell/north-cloud/moderation/infrastructure/logger"
)

const defaultDebounce = 500 * time.Millisecond

// ReloadFunc is called after every reload attempt.
type ReloadFunc func(snap *Snapshot, err error)

// Watcher reloads the store's policy file when it changes on disk.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	log      logger.Logger
	debounce time.Duration
	onReload ReloadFunc
}

// NewWatcher watches the directory containing the store's policy file, so
// editors that replace the file by rename are also picked up.
func NewWatcher(store *Store, log logger.Logger, onReload ReloadFunc) (*Watcher, error) {
	if store.Path() == "" {
		return nil, ErrNoPolicyFile
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create policy watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(store.Path())); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch policy dir: %w", err)
	}

	return &Watcher{
		store:    store,
		watcher:  fw,
		log:      log,
		debounce: defaultDebounce,
		onReload: onReload,
	}, nil
}

// Run processes file events until ctx is done. Bursts of events within the
// debounce window trigger a single reload.
func (w *Watcher) Run(ctx context.Context) {
	defer func() { _ = w.watcher.Close() }()

	target := filepath.Clean(w.store.Path())
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.log.Debug("Policy file changed", logger.String("file", event.Name), logger.String("op", event.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("Policy watcher error", logger.Error(err))

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	snap, err := w.store.ReloadFile()
	if err != nil {
		w.log.Error("Policy reload rejected, keeping active policy",
			logger.String("active_version", w.store.Current().Version()),
			logger.Error(err),
		)
	} else {
		w.log.Info("Policy reloaded", logger.String("version", snap.Version()))
	}
	if w.onReload != nil {
		w.onReload(snap, err)
	}
}
