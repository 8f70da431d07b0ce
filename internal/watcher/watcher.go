// Package watcher provides file system watching for two worker concerns:
// detecting deletion of the SQLite database file (so stores can be rebuilt)
// and detecting plan-file changes (so the dashboard can be refreshed).
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DeletionWatcher monitors a file for deletion and calls onDelete when it is
// removed. It watches the parent directory since fsnotify cannot watch
// non-existent files.
type DeletionWatcher struct {
	targetPath string
	parentPath string
	onDelete   func()
	watcher    *fsnotify.Watcher
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.Mutex
	running    bool
	debounce   time.Duration
}

// NewDeletionWatcher creates a watcher for the given target path.
func NewDeletionWatcher(targetPath string, onDelete func()) (*DeletionWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &DeletionWatcher{
		targetPath: targetPath,
		parentPath: filepath.Dir(targetPath),
		onDelete:   onDelete,
		watcher:    fsw,
		ctx:        ctx,
		cancel:     cancel,
		debounce:   100 * time.Millisecond,
	}, nil
}

// Start begins watching for deletion events.
func (w *DeletionWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addWatch(); err != nil {
		log.Warn().Err(err).Str("path", w.parentPath).Msg("Failed to add initial watch")
		// Continue anyway - the loop re-establishes the watch on recreation
	}

	go w.watchLoop()
	return nil
}

// Stop stops the watcher.
func (w *DeletionWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	w.cancel()
	return w.watcher.Close()
}

func (w *DeletionWatcher) addWatch() error {
	if _, err := os.Stat(w.parentPath); os.IsNotExist(err) {
		return err
	}
	return w.watcher.Add(w.parentPath)
}

func (w *DeletionWatcher) watchLoop() {
	var (
		debounceTimer *time.Timer
		pendingDelete bool
	)

	for {
		select {
		case <-w.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			eventPath := filepath.Clean(event.Name)
			targetPath := filepath.Clean(w.targetPath)

			// Whole data dir removed, or just the target file
			if (eventPath == w.parentPath || eventPath == targetPath) && event.Op&fsnotify.Remove != 0 {
				log.Info().Str("path", eventPath).Msg("Watched path deleted")
				pendingDelete = true
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounce, func() {
					w.handleDeletion()
				})
				continue
			}

			// Parent recreated: re-establish the watch
			if eventPath == w.parentPath && event.Op&fsnotify.Create != 0 {
				_ = w.addWatch()
				continue
			}

			// Target recreated before the debounce fired: cancel the callback
			if pendingDelete && eventPath == targetPath && event.Op&fsnotify.Create != 0 {
				pendingDelete = false
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *DeletionWatcher) handleDeletion() {
	log.Info().Str("path", w.targetPath).Msg("Triggering deletion callback")

	if w.onDelete != nil {
		w.onDelete()
	}

	// The parent may have been recreated along with the target; try to
	// re-establish the watch after a short delay.
	go func() {
		time.Sleep(500 * time.Millisecond)
		if err := w.addWatch(); err != nil {
			log.Warn().Err(err).Str("path", w.parentPath).Msg("Failed to re-establish watch after deletion")
		}
	}()
}
