package watcher

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ChangeWatcher monitors a set of directories for any write/create/remove
// activity and invokes onChange once per debounced burst. Used on plan
// directories to push dashboard refreshes.
type ChangeWatcher struct {
	dirs     []string
	onChange func()
	watcher  *fsnotify.Watcher
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	running  bool
	debounce time.Duration
}

// NewChangeWatcher creates a watcher over the given directories. Directories
// that do not exist yet are skipped; call Start again after creating them.
func NewChangeWatcher(dirs []string, onChange func()) (*ChangeWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ChangeWatcher{
		dirs:     dirs,
		onChange: onChange,
		watcher:  fsw,
		ctx:      ctx,
		cancel:   cancel,
		debounce: 250 * time.Millisecond,
	}, nil
}

// Start begins watching.
func (w *ChangeWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, dir := range w.dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to watch plan directory")
		}
	}

	go w.loop()
	return nil
}

// Stop stops the watcher.
func (w *ChangeWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	w.cancel()
	return w.watcher.Close()
}

func (w *ChangeWatcher) loop() {
	var timer *time.Timer

	for {
		select {
		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case _, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Coalesce editor write bursts into a single callback
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if w.onChange != nil {
					w.onChange()
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Change watcher error")
		}
	}
}
