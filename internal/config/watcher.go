package config

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	watchDebounce     = 200 * time.Millisecond
	watchPollInterval = 10 * time.Second
)

// Watcher reloads the configuration when the config file changes, so model
// or timeout edits take effect between ticks without a restart. It prefers
// fsnotify events and falls back to polling when the watch cannot be
// established.
type Watcher struct {
	repoDir string
	logger  *log.Logger

	mu      sync.Mutex
	current *Config

	watcher     *fsnotify.Watcher
	useFsnotify bool
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewWatcher creates a Watcher seeded with the given config.
func NewWatcher(repoDir string, initial *Config, logger *log.Logger) *Watcher {
	return &Watcher{
		repoDir: repoDir,
		logger:  logger,
		current: initial,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start watches for config changes until Stop is called. Run it on its own
// goroutine.
func (w *Watcher) Start() {
	defer close(w.doneCh)

	if fw, err := fsnotify.NewWatcher(); err == nil {
		// Watch the directory, not the file: editors replace files and the
		// config may not exist yet.
		if err := fw.Add(w.repoDir); err == nil {
			w.watcher = fw
			w.useFsnotify = true
		} else {
			fw.Close()
		}
	}
	if !w.useFsnotify {
		w.logger.Printf("ConfigWatcher: fsnotify unavailable, polling every %s", watchPollInterval)
	}

	var debounce *time.Timer
	poll := time.NewTicker(watchPollInterval)
	defer poll.Stop()
	defer func() {
		if w.watcher != nil {
			w.watcher.Close()
		}
	}()

	// Nil channels when fsnotify is unavailable: those select arms never fire.
	var events <-chan fsnotify.Event
	var errCh <-chan error
	if w.useFsnotify {
		events = w.watcher.Events
		errCh = w.watcher.Errors
	}

	for {
		select {
		case <-w.stopCh:
			return
		case ev := <-events:
			if !isConfigFile(ev.Name) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, w.reload)
		case err := <-errCh:
			if err != nil {
				w.logger.Printf("ConfigWatcher: watch error: %v", err)
			}
		case <-poll.C:
			if !w.useFsnotify {
				w.reload()
			}
		}
	}
}

// Stop terminates the watcher and waits for the goroutine to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) reload() {
	cfg, err := Load(w.repoDir)
	if err != nil {
		w.logger.Printf("ConfigWatcher: ERROR: reload failed: %v (keeping previous config)", err)
		return
	}
	w.mu.Lock()
	changed := *cfg != *w.current
	w.current = cfg
	w.mu.Unlock()
	if changed {
		w.logger.Printf("ConfigWatcher: configuration reloaded")
	}
}

func isConfigFile(path string) bool {
	base := filepath.Base(path)
	return base == JSONFile || base == YAMLFile
}
