package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 250 * time.Millisecond

// WatchConfig configures a Watcher.
type WatchConfig struct {
	Dirs     []string
	Debounce time.Duration
	Logger   zerolog.Logger
	// OnChange receives every successful rescan.
	OnChange func(*Registry)
}

// Watcher rescans the modes directories whenever a .mode file or a
// directory below them changes. fsnotify is not recursive, so the roots and
// every modes directory found by the last scan are watched.
type Watcher struct {
	cfg     WatchConfig
	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	watched map[string]bool
	timer   *time.Timer
}

// NewWatcher subscribes to the configured directories. Call Run to start
// delivering rescans and Close to release the watch descriptors.
func NewWatcher(cfg WatchConfig) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{cfg: cfg, fsw: fsw, watched: map[string]bool{}}
	w.subscribe()
	return w, nil
}

// subscribe adds watches for roots and modes directories not yet watched.
func (w *Watcher) subscribe() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, d := range append(w.cfg.Dirs, ModesDirs(w.cfg.Dirs...)...) {
		abs, err := filepath.Abs(d)
		if err != nil || w.watched[abs] {
			continue
		}
		if err := w.fsw.Add(abs); err != nil {
			w.cfg.Logger.Debug().Err(err).Str("dir", abs).Msg("registry event=watch_skip")
			continue
		}
		w.watched[abs] = true
	}
}

// Watched returns the directories currently subscribed to.
func (w *Watcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.watched))
	for d := range w.watched {
		out = append(out, d)
	}
	return out
}

// Run delivers debounced rescans until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	defer w.stopTimer()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.cfg.Logger.Warn().Err(err).Msg("registry event=watch_error")
		}
	}
}

// relevant filters out editor temp files and metadata-only changes.
func relevant(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return false
	}
	ext := filepath.Ext(ev.Name)
	return ext == ".mode" || ext == ""
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, w.rescan)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) rescan() {
	reg, err := Scan(w.cfg.Dirs...)
	if err != nil {
		w.cfg.Logger.Error().Err(err).Msg("registry event=rescan_failed")
		return
	}
	w.subscribe()
	w.cfg.Logger.Info().
		Int("pairs", len(reg.Pairs)).
		Int("analyzers", len(reg.Analyzers)).
		Int("generators", len(reg.Generators)).
		Int("taggers", len(reg.Taggers)).
		Msg("registry event=rescanned")
	if w.cfg.OnChange != nil {
		w.cfg.OnChange(reg)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.stopTimer()
	return w.fsw.Close()
}
