// Package watch reruns packaging when marker or data directories change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce collapses bursts of writes (editor saves, bulk copies) into one trigger.
const DefaultDebounce = 500 * time.Millisecond

// Trigger is called once per settled burst of changes.
type Trigger func(ctx context.Context) error

// Options configures a Watcher.
type Options struct {
	Dirs     []string
	Debounce time.Duration
	// Ignore drops events for matching paths, e.g. archives written into a watched directory.
	Ignore func(path string) bool
	Logger zerolog.Logger
}

// Watcher turns filesystem events under a set of directories into debounced triggers.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	ignore   func(string) bool
	logger   zerolog.Logger
}

// New starts watching opts.Dirs. Every directory must exist.
func New(opts Options) (*Watcher, error) {
	if len(opts.Dirs) == 0 {
		return nil, errors.New("watch: no directories")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	seen := make(map[string]struct{}, len(opts.Dirs))
	for _, dir := range opts.Dirs {
		dir = filepath.Clean(dir)
		if _, dup := seen[dir]; dup {
			continue
		}
		seen[dir] = struct{}{}
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{fsw: fsw, debounce: debounce, ignore: opts.Ignore, logger: opts.Logger}, nil
}

// Close stops watching. Run returns once the watcher is closed.
func (w *Watcher) Close() error {
	return w.fsw.Close() //nolint:wrapcheck
}

// Run blocks until ctx is done or the watcher is closed, calling trigger after each
// quiet period following a relevant change. Trigger errors are logged and watching
// continues.
func (w *Watcher) Run(ctx context.Context, trigger Trigger) error {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	changed := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("change detected")
			changed++
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")
		case <-timer.C:
			w.logger.Info().Int("changes", changed).Msg("changes settled, rerunning")
			changed = 0
			if err := trigger(ctx); err != nil {
				w.logger.Error().Err(err).Msg("triggered run failed")
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	// temp files from atomic writes
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return w.ignore == nil || !w.ignore(event.Name)
}
