package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Holder publishes the latest corpus snapshot. Turns read it once and keep
// that snapshot for their whole duration.
type Holder struct {
	current atomic.Pointer[Corpus]
}

// NewHolder creates a holder publishing c.
func NewHolder(c *Corpus) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

// Current returns the published snapshot.
func (h *Holder) Current() *Corpus { return h.current.Load() }

// Store publishes a new snapshot.
func (h *Holder) Store(c *Corpus) { h.current.Store(c) }

// Watch reloads the corpus into h whenever a file under the loader's roots
// changes. Bursts of events are collapsed into one reload after debounce.
// A failed reload keeps the previous snapshot. Watch blocks until ctx is done.
func (l *Loader) Watch(ctx context.Context, h *Holder, debounce time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	for _, root := range l.Roots() {
		if err := addTree(w, root); err != nil {
			return err
		}
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.Add(event.Name); err != nil {
						l.log.Warn().Err(err).Str("dir", event.Name).Msg("cannot watch new folder")
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.log.Warn().Err(err).Msg("watcher error")
		case <-fire:
			fire = nil
			c, err := l.Load()
			if err != nil {
				l.log.Error().Err(err).Msg("corpus reload failed, keeping previous snapshot")
				continue
			}
			h.Store(c)
			l.opts.Metrics.SetCorpusChunks(c.Stats().Chunks)
			l.log.Info().Int("chunks", c.Stats().Chunks).Msg("corpus reloaded")
		}
	}
}

// addTree watches root and its immediate document folders.
func addTree(w *fsnotify.Watcher, root string) error {
	if err := w.Add(root); err != nil {
		return fmt.Errorf("watch %q: %w", root, err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read %q: %w", root, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			dir := filepath.Join(root, e.Name())
			if err := w.Add(dir); err != nil {
				return fmt.Errorf("watch %q: %w", dir, err)
			}
		}
	}
	return nil
}
