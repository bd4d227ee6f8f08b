// Package watcher triggers regeneration when an entry point changes on disk.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/officefn/internal/entrypoints"
)

// Trigger requests a regeneration cycle without blocking
type Trigger interface {
	Trigger()
}

// Watcher watches the directories containing the entry points. Only
// write and create events on an entry point itself trigger a cycle.
type Watcher struct {
	entries []string
	target  Trigger
	fs      *fsnotify.Watcher

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a watcher for entries. Watching starts with Start.
func New(entries []string, target Trigger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	seen := make(map[string]struct{})
	for _, entry := range entries {
		dir := filepath.Dir(entry)
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	return &Watcher{
		entries: append([]string(nil), entries...),
		target:  target,
		fs:      fsw,
	}, nil
}

// Start processes events until ctx is done or Close is called
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.fs.Events:
				if !ok {
					return
				}
				w.handle(event)
			case err, ok := <-w.fs.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("File watcher error")
			}
		}
	}()

	log.Debug().Int("entry_points", len(w.entries)).Msg("Watching entry points for changes")
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !entrypoints.Contains(w.entries, event.Name) {
		return
	}

	log.Debug().
		Str("file", event.Name).
		Str("op", event.Op.String()).
		Msg("Entry point changed")
	w.target.Trigger()
}

// Close stops watching and waits for the event loop to exit
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}
