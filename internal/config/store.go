package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current configuration snapshot. Readers call Get on
// every use and never retain the pointer across operations; a reload
// swaps the snapshot atomically.
type Store struct {
	current atomic.Pointer[FileConfig]
}

// NewStore creates a store seeded with cfg.
func NewStore(cfg FileConfig) *Store {
	s := &Store{}
	s.current.Store(&cfg)
	return s
}

// Get returns the current snapshot. The returned value must be treated
// as read-only.
func (s *Store) Get() *FileConfig {
	return s.current.Load()
}

// Set swaps in a new snapshot.
func (s *Store) Set(cfg FileConfig) {
	s.current.Store(&cfg)
}

// Watch reloads the store whenever the file at path changes, until the
// context ends. A reload that fails to parse keeps the previous snapshot.
func (s *Store) Watch(ctx context.Context, log *slog.Logger, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace the file on save, which would
	// silently detach a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching config directory: %w", err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", "error", watchErr)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			changed, err := filepath.Abs(ev.Name)
			if err != nil || changed != target {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				log.Warn("config reload failed, keeping previous", "error", err)
				continue
			}
			s.Set(cfg)
			log.Info("configuration reloaded", "path", path)
		}
	}
}
