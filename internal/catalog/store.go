package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current catalog table and supports atomic hot-reload.
// Readers call Current on every resolution pass, so a reload is picked up
// by the next inventory read without coordination.
type Store struct {
	logger *slog.Logger
	table  atomic.Pointer[Table]
}

// NewStore wraps an already-loaded table.
func NewStore(t *Table, logger *slog.Logger) *Store {
	s := &Store{logger: logger}
	s.table.Store(t)

	return s
}

// Current returns the active table. Never nil.
func (s *Store) Current() *Table {
	return s.table.Load()
}

// Watch reloads the catalog whenever the file at path is rewritten and
// blocks until ctx is canceled. The catalog build pipeline replaces the
// file wholesale, so we watch the parent directory to survive the
// rename-over pattern. A failed reload keeps the previous table.
func (s *Store) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: creating watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("catalog: watching %s: %w", dir, err)
	}

	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target {
				continue
			}

			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			t, err := Load(path)
			if err != nil {
				s.logger.Warn("catalog reload failed, keeping previous table",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)

				continue
			}

			s.table.Store(t)
			t.LogSummary(s.logger)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			s.logger.Warn("catalog watcher error", slog.String("error", err.Error()))
		}
	}
}
