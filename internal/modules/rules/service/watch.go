package service

import (
	"context"
	"log/slog"
	"os"

	"github.com/knadh/koanf/providers/file"
	"github.com/samber/oops"
)

// Watch reloads the document whenever it changes on disk, e.g. when the
// operator edits it by hand. Our own atomic saves trigger the watcher too;
// Reload sees identical content and leaves the store untouched. Blocks until
// ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	path := s.repo.Path()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// the provider resolves symlinks up front and needs the file to exist
		if err := s.Save(); err != nil {
			return oops.In("rules").With("path", path, "context", "failed to create document for watching").Wrap(err)
		}
	}

	fp := file.Provider(path)
	err := fp.Watch(func(_ any, err error) {
		if err != nil {
			slog.Error("Rules document watcher error", "path", path, "error", err)
			return
		}
		before := s.Version()
		if err := s.Reload(); err != nil {
			slog.Error("Failed to reload rules document", "path", path, "error", err)
			return
		}
		if v := s.Version(); v != before {
			slog.Info("Rules document reloaded", "path", path, "version", v)
		}
	})
	if err != nil {
		return oops.In("rules").With("path", path, "context", "failed to watch rules document").Wrap(err)
	}

	<-ctx.Done()
	if err := fp.Unwatch(); err != nil {
		slog.Warn("Failed to stop rules document watcher", "path", path, "error", err)
	}
	return nil
}
