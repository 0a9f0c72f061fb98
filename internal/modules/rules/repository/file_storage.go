package repository

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/reshetovitsme/channel-guard/internal/modules/rules/domain"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// FileStorage implements Repository with a single JSON document on disk
type FileStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileStorage creates a file-based rules repository. The document itself
// may not exist yet, only its directory is created.
func NewFileStorage(path string) (Repository, error) {
	if path == "" {
		return nil, oops.In("rules").New("empty rules document path")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, oops.In("rules").With("dir", dir, "context", "failed to create document directory").Wrap(err)
	}

	return &FileStorage{path: path}, nil
}

// Path returns the document location
func (s *FileStorage) Path() string {
	return s.path
}

// Load merges the persisted document over the built-in defaults. Keys present
// in the file win, missing keys keep their defaults. A missing file is a first
// run and yields the defaults.
func (s *FileStorage) Load() (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(domain.DefaultMap(), "."), nil); err != nil {
		return nil, oops.In("rules").With("context", "failed to load defaults").Wrap(err)
	}

	_, err := os.Stat(s.path)
	switch {
	case err == nil:
		if err := k.Load(file.Provider(s.path), kjson.Parser()); err != nil {
			return nil, oops.In("rules").With("path", s.path, "context", "failed to parse rules document").Wrap(err)
		}
	case os.IsNotExist(err):
		slog.Info("Rules document not found, using defaults", "path", s.path)
	default:
		return nil, oops.In("rules").With("path", s.path, "context", "failed to stat rules document").Wrap(err)
	}

	for _, key := range unknownKeys(k.Keys()) {
		slog.Warn("Unknown key in rules document ignored", "key", key, "path", s.path)
	}

	var doc domain.Document
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, oops.In("rules").With("path", s.path, "context", "failed to unmarshal rules document").Wrap(err)
	}

	if doc.Normalize() {
		slog.Warn("Duplicate or blank entries dropped from rules document", "path", s.path)
	}

	return &doc, nil
}

// Save rewrites the whole document. Data goes to a temp file in the same
// directory first and is renamed over the target, so a crash mid-write never
// leaves a truncated document behind.
func (s *FileStorage) Save(doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return oops.In("rules").With("context", "failed to marshal rules document").Wrap(err)
	}

	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return oops.In("rules").With("dir", dir, "context", "failed to create temp file").Wrap(err)
	}
	tmpName := tmp.Name()

	// the document carries the bot token
	writeErr := func() error {
		if err := tmp.Chmod(0600); err != nil {
			return err
		}
		if _, err := tmp.Write(append(data, '\n')); err != nil {
			return err
		}
		return tmp.Sync()
	}()
	closeErr := tmp.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tmpName)
		return oops.In("rules").With("path", tmpName, "context", "failed to write temp file").Wrap(lo.Ternary(writeErr != nil, writeErr, closeErr))
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return oops.In("rules").With("path", s.path, "context", "failed to replace rules document").Wrap(err)
	}

	return nil
}

// unknownKeys returns top-level keys not defined by the document schema
func unknownKeys(keys []string) []string {
	tops := lo.Map(keys, func(key string, _ int) string {
		return strings.SplitN(key, ".", 2)[0]
	})
	unknown := lo.Filter(lo.Uniq(tops), func(key string, _ int) bool {
		return !slices.Contains(domain.Keys, key)
	})
	slices.Sort(unknown)
	return unknown
}
