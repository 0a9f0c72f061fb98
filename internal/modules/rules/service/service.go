package service

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/reshetovitsme/channel-guard/internal/modules/rules/domain"
	"github.com/reshetovitsme/channel-guard/internal/modules/rules/repository"
	"github.com/reshetovitsme/channel-guard/internal/shared/errors"
	"github.com/samber/oops"
)

// Store owns the live rules document. All reads and read-modify-persist
// sequences go through its lock, so handlers running on parallel update
// workers never interleave a check with another handler's append.
type Store struct {
	repo    repository.Repository
	doc     *domain.Document
	version uint64
	mu      sync.RWMutex
}

// New loads the document from repo and validates it
func New(repo repository.Repository) (*Store, error) {
	doc, err := repo.Load()
	if err != nil {
		return nil, oops.In("rules").With("path", repo.Path(), "context", "failed to load rules document").Wrap(err)
	}

	if doc.Token == "" {
		return nil, errors.ErrMissingBotToken
	}
	if doc.OwnerID == 0 {
		slog.Warn("Owner is not configured, all commands will be ignored", "path", repo.Path())
	}

	return &Store{repo: repo, doc: doc, version: 1}, nil
}

// Path returns the location of the persisted document
func (s *Store) Path() string {
	return s.repo.Path()
}

// Snapshot returns a deep copy of the current document
func (s *Store) Snapshot() domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.doc.Clone()
}

// Version changes every time the document is mutated or reloaded
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Token returns the bot credential
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Token
}

// OwnerID returns the single user allowed to run commands
func (s *Store) OwnerID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.OwnerID
}

// ChannelID returns the managed channel identifier
func (s *Store) ChannelID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.ChannelID
}

// IsOwner checks userID against the configured owner. Unset owner matches nobody.
func (s *Store) IsOwner(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.OwnerID != 0 && s.doc.OwnerID == userID
}

// IsWhitelisted checks if userID is exempt from moderation
func (s *Store) IsWhitelisted(userID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.IsWhitelisted(userID)
}

// SpamPatterns returns a copy of the pattern list in insertion order
func (s *Store) SpamPatterns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.doc.SpamPatterns)
}

// BannedWords returns a copy of the banned word list
func (s *Store) BannedWords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.doc.BannedWords)
}

// WhitelistedUsers returns a copy of the whitelist
func (s *Store) WhitelistedUsers() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.doc.WhitelistedUsers)
}

// AddSpamPattern appends pattern if it is not in the list yet.
// A true result with a non-nil error means the pattern is active but was not persisted.
func (s *Store) AddSpamPattern(pattern string) (bool, error) {
	return s.mutate(func(d *domain.Document) bool {
		return addItem(&d.SpamPatterns, pattern)
	}, "spam_pattern", pattern)
}

// RemoveSpamPattern drops pattern if present
func (s *Store) RemoveSpamPattern(pattern string) (bool, error) {
	return s.mutate(func(d *domain.Document) bool {
		return removeItem(&d.SpamPatterns, pattern)
	}, "spam_pattern", pattern)
}

// AddBannedWord appends word if it is not banned yet
func (s *Store) AddBannedWord(word string) (bool, error) {
	return s.mutate(func(d *domain.Document) bool {
		return addItem(&d.BannedWords, word)
	}, "banned_word", word)
}

// RemoveBannedWord drops word if present
func (s *Store) RemoveBannedWord(word string) (bool, error) {
	return s.mutate(func(d *domain.Document) bool {
		return removeItem(&d.BannedWords, word)
	}, "banned_word", word)
}

// AddWhitelistedUser exempts userID from moderation
func (s *Store) AddWhitelistedUser(userID int64) (bool, error) {
	return s.mutate(func(d *domain.Document) bool {
		return addItem(&d.WhitelistedUsers, userID)
	}, "user_id", userID)
}

// RemoveWhitelistedUser removes userID from the whitelist
func (s *Store) RemoveWhitelistedUser(userID int64) (bool, error) {
	return s.mutate(func(d *domain.Document) bool {
		return removeItem(&d.WhitelistedUsers, userID)
	}, "user_id", userID)
}

// SetOwner replaces the owner and persists the document
func (s *Store) SetOwner(userID int64) error {
	_, err := s.mutate(func(d *domain.Document) bool {
		if d.OwnerID == userID {
			return false
		}
		d.OwnerID = userID
		return true
	}, "owner_id", userID)
	return err
}

// SetChannelID replaces the managed channel and persists the document
func (s *Store) SetChannelID(channelID string) error {
	_, err := s.mutate(func(d *domain.Document) bool {
		if d.ChannelID == channelID {
			return false
		}
		d.ChannelID = channelID
		return true
	}, "channel_id", channelID)
	return err
}

// Save rewrites the persisted document with the current state
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo.Save(s.doc)
}

// Reload re-reads the persisted document. The running token is kept, a
// rotated credential needs a restart. The read happens under the write lock
// so a concurrent mutation is either fully on disk before it or applied
// after it. Reading back our own save is a no-op.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.repo.Load()
	if err != nil {
		return oops.In("rules").With("path", s.repo.Path(), "context", "failed to reload rules document").Wrap(err)
	}

	if doc.Token != s.doc.Token {
		slog.Warn("Token changed in rules document, restart to apply it", "path", s.repo.Path())
	}
	doc.Token = s.doc.Token
	if doc.Equal(s.doc) {
		return nil
	}

	s.doc = doc
	s.version++
	return nil
}

// mutate applies fn under the write lock and persists the document if fn
// reports a change. The in-memory change is kept even if the write fails.
func (s *Store) mutate(fn func(d *domain.Document) bool, attrs ...any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !fn(s.doc) {
		return false, nil
	}
	s.version++

	if err := s.repo.Save(s.doc); err != nil {
		slog.Error("Failed to persist rules document", append(attrs, "error", err, "path", s.repo.Path())...)
		return true, oops.In("rules").With(attrs...).With("context", "change applied but not persisted").Wrap(err)
	}

	slog.Info("Rules document updated", attrs...)
	return true, nil
}

func addItem[T comparable](list *[]T, item T) bool {
	if s, ok := any(item).(string); ok && strings.TrimSpace(s) == "" {
		return false
	}
	if slices.Contains(*list, item) {
		return false
	}
	*list = append(*list, item)
	return true
}

func removeItem[T comparable](list *[]T, item T) bool {
	idx := slices.Index(*list, item)
	if idx < 0 {
		return false
	}
	*list = slices.Delete(*list, idx, idx+1)
	return true
}
