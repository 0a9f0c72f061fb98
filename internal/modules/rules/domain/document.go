package domain

import (
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Document is the persisted rule set of the bot. It is loaded once at start,
// mutated by owner commands and rewritten in full after every change.
type Document struct {
	Token            string   `json:"token" koanf:"token"`
	ChannelID        string   `json:"channel_id" koanf:"channel_id"`
	OwnerID          int64    `json:"owner_id" koanf:"owner_id"`
	SpamPatterns     []string `json:"spam_patterns" koanf:"spam_patterns"`
	BannedWords      []string `json:"banned_words" koanf:"banned_words"`
	WhitelistedUsers []int64  `json:"whitelisted_users" koanf:"whitelisted_users"`
}

// Document keys, as they appear in the persisted file
const (
	KeyToken            = "token"
	KeyChannelID        = "channel_id"
	KeyOwnerID          = "owner_id"
	KeySpamPatterns     = "spam_patterns"
	KeyBannedWords      = "banned_words"
	KeyWhitelistedUsers = "whitelisted_users"
)

// Keys lists every top-level key a document may carry
var Keys = []string{KeyToken, KeyChannelID, KeyOwnerID, KeySpamPatterns, KeyBannedWords, KeyWhitelistedUsers}

// DefaultSpamPatterns seed the rule set on first run
var DefaultSpamPatterns = []string{
	`(?i)t\.me/\+`,                             // telegram invite links
	`(?i)https?://(?!t\.me)`,                   // non-telegram links
	`(?i)buy|sell|crypto|bitcoin|eth|bnb|pump`, // crypto spam
	`(?i)admin.*(?:needed|required|wanted)`,    // admin requests
	`(?i)earn.*money|make.*money`,              // money schemes
}

// Default returns the built-in document used when nothing is persisted yet
func Default() *Document {
	return &Document{
		SpamPatterns:     slices.Clone(DefaultSpamPatterns),
		BannedWords:      []string{},
		WhitelistedUsers: []int64{},
	}
}

// DefaultMap returns Default as a flat key map, suitable as the lowest merge layer
func DefaultMap() map[string]any {
	d := Default()
	return map[string]any{
		KeySpamPatterns:     d.SpamPatterns,
		KeyBannedWords:      d.BannedWords,
		KeyWhitelistedUsers: d.WhitelistedUsers,
	}
}

// Clone returns a deep copy
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.SpamPatterns = slices.Clone(d.SpamPatterns)
	c.BannedWords = slices.Clone(d.BannedWords)
	c.WhitelistedUsers = slices.Clone(d.WhitelistedUsers)
	return &c
}

// Equal reports whether d and other carry the same values. Nil and empty
// collections compare equal.
func (d *Document) Equal(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.Token == other.Token &&
		d.ChannelID == other.ChannelID &&
		d.OwnerID == other.OwnerID &&
		slices.Equal(d.SpamPatterns, other.SpamPatterns) &&
		slices.Equal(d.BannedWords, other.BannedWords) &&
		slices.Equal(d.WhitelistedUsers, other.WhitelistedUsers)
}

// Normalize drops blank entries and duplicates from all collections, keeping
// the first occurrence, and replaces nil collections with empty ones.
// Returns true if anything was changed.
func (d *Document) Normalize() bool {
	before := len(d.SpamPatterns) + len(d.BannedWords) + len(d.WhitelistedUsers)

	notBlank := func(s string, _ int) bool { return strings.TrimSpace(s) != "" }
	d.SpamPatterns = lo.Uniq(lo.Filter(d.SpamPatterns, notBlank))
	d.BannedWords = lo.Uniq(lo.Filter(d.BannedWords, notBlank))
	d.WhitelistedUsers = lo.Uniq(d.WhitelistedUsers)

	if d.SpamPatterns == nil {
		d.SpamPatterns = []string{}
	}
	if d.BannedWords == nil {
		d.BannedWords = []string{}
	}
	if d.WhitelistedUsers == nil {
		d.WhitelistedUsers = []int64{}
	}

	return before != len(d.SpamPatterns)+len(d.BannedWords)+len(d.WhitelistedUsers)
}

// IsWhitelisted reports whether userID is exempt from moderation
func (d *Document) IsWhitelisted(userID int64) bool {
	return slices.Contains(d.WhitelistedUsers, userID)
}
