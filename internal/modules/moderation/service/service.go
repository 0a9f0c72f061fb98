package service

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/reshetovitsme/channel-guard/internal/modules/moderation/domain"
	rulesDomain "github.com/reshetovitsme/channel-guard/internal/modules/rules/domain"
	"github.com/reshetovitsme/channel-guard/internal/shared/errors"
	"github.com/samber/oops"
)

const (
	DefaultCacheSize    = 256
	DefaultMatchTimeout = 100 * time.Millisecond
)

// RuleSource provides the current rule set
type RuleSource interface {
	Snapshot() rulesDomain.Document
}

// Options tune the engine
type Options struct {
	CacheSize    int
	MatchTimeout time.Duration
}

// Engine decides whether a message is spam. Compiled patterns are cached by
// their text, so any edit of the pattern list is picked up on the next
// message without explicit invalidation.
type Engine struct {
	rules        RuleSource
	cache        *lru.Cache[string, compiledPattern]
	matchTimeout time.Duration

	checked     atomic.Uint64
	spam        atomic.Uint64
	whitelisted atomic.Uint64
	badPatterns atomic.Uint64
}

type compiledPattern struct {
	re  *regexp2.Regexp
	err error
}

// New creates a moderation engine reading rules from source
func New(source RuleSource, opts Options) (*Engine, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.MatchTimeout <= 0 {
		opts.MatchTimeout = DefaultMatchTimeout
	}

	cache, err := lru.New[string, compiledPattern](opts.CacheSize)
	if err != nil {
		return nil, oops.In("moderation").With("cache_size", opts.CacheSize).Wrap(err)
	}

	return &Engine{rules: source, cache: cache, matchTimeout: opts.MatchTimeout}, nil
}

// Check evaluates text from senderID against the current rules and counts the outcome
func (e *Engine) Check(ctx context.Context, text string, senderID *int64) domain.Result {
	rules := e.rules.Snapshot()
	res := e.Explain(text, senderID, rules)

	e.checked.Add(1)
	switch {
	case res.IsSpam():
		e.spam.Add(1)
	case senderID != nil && rules.IsWhitelisted(*senderID):
		e.whitelisted.Add(1)
	}

	if res.IsSpam() {
		slog.DebugContext(ctx, "Spam detected", "rule", res.Reason.Rule, "match", res.Reason.Match)
	}
	return res
}

// Evaluate returns the verdict for text sent by senderID (nil for anonymous
// channel posts) under rules
func (e *Engine) Evaluate(text string, senderID *int64, rules rulesDomain.Document) domain.Verdict {
	return e.Explain(text, senderID, rules).Verdict
}

// Explain is Evaluate with the rule that matched
func (e *Engine) Explain(text string, senderID *int64, rules rulesDomain.Document) domain.Result {
	if senderID != nil && rules.IsWhitelisted(*senderID) {
		return domain.Result{Verdict: domain.VerdictClean}
	}

	for _, pattern := range rules.SpamPatterns {
		re, err := e.compile(pattern)
		if err != nil {
			continue
		}
		matched, err := re.MatchString(text)
		if err != nil {
			e.badPatterns.Add(1)
			slog.Warn("Spam pattern failed to execute, skipped", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return domain.Result{Verdict: domain.VerdictSpam, Reason: &domain.Reason{Rule: "pattern", Match: pattern}}
		}
	}

	lowered := strings.ToLower(text)
	for _, word := range rules.BannedWords {
		if word == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(word)) {
			return domain.Result{Verdict: domain.VerdictSpam, Reason: &domain.Reason{Rule: "banned_word", Match: word}}
		}
	}

	return domain.Result{Verdict: domain.VerdictClean}
}

// Stats returns the engine counters
func (e *Engine) Stats() domain.Stats {
	return domain.Stats{
		Checked:     e.checked.Load(),
		Spam:        e.spam.Load(),
		Whitelisted: e.whitelisted.Load(),
		BadPatterns: e.badPatterns.Load(),
	}
}

// ValidatePattern reports whether pattern compiles
func ValidatePattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return errors.ErrEmptyRuleItem
	}
	if _, err := regexp2.Compile(pattern, regexp2.IgnoreCase); err != nil {
		return oops.In("moderation").With("pattern", pattern).Wrapf(errors.ErrInvalidPattern, "%v", err)
	}
	return nil
}

// Validate checks every pattern of rules and returns all failures at once
func Validate(rules rulesDomain.Document) error {
	var errs *multierror.Error
	for _, pattern := range rules.SpamPatterns {
		if err := ValidatePattern(pattern); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// compile returns a cached matcher for pattern. Failures are cached too and
// reported once per cache residency.
func (e *Engine) compile(pattern string) (*regexp2.Regexp, error) {
	if c, ok := e.cache.Get(pattern); ok {
		return c.re, c.err
	}

	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase)
	if err != nil {
		e.badPatterns.Add(1)
		slog.Warn("Spam pattern failed to compile, skipped", "pattern", pattern, "error", err)
		e.cache.Add(pattern, compiledPattern{err: err})
		return nil, err
	}

	re.MatchTimeout = e.matchTimeout
	e.cache.Add(pattern, compiledPattern{re: re})
	return re, nil
}
