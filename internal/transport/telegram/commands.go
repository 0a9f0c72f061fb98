package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"
	moderationService "github.com/reshetovitsme/channel-guard/internal/modules/moderation/service"
	sharedErrors "github.com/reshetovitsme/channel-guard/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

type commandFunc func(ctx context.Context, c Client, msg *models.Message, args string)

type command struct {
	usage string
	run   commandFunc
}

// commandNames keeps help and registration order
var commandNames = []string{
	"start", "help",
	"addspam", "removespam", "listspam",
	"addword", "removeword", "listwords",
	"whitelist", "unwhitelist", "listwhitelist",
	"status",
}

func (h *Handler) commandTable() map[string]command {
	return map[string]command{
		"start":         {"Start the bot", h.handleStart},
		"help":          {"Show this help message", h.handleHelp},
		"addspam":       {"<pattern> - Add a spam pattern", h.handleAddSpam},
		"removespam":    {"<pattern> - Remove a spam pattern", h.handleRemoveSpam},
		"listspam":      {"List all spam patterns", h.handleListSpam},
		"addword":       {"<word> - Add a banned word", h.handleAddWord},
		"removeword":    {"<word> - Remove a banned word", h.handleRemoveWord},
		"listwords":     {"List banned words", h.handleListWords},
		"whitelist":     {"<user_id> - Whitelist a user", h.handleWhitelist},
		"unwhitelist":   {"<user_id> - Remove user from whitelist", h.handleUnwhitelist},
		"listwhitelist": {"List whitelisted users", h.handleListWhitelist},
		"status":        {"Show moderation counters", h.handleStatus},
	}
}

// dispatchCommand runs the owner command in update. Anyone but the owner
// gets no reply at all, so the bot does not reveal itself; such messages and
// unknown commands go through moderation like any other text.
func (h *Handler) dispatchCommand(ctx context.Context, c Client, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	name, args, ok := parseCommand(msg.Text)
	cmd, known := h.commands[name]
	if !ok || !known || msg.From == nil {
		h.moderate(ctx, c, msg)
		return
	}

	if !h.checkAuthorization(msg.From.ID) {
		slog.Debug("Ignored command from non-owner", "command", name, "user_id", msg.From.ID)
		h.moderate(ctx, c, msg)
		return
	}

	slog.Info("Command received", "command", name, "user_id", msg.From.ID)
	cmd.run(ctx, c, msg, args)
}

// parseCommand splits "/name@bot arg1  arg2" into "name" and "arg1 arg2"
func parseCommand(text string) (name, args string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", "", false
	}

	name = strings.TrimPrefix(fields[0], "/")
	name, _, _ = strings.Cut(name, "@")
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), strings.Join(fields[1:], " "), true
}

func (h *Handler) handleStart(ctx context.Context, c Client, msg *models.Message, _ string) {
	h.reply(ctx, c, msg, "Bot is running! I will help manage your channel.")
}

func (h *Handler) handleHelp(ctx context.Context, c Client, msg *models.Message, _ string) {
	var text strings.Builder
	text.WriteString("Available commands:\n")
	for _, name := range commandNames {
		usage := h.commands[name].usage
		if strings.HasPrefix(usage, "<") {
			fmt.Fprintf(&text, "/%s %s\n", name, usage)
			continue
		}
		fmt.Fprintf(&text, "/%s - %s\n", name, usage)
	}
	h.reply(ctx, c, msg, text.String())
}

func (h *Handler) handleAddSpam(ctx context.Context, c Client, msg *models.Message, pattern string) {
	if pattern == "" {
		h.reply(ctx, c, msg, "Please provide a pattern to add.")
		return
	}
	if err := moderationService.ValidatePattern(pattern); err != nil {
		h.reply(ctx, c, msg, fmt.Sprintf("Invalid pattern: %v", err))
		return
	}

	added, err := h.store.AddSpamPattern(pattern)
	switch {
	case err != nil:
		h.replySaveFailed(ctx, c, msg, "Added spam pattern: "+pattern, err)
	case added:
		h.reply(ctx, c, msg, "Added spam pattern: "+pattern)
	default:
		h.reply(ctx, c, msg, "This pattern already exists.")
	}
}

func (h *Handler) handleRemoveSpam(ctx context.Context, c Client, msg *models.Message, pattern string) {
	if pattern == "" {
		h.reply(ctx, c, msg, "Please provide a pattern to remove.")
		return
	}

	removed, err := h.store.RemoveSpamPattern(pattern)
	switch {
	case err != nil:
		h.replySaveFailed(ctx, c, msg, "Removed spam pattern: "+pattern, err)
	case removed:
		h.reply(ctx, c, msg, "Removed spam pattern: "+pattern)
	default:
		h.reply(ctx, c, msg, "Pattern not found.")
	}
}

func (h *Handler) handleListSpam(ctx context.Context, c Client, msg *models.Message, _ string) {
	h.reply(ctx, c, msg, listing("Spam patterns", h.store.SpamPatterns()))
}

func (h *Handler) handleAddWord(ctx context.Context, c Client, msg *models.Message, word string) {
	if word == "" {
		h.reply(ctx, c, msg, "Please provide a word to ban.")
		return
	}

	added, err := h.store.AddBannedWord(word)
	switch {
	case err != nil:
		h.replySaveFailed(ctx, c, msg, "Added banned word: "+word, err)
	case added:
		h.reply(ctx, c, msg, "Added banned word: "+word)
	default:
		h.reply(ctx, c, msg, "This word is already banned.")
	}
}

func (h *Handler) handleRemoveWord(ctx context.Context, c Client, msg *models.Message, word string) {
	if word == "" {
		h.reply(ctx, c, msg, "Please provide a word to unban.")
		return
	}

	removed, err := h.store.RemoveBannedWord(word)
	switch {
	case err != nil:
		h.replySaveFailed(ctx, c, msg, "Removed banned word: "+word, err)
	case removed:
		h.reply(ctx, c, msg, "Removed banned word: "+word)
	default:
		h.reply(ctx, c, msg, "Word not found in banned list.")
	}
}

func (h *Handler) handleListWords(ctx context.Context, c Client, msg *models.Message, _ string) {
	h.reply(ctx, c, msg, listing("Banned words", h.store.BannedWords()))
}

func (h *Handler) handleWhitelist(ctx context.Context, c Client, msg *models.Message, args string) {
	if args == "" {
		h.reply(ctx, c, msg, "Please provide a user id to whitelist.")
		return
	}
	userID, err := parseUserID(args)
	if err != nil {
		h.reply(ctx, c, msg, "Invalid user id: "+args)
		return
	}

	added, err := h.store.AddWhitelistedUser(userID)
	switch {
	case err != nil:
		h.replySaveFailed(ctx, c, msg, fmt.Sprintf("Whitelisted user: %d", userID), err)
	case added:
		h.reply(ctx, c, msg, fmt.Sprintf("Whitelisted user: %d", userID))
	default:
		h.reply(ctx, c, msg, fmt.Sprintf("User %d is already whitelisted.", userID))
	}
}

func (h *Handler) handleUnwhitelist(ctx context.Context, c Client, msg *models.Message, args string) {
	if args == "" {
		h.reply(ctx, c, msg, "Please provide a user id to remove from the whitelist.")
		return
	}
	userID, err := parseUserID(args)
	if err != nil {
		h.reply(ctx, c, msg, "Invalid user id: "+args)
		return
	}

	removed, err := h.store.RemoveWhitelistedUser(userID)
	switch {
	case err != nil:
		h.replySaveFailed(ctx, c, msg, fmt.Sprintf("Removed user %d from whitelist", userID), err)
	case removed:
		h.reply(ctx, c, msg, fmt.Sprintf("Removed user %d from whitelist", userID))
	default:
		h.reply(ctx, c, msg, fmt.Sprintf("User %d is not whitelisted.", userID))
	}
}

func (h *Handler) handleListWhitelist(ctx context.Context, c Client, msg *models.Message, _ string) {
	users := lo.Map(h.store.WhitelistedUsers(), func(id int64, _ int) string {
		return strconv.FormatInt(id, 10)
	})
	h.reply(ctx, c, msg, listing("Whitelisted users", users))
}

func (h *Handler) handleStatus(ctx context.Context, c Client, msg *models.Message, _ string) {
	engineStats := h.engine.Stats()
	transportStats := h.Stats()
	rules := h.store.Snapshot()

	text := fmt.Sprintf(`Bot status:

Messages checked: %d
Spam detected: %d
Spam deleted: %d
Delete failures: %d
Whitelisted skips: %d
Broken patterns seen: %d

Spam patterns: %d
Banned words: %d
Whitelisted users: %d`,
		engineStats.Checked, engineStats.Spam, transportStats.Deleted, transportStats.DeleteFailed,
		engineStats.Whitelisted, engineStats.BadPatterns,
		len(rules.SpamPatterns), len(rules.BannedWords), len(rules.WhitelistedUsers))

	h.reply(ctx, c, msg, text)
}

// replySaveFailed tells the owner the change is live but not durable
func (h *Handler) replySaveFailed(ctx context.Context, c Client, msg *models.Message, done string, err error) {
	h.reply(ctx, c, msg, fmt.Sprintf("%s\nFailed to save configuration, the change is lost on restart: %v", done, err))
}

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, oops.With("value", s).Wrap(sharedErrors.ErrInvalidUserID)
	}
	return id, nil
}

func listing(title string, items []string) string {
	if len(items) == 0 {
		return title + ": none"
	}
	return title + ":\n" + strings.Join(items, "\n")
}
