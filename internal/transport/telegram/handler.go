package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/go-pkgz/repeater"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	moderationService "github.com/reshetovitsme/channel-guard/internal/modules/moderation/service"
	rulesService "github.com/reshetovitsme/channel-guard/internal/modules/rules/service"
	"github.com/reshetovitsme/channel-guard/internal/shared/config"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// Client is the part of the Bot API the handler needs; *bot.Bot implements it
type Client interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	DeleteMessage(ctx context.Context, params *bot.DeleteMessageParams) (bool, error)
}

// Handler handles Telegram bot interactions
type Handler struct {
	cfg      *config.Config
	store    *rulesService.Store
	engine   *moderationService.Engine
	commands map[string]command

	deleted      atomic.Uint64
	deleteFailed atomic.Uint64
}

// Stats are the transport counters
type Stats struct {
	Deleted      uint64 `json:"deleted"`
	DeleteFailed uint64 `json:"delete_failed"`
}

var errDeleteRejected = errors.New("delete request rejected")

// New creates a new Telegram handler
func New(cfg *config.Config, store *rulesService.Store, engine *moderationService.Engine) *Handler {
	h := &Handler{
		cfg:    cfg,
		store:  store,
		engine: engine,
	}
	h.commands = h.commandTable()
	return h
}

// RegisterCommands registers bot commands
func (h *Handler) RegisterCommands(b *bot.Bot) {
	for _, name := range commandNames {
		b.RegisterHandler(bot.HandlerTypeMessageText, "/"+name, bot.MatchTypePrefix, h.handleCommand)
	}
}

// HandleUpdate processes updates not claimed by a command handler: channel
// posts and regular messages are checked for spam
func (h *Handler) HandleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.processUpdate(ctx, b, update)
}

// Stats returns the transport counters
func (h *Handler) Stats() Stats {
	return Stats{Deleted: h.deleted.Load(), DeleteFailed: h.deleteFailed.Load()}
}

func (h *Handler) handleCommand(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.dispatchCommand(ctx, b, update)
}

func (h *Handler) processUpdate(ctx context.Context, c Client, update *models.Update) {
	msg := lo.CoalesceOrEmpty(update.ChannelPost, update.Message, update.EditedChannelPost, update.EditedMessage)
	if msg == nil {
		return
	}
	if h.isOwnerCommand(msg) {
		return
	}
	h.moderate(ctx, c, msg)
}

// moderate checks the text or caption of msg and deletes it on a spam verdict
func (h *Handler) moderate(ctx context.Context, c Client, msg *models.Message) {
	text := lo.Ternary(msg.Text != "", msg.Text, msg.Caption)
	if text == "" {
		return
	}

	var senderID *int64
	if msg.From != nil {
		senderID = &msg.From.ID
	}

	res := h.engine.Check(ctx, text, senderID)
	if !res.IsSpam() {
		return
	}

	if err := h.deleteMessage(ctx, c, msg); err != nil {
		h.deleteFailed.Add(1)
		slog.Error("Error deleting message", "error", err, "chat_id", msg.Chat.ID, "message_id", msg.ID)
		return
	}

	h.deleted.Add(1)
	slog.Info("Deleted spam message", "chat_id", msg.Chat.ID, "message_id", msg.ID,
		"rule", res.Reason.Rule, "match", res.Reason.Match, "text", shorten(text, 100))
}

// isOwnerCommand reports whether msg is a known command sent by the owner.
// Only those bypass moderation; a leading slash alone is not enough.
func (h *Handler) isOwnerCommand(msg *models.Message) bool {
	if msg.From == nil || !isBotCommand(msg) {
		return false
	}
	name, _, ok := parseCommand(msg.Text)
	if !ok {
		return false
	}
	if _, known := h.commands[name]; !known {
		return false
	}
	return h.checkAuthorization(msg.From.ID)
}

// isBotCommand reports whether Telegram marked the text as starting with a bot command
func isBotCommand(msg *models.Message) bool {
	return lo.ContainsBy(msg.Entities, func(e models.MessageEntity) bool {
		return e.Type == models.MessageEntityTypeBotCommand && e.Offset == 0
	})
}

// deleteMessage removes msg, retrying transient failures. Permission and
// "message not found" errors are final.
func (h *Handler) deleteMessage(ctx context.Context, c Client, msg *models.Message) error {
	var permanent error
	rep := repeater.NewDefault(max(h.cfg.DeleteRetries, 1), h.cfg.DeleteRetryDelay)
	err := rep.Do(ctx, func() error {
		ok, err := c.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: msg.Chat.ID, MessageID: msg.ID})
		switch {
		case errors.Is(err, bot.ErrorForbidden), errors.Is(err, bot.ErrorBadRequest):
			permanent = err
			return nil
		case err != nil:
			slog.Debug("Delete attempt failed", "error", err, "chat_id", msg.Chat.ID, "message_id", msg.ID)
			return err
		case !ok:
			return errDeleteRejected
		}
		return nil
	})
	if permanent != nil {
		err = permanent
	}
	if err != nil {
		return oops.With("chat_id", msg.Chat.ID, "message_id", msg.ID).Wrap(err)
	}
	return nil
}

// reply sends text back to the chat of msg, split to fit the message size limit
func (h *Handler) reply(ctx context.Context, c Client, msg *models.Message, text string) {
	for _, chunk := range splitMessage(text, maxMessageLength) {
		if _, err := c.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: chunk}); err != nil {
			slog.Error("Failed to send reply", "error", err, "chat_id", msg.Chat.ID)
			return
		}
	}
}

func (h *Handler) checkAuthorization(userID int64) bool {
	return h.store.IsOwner(userID)
}

const maxMessageLength = 4096

// splitMessage cuts text into chunks of at most limit runes, preferring line breaks
func splitMessage(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		runes := []rune(line)
		for len(runes) > 0 {
			room := limit - currentLen
			if len(runes) <= room {
				current.WriteString(string(runes))
				currentLen += len(runes)
				break
			}
			if currentLen > 0 {
				flush()
				continue
			}
			current.WriteString(string(runes[:limit]))
			currentLen = limit
			runes = runes[limit:]
			flush()
		}
	}
	flush()
	return chunks
}

func shorten(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
