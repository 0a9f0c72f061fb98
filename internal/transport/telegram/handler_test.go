package telegram

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	moderationService "github.com/reshetovitsme/channel-guard/internal/modules/moderation/service"
	"github.com/reshetovitsme/channel-guard/internal/modules/rules/domain"
	"github.com/reshetovitsme/channel-guard/internal/modules/rules/repository"
	rulesService "github.com/reshetovitsme/channel-guard/internal/modules/rules/service"
	"github.com/reshetovitsme/channel-guard/internal/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ownerID    int64 = 42
	chatID     int64 = -100123
	strangerID int64 = 7
)

// fakeClient records Bot API calls
type fakeClient struct {
	mu        sync.Mutex
	sent      []string
	deleted   []int
	deleteErr []error // returned in order, then deleteOK
	deleteOK  bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{deleteOK: true}
}

func (f *fakeClient) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params.Text)
	return &models.Message{}, nil
}

func (f *fakeClient) DeleteMessage(_ context.Context, params *bot.DeleteMessageParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, params.MessageID)
	if len(f.deleteErr) > 0 {
		err := f.deleteErr[0]
		f.deleteErr = f.deleteErr[1:]
		return false, err
	}
	return f.deleteOK, nil
}

func (f *fakeClient) replies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeClient) lastReply(t *testing.T) string {
	t.Helper()
	r := f.replies()
	require.NotEmpty(t, r, "expected a reply")
	return r[len(r)-1]
}

func (f *fakeClient) deleteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

func newTestHandler(t *testing.T, mutate func(d *domain.Document)) (*Handler, *rulesService.Store) {
	t.Helper()

	repo, err := repository.NewFileStorage(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	doc := domain.Default()
	doc.Token = "123:abc"
	doc.OwnerID = ownerID
	if mutate != nil {
		mutate(doc)
	}
	require.NoError(t, repo.Save(doc))

	store, err := rulesService.New(repo)
	require.NoError(t, err)

	engine, err := moderationService.New(store, moderationService.Options{})
	require.NoError(t, err)

	cfg := &config.Config{DeleteRetries: 3, DeleteRetryDelay: time.Millisecond}
	return New(cfg, store, engine), store
}

func channelPost(id int, text string) *models.Update {
	return &models.Update{ChannelPost: &models.Message{ID: id, Chat: models.Chat{ID: chatID}, Text: text}}
}

func groupMessage(id int, from int64, text string) *models.Update {
	return &models.Update{Message: &models.Message{
		ID:   id,
		From: &models.User{ID: from},
		Chat: models.Chat{ID: chatID},
		Text: text,
	}}
}

func TestHandler_DeletesSpamChannelPost(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	c := newFakeClient()

	h.processUpdate(context.Background(), c, channelPost(10, "Join here: https://t.me/+abc123"))

	assert.Equal(t, []int{10}, c.deleted)
	assert.Equal(t, Stats{Deleted: 1}, h.Stats())
	assert.Empty(t, c.replies(), "moderation never replies")
}

func TestHandler_KeepsCleanMessage(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	c := newFakeClient()

	h.processUpdate(context.Background(), c, channelPost(11, "Weekly digest is out, enjoy reading"))
	h.processUpdate(context.Background(), c, groupMessage(12, strangerID, "good morning"))

	assert.Zero(t, c.deleteCalls())
	assert.Equal(t, Stats{}, h.Stats())
}

func TestHandler_CaptionChecked(t *testing.T) {
	h, _ := newTestHandler(t, func(d *domain.Document) { d.BannedWords = []string{"casino"} })
	c := newFakeClient()

	update := &models.Update{ChannelPost: &models.Message{ID: 13, Chat: models.Chat{ID: chatID}, Caption: "Best Casino bonus"}}
	h.processUpdate(context.Background(), c, update)

	assert.Equal(t, []int{13}, c.deleted)
}

func TestHandler_EditedPostChecked(t *testing.T) {
	h, _ := newTestHandler(t, func(d *domain.Document) { d.BannedWords = []string{"scam"} })
	c := newFakeClient()

	update := &models.Update{EditedChannelPost: &models.Message{ID: 14, Chat: models.Chat{ID: chatID}, Text: "now a scam"}}
	h.processUpdate(context.Background(), c, update)

	assert.Equal(t, []int{14}, c.deleted)
}

func TestHandler_WhitelistedSenderNotDeleted(t *testing.T) {
	h, _ := newTestHandler(t, func(d *domain.Document) {
		d.BannedWords = []string{"scam"}
		d.WhitelistedUsers = []int64{strangerID}
	})
	c := newFakeClient()

	h.processUpdate(context.Background(), c, groupMessage(15, strangerID, "scam scam"))
	assert.Zero(t, c.deleteCalls())

	h.processUpdate(context.Background(), c, groupMessage(16, strangerID+1, "scam scam"))
	assert.Equal(t, []int{16}, c.deleted)
}

func commandMessage(id int, from int64, text string) *models.Update {
	update := groupMessage(id, from, text)
	name, _, _ := strings.Cut(text, " ")
	update.Message.Entities = []models.MessageEntity{
		{Type: models.MessageEntityTypeBotCommand, Offset: 0, Length: utf8.RuneCountInString(name)},
	}
	return update
}

func TestHandler_OwnerCommandsNotModerated(t *testing.T) {
	h, _ := newTestHandler(t, func(d *domain.Document) { d.SpamPatterns = []string{`.*`} })
	c := newFakeClient()

	h.processUpdate(context.Background(), c, commandMessage(17, ownerID, "/addspam https://example.com"))
	assert.Zero(t, c.deleteCalls())
}

func TestHandler_CommandLookalikesModerated(t *testing.T) {
	tests := []struct {
		name   string
		update *models.Update
	}{
		{"slash and space", groupMessage(30, strangerID, "/ buy crypto")},
		{"double slash link", groupMessage(31, strangerID, "//https://spam.example")},
		{"command from non-owner", commandMessage(32, strangerID, "/addspam buy crypto")},
		{"unknown command from owner", commandMessage(33, ownerID, "/startXYZ buy crypto")},
		{"owner text without command entity", groupMessage(34, ownerID, "/addspam buy crypto")},
		{"command in channel post", &models.Update{ChannelPost: &models.Message{
			ID: 35, Chat: models.Chat{ID: chatID}, Text: "/start buy crypto",
			Entities: []models.MessageEntity{{Type: models.MessageEntityTypeBotCommand, Length: 6}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, nil)
			c := newFakeClient()

			h.processUpdate(context.Background(), c, tt.update)
			assert.Equal(t, 1, c.deleteCalls())
			assert.Empty(t, c.replies())
		})
	}
}

func TestHandler_EmptyUpdateIgnored(t *testing.T) {
	h, _ := newTestHandler(t, func(d *domain.Document) { d.SpamPatterns = []string{`.*`} })
	c := newFakeClient()

	h.processUpdate(context.Background(), c, &models.Update{})
	h.processUpdate(context.Background(), c, channelPost(18, ""))
	assert.Zero(t, c.deleteCalls())
}

func TestHandler_DeleteRetriesTransientErrors(t *testing.T) {
	h, _ := newTestHandler(t, func(d *domain.Document) { d.BannedWords = []string{"scam"} })
	c := newFakeClient()
	c.deleteErr = []error{errors.New("connection reset"), errors.New("timeout")}

	h.processUpdate(context.Background(), c, channelPost(19, "scam"))

	assert.Equal(t, 3, c.deleteCalls())
	assert.Equal(t, Stats{Deleted: 1}, h.Stats())
}

func TestHandler_DeleteForbiddenIsFinal(t *testing.T) {
	h, _ := newTestHandler(t, func(d *domain.Document) { d.BannedWords = []string{"scam"} })
	c := newFakeClient()
	c.deleteErr = []error{fmt.Errorf("%w, not enough rights", bot.ErrorForbidden)}

	h.processUpdate(context.Background(), c, channelPost(20, "scam"))

	assert.Equal(t, 1, c.deleteCalls(), "no retry on permission errors")
	assert.Equal(t, Stats{DeleteFailed: 1}, h.Stats())

	// next message is still processed
	h.processUpdate(context.Background(), c, channelPost(21, "scam"))
	assert.Equal(t, Stats{Deleted: 1, DeleteFailed: 1}, h.Stats())
}

func TestHandler_DeleteRejected(t *testing.T) {
	h, _ := newTestHandler(t, func(d *domain.Document) { d.BannedWords = []string{"scam"} })
	c := newFakeClient()
	c.deleteOK = false

	h.processUpdate(context.Background(), c, channelPost(22, "scam"))

	assert.Equal(t, 3, c.deleteCalls())
	assert.Equal(t, Stats{DeleteFailed: 1}, h.Stats())
}

func TestHandler_RuleChangeAppliesToNextMessage(t *testing.T) {
	h, store := newTestHandler(t, func(d *domain.Document) { d.SpamPatterns = []string{} })
	c := newFakeClient()

	h.processUpdate(context.Background(), c, channelPost(23, "crypto signals"))
	assert.Zero(t, c.deleteCalls())

	_, err := store.AddSpamPattern("crypto")
	require.NoError(t, err)

	h.processUpdate(context.Background(), c, channelPost(24, "crypto signals"))
	assert.Equal(t, []int{24}, c.deleted)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	lines := strings.Repeat("abcd\n", 5)
	chunks := splitMessage(lines, 10)
	assert.Equal(t, lines, strings.Join(chunks, ""))
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 10)
		assert.True(t, strings.HasSuffix(chunk, "\n"), "split on line boundaries")
	}

	long := strings.Repeat("я", 25)
	chunks = splitMessage(long, 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, long, strings.Join(chunks, ""))
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "abc", shorten("abc", 5))
	assert.Equal(t, "ab...", shorten("abcdef", 2))
	assert.Equal(t, "пр...", shorten("привет", 2))
}
