package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	moderationService "github.com/reshetovitsme/channel-guard/internal/modules/moderation/service"
	"github.com/reshetovitsme/channel-guard/internal/modules/rules/domain"
	"github.com/reshetovitsme/channel-guard/internal/modules/rules/repository"
	rulesService "github.com/reshetovitsme/channel-guard/internal/modules/rules/service"
	"github.com/reshetovitsme/channel-guard/internal/shared/config"
	telegramHandler "github.com/reshetovitsme/channel-guard/internal/transport/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *rulesService.Store, *moderationService.Engine) {
	t.Helper()

	repo, err := repository.NewFileStorage(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	doc := domain.Default()
	doc.Token = "123:secret-token"
	doc.OwnerID = 42
	doc.BannedWords = []string{"scam"}
	require.NoError(t, repo.Save(doc))

	store, err := rulesService.New(repo)
	require.NoError(t, err)
	engine, err := moderationService.New(store, moderationService.Options{})
	require.NoError(t, err)

	s := New(cfg, store, engine, telegramHandler.New(cfg, store, engine))
	s.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return s, store, engine
}

func TestServer_Health(t *testing.T) {
	s, _, _ := newTestServer(t, &config.Config{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServer_Status(t *testing.T) {
	s, store, engine := newTestServer(t, &config.Config{})
	engine.Check(context.Background(), "a scam", nil)
	engine.Check(context.Background(), "hello", nil)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-token")

	var status StatusResponse
	require.NoError(t, json.Unmarshal(raw, &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, store.Path(), status.DocumentPath)
	assert.Equal(t, RuleCounts{
		SpamPatterns:     len(domain.DefaultSpamPatterns),
		BannedWords:      1,
		WhitelistedUsers: 0,
		OwnerConfigured:  true,
	}, status.Rules)
	assert.Equal(t, uint64(2), status.Moderation.Checked)
	assert.Equal(t, uint64(1), status.Moderation.Spam)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer(t, &config.Config{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_DisabledWithEmptyAddr(t *testing.T) {
	s, _, _ := newTestServer(t, &config.Config{HTTPAddr: ""})
	assert.NoError(t, s.Start())
	assert.NoError(t, s.Stop(context.Background()))
}

func TestServer_StartStop(t *testing.T) {
	s, _, _ := newTestServer(t, &config.Config{HTTPAddr: "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.server != nil
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	assert.NoError(t, <-done)
}
