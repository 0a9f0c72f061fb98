package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	moderationDomain "github.com/reshetovitsme/channel-guard/internal/modules/moderation/domain"
	moderationService "github.com/reshetovitsme/channel-guard/internal/modules/moderation/service"
	rulesService "github.com/reshetovitsme/channel-guard/internal/modules/rules/service"
	"github.com/reshetovitsme/channel-guard/internal/shared/config"
	telegramHandler "github.com/reshetovitsme/channel-guard/internal/transport/telegram"
	"github.com/samber/oops"
	sloghttp "github.com/samber/slog-http"
)

// Server exposes liveness and moderation counters over HTTP
type Server struct {
	cfg      *config.Config
	store    *rulesService.Store
	engine   *moderationService.Engine
	telegram *telegramHandler.Handler
	logger   *slog.Logger
	started  time.Time

	mu     sync.Mutex
	server *http.Server
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Status       string                 `json:"status"`
	Uptime       string                 `json:"uptime"`
	DocumentPath string                 `json:"document_path"`
	Version      uint64                 `json:"rules_version"`
	Rules        RuleCounts             `json:"rules"`
	Moderation   moderationDomain.Stats `json:"moderation"`
	Telegram     telegramHandler.Stats  `json:"telegram"`
}

// RuleCounts summarizes the rule set without exposing it
type RuleCounts struct {
	SpamPatterns     int  `json:"spam_patterns"`
	BannedWords      int  `json:"banned_words"`
	WhitelistedUsers int  `json:"whitelisted_users"`
	OwnerConfigured  bool `json:"owner_configured"`
}

// New creates a new HTTP server
func New(cfg *config.Config, store *rulesService.Store, engine *moderationService.Engine, telegram *telegramHandler.Handler) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		engine:   engine,
		telegram: telegram,
		logger:   slog.Default(),
		started:  time.Now(),
	}
}

// SetLogger sets the logger
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Handler returns the routes wrapped in logging and recovery middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)

	handler := sloghttp.Recovery(mux)
	handler = sloghttp.New(s.logger)(handler)
	return handler
}

// Start serves until Stop is called. An empty address disables the server.
func (s *Server) Start() error {
	if s.cfg.HTTPAddr == "" {
		s.logger.Info("Status server disabled")
		return nil
	}

	s.mu.Lock()
	s.server = &http.Server{
		Addr:         s.cfg.HTTPAddr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	server := s.server
	s.mu.Unlock()

	s.logger.Info("Status server starting", "addr", s.cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return oops.With("addr", s.cfg.HTTPAddr).Wrap(err)
	}
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rules := s.store.Snapshot()

	resp := StatusResponse{
		Status:       "ok",
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		DocumentPath: s.store.Path(),
		Version:      s.store.Version(),
		Rules: RuleCounts{
			SpamPatterns:     len(rules.SpamPatterns),
			BannedWords:      len(rules.BannedWords),
			WhitelistedUsers: len(rules.WhitelistedUsers),
			OwnerConfigured:  rules.OwnerID != 0,
		},
		Moderation: s.engine.Stats(),
		Telegram:   s.telegram.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Error encoding status", "error", err)
	}
}
