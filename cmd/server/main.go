package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/reshetovitsme/channel-guard/internal/di"
	rulesDomain "github.com/reshetovitsme/channel-guard/internal/modules/rules/domain"
	rulesRepo "github.com/reshetovitsme/channel-guard/internal/modules/rules/repository"
	rulesService "github.com/reshetovitsme/channel-guard/internal/modules/rules/service"
	"github.com/reshetovitsme/channel-guard/internal/shared/config"
	sharedErrors "github.com/reshetovitsme/channel-guard/internal/shared/errors"
	"github.com/reshetovitsme/channel-guard/internal/shared/logging"
	httpServer "github.com/reshetovitsme/channel-guard/internal/transport/http"
	"github.com/samber/do/v2"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		return 1
	}

	logger, closer := logging.New(logging.Options{
		Debug:      cfg.Debug,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	defer closer.Close()
	slog.SetDefault(logger)

	// Setup dependency injection
	injector, err := di.Setup(cfg)
	if err != nil {
		slog.Error("Failed to setup dependency injection", "error", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		if err := di.Shutdown(shutdownCtx, injector); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}()

	store, err := do.Invoke[*rulesService.Store](injector)
	if err != nil {
		if errors.Is(err, sharedErrors.ErrMissingBotToken) {
			writeTemplate(injector)
			slog.Error("Please set up your bot token in the rules document", "path", cfg.DocumentPath)
			return 1
		}
		slog.Error("Failed to load rules", "error", err)
		return 1
	}

	b, err := do.Invoke[*bot.Bot](injector)
	if err != nil {
		slog.Error("Failed to start telegram bot", "error", err)
		return 1
	}
	server := do.MustInvoke[*httpServer.Server](injector)

	if cfg.WatchDocument {
		go func() {
			if err := store.Watch(ctx); err != nil {
				slog.Error("Rules document watcher stopped", "error", err)
			}
		}()
	}

	go func() {
		if err := server.Start(); err != nil {
			slog.Error("Status server failed", "error", err)
			cancel()
		}
	}()

	slog.Info("Application started",
		"document", store.Path(),
		"owner_configured", store.OwnerID() != 0,
		"app_env", cfg.AppEnv,
		"http_addr", cfg.HTTPAddr,
	)
	slog.Info("Press Ctrl+C to stop")

	// blocks until ctx is cancelled
	b.Start(ctx)

	slog.Info("Shutting down...")
	return 0
}

// writeTemplate creates a default document the operator can fill in, unless
// one already exists
func writeTemplate(injector do.Injector) {
	repo, err := do.Invoke[rulesRepo.Repository](injector)
	if err != nil {
		return
	}
	if _, err := os.Stat(repo.Path()); !os.IsNotExist(err) {
		return
	}
	if err := repo.Save(rulesDomain.Default()); err != nil {
		slog.Warn("Failed to write document template", "path", repo.Path(), "error", err)
		return
	}
	slog.Info("Wrote document template", "path", repo.Path())
}
