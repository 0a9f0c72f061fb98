package di

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	moderationService "github.com/reshetovitsme/channel-guard/internal/modules/moderation/service"
	rulesRepo "github.com/reshetovitsme/channel-guard/internal/modules/rules/repository"
	rulesService "github.com/reshetovitsme/channel-guard/internal/modules/rules/service"
	"github.com/reshetovitsme/channel-guard/internal/shared/config"
	httpServer "github.com/reshetovitsme/channel-guard/internal/transport/http"
	telegramHandler "github.com/reshetovitsme/channel-guard/internal/transport/telegram"
	"github.com/samber/do/v2"
	"github.com/samber/oops"
)

// Setup initializes the dependency injection container. cfg is loaded by
// the caller because logging depends on it.
func Setup(cfg *config.Config) (do.Injector, error) {
	injector := do.New()

	do.ProvideValue(injector, cfg)

	// Register Rules Repository
	do.Provide(injector, func(i do.Injector) (rulesRepo.Repository, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo, err := rulesRepo.NewFileStorage(cfg.DocumentPath)
		if err != nil {
			return nil, oops.With("document_path", cfg.DocumentPath, "context", "failed to initialize rules repository").Wrap(err)
		}
		return repo, nil
	})

	// Register Rules Store
	do.Provide(injector, func(i do.Injector) (*rulesService.Store, error) {
		repo := do.MustInvoke[rulesRepo.Repository](i)
		store, err := rulesService.New(repo)
		if err != nil {
			return nil, oops.With("document_path", repo.Path(), "context", "failed to load rules").Wrap(err)
		}
		return store, nil
	})

	// Register Moderation Engine
	do.Provide(injector, func(i do.Injector) (*moderationService.Engine, error) {
		cfg := do.MustInvoke[*config.Config](i)
		store := do.MustInvoke[*rulesService.Store](i)

		if err := moderationService.Validate(store.Snapshot()); err != nil {
			slog.Warn("Some spam patterns are invalid and will be skipped", "error", err)
		}

		engine, err := moderationService.New(store, moderationService.Options{
			CacheSize:    cfg.PatternCacheSize,
			MatchTimeout: cfg.MatchTimeout,
		})
		if err != nil {
			return nil, oops.With("context", "failed to create moderation engine").Wrap(err)
		}
		return engine, nil
	})

	// Register Telegram Handler
	do.Provide(injector, func(i do.Injector) (*telegramHandler.Handler, error) {
		cfg := do.MustInvoke[*config.Config](i)
		store := do.MustInvoke[*rulesService.Store](i)
		engine := do.MustInvoke[*moderationService.Engine](i)
		return telegramHandler.New(cfg, store, engine), nil
	})

	// Register HTTP Server
	do.Provide(injector, func(i do.Injector) (*httpServer.Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		store := do.MustInvoke[*rulesService.Store](i)
		engine := do.MustInvoke[*moderationService.Engine](i)
		handler := do.MustInvoke[*telegramHandler.Handler](i)
		server := httpServer.New(cfg, store, engine, handler)
		server.SetLogger(slog.Default())
		return server, nil
	})

	// Register Bot (needs to be initialized after handlers are ready)
	do.Provide(injector, func(i do.Injector) (*bot.Bot, error) {
		cfg := do.MustInvoke[*config.Config](i)
		store := do.MustInvoke[*rulesService.Store](i)
		handler := do.MustInvoke[*telegramHandler.Handler](i)

		opts := []bot.Option{
			bot.WithDefaultHandler(handler.HandleUpdate),
			bot.WithServerURL(cfg.TelegramAPIURL),
			bot.WithErrorsHandler(func(err error) {
				slog.Error("Telegram polling error", "error", err)
			}),
		}

		b, err := bot.New(store.Token(), opts...)
		if err != nil {
			return nil, oops.With("context", "failed to create telegram bot").Wrap(err)
		}

		handler.RegisterCommands(b)
		return b, nil
	})

	return injector, nil
}

// Shutdown gracefully shuts down all services
func Shutdown(ctx context.Context, injector do.Injector) error {
	if server, err := do.Invoke[*httpServer.Server](injector); err == nil && server != nil {
		if err := server.Stop(ctx); err != nil {
			slog.Error("Error stopping status server", "error", err)
		}
	}

	if report := injector.ShutdownWithContext(ctx); report != nil && !report.Succeed {
		return oops.With("context", "injector shutdown").Errorf("%s", report.Error())
	}
	return nil
}
