// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/gameprice/scraper/internal/archive"
	archivegcs "github.com/gameprice/scraper/internal/archive/gcs"
	"github.com/gameprice/scraper/internal/catalog"
	systemclock "github.com/gameprice/scraper/internal/clock/system"
	"github.com/gameprice/scraper/internal/config"
	"github.com/gameprice/scraper/internal/history"
	uuidgen "github.com/gameprice/scraper/internal/id/uuid"
	"github.com/gameprice/scraper/internal/insight"
	"github.com/gameprice/scraper/internal/insight/gemini"
	"github.com/gameprice/scraper/internal/publisher"
	pubsubpub "github.com/gameprice/scraper/internal/publisher/pubsub"
	"github.com/gameprice/scraper/internal/scraper"
	"github.com/gameprice/scraper/internal/scraper/headless"
	"github.com/gameprice/scraper/internal/scraper/static"
	"github.com/gameprice/scraper/internal/service"
	"github.com/gameprice/scraper/internal/store/memory"
	"github.com/gameprice/scraper/internal/store/postgres"
)

// App holds the shared, long-lived services for the engine. It is built once
// at startup and torn down in reverse order by Close.
type App struct {
	Logger  *zap.Logger
	Repo    catalog.Repository
	Service *service.Service

	renderer  *headless.Renderer
	publisher *pubsubpub.Publisher
	gcsClient *gcsclient.Client
}

// New wires every subsystem from configuration, failing fast when a critical
// collaborator cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Logger: logger}

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Repo = repo

	arch, gcsClient, err := newArchive(ctx, cfg)
	if err != nil {
		repo.Close()
		return nil, err
	}
	a.gcsClient = gcsClient

	var renderer scraper.Renderer
	if cfg.Scraper.HeadlessEnabled {
		r, err := headless.New(headless.Config{
			MaxParallel:       cfg.Scraper.MaxParallel,
			UserAgent:         cfg.Scraper.UserAgent,
			NavigationTimeout: cfg.Scraper.NavTimeout(),
			Archive:           arch,
			Logger:            logger,
		})
		if err != nil {
			a.closePartial()
			return nil, fmt.Errorf("initialize renderer: %w", err)
		}
		a.renderer = r
		renderer = r
	} else {
		logger.Info("headless rendering disabled, scrapers start on fallback path")
	}

	getter := static.New(static.Config{
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   cfg.Scraper.StaticTimeout(),
	})

	steam := scraper.NewSteam(scraper.SteamConfig{
		BaseURL:         cfg.Steam.BaseURL,
		APIBaseURL:      cfg.Steam.APIBaseURL,
		CountryCode:     cfg.Steam.CountryCode,
		SelectorTimeout: time.Duration(cfg.Steam.SelectorTimeoutSeconds) * time.Second,
		QPS:             cfg.Steam.QPS,
	}, renderer, getter, logger)

	epic := scraper.NewEpic(scraper.EpicConfig{
		BaseURL:         cfg.Epic.BaseURL,
		Locale:          cfg.Epic.Locale,
		SelectorTimeout: time.Duration(cfg.Epic.SelectorTimeoutSeconds) * time.Second,
		ScrollPasses:    cfg.Epic.ScrollPasses,
		QPS:             cfg.Epic.QPS,
	}, renderer, getter, logger)

	clock := systemclock.New()
	ids := uuidgen.New()

	pub, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		a.closePartial()
		return nil, err
	}
	a.publisher = pub

	var events publisher.Publisher
	if pub != nil {
		events = pub
	}
	engine := history.New(repo, clock, ids, events, history.Config{
		DropThresholdPercent: cfg.Notify.DropThresholdPercent,
		Topic:                cfg.PubSub.TopicName,
	}, logger)

	merger := catalog.NewMerger(repo, clock, ids, logger)

	var insights insight.Generator = insight.Disabled{}
	if cfg.Insight.APIKey != "" {
		insights = gemini.New(gemini.Config{
			APIKey: cfg.Insight.APIKey,
			Model:  cfg.Insight.Model,
		})
		logger.Info("AI insights enabled", zap.String("model", cfg.Insight.Model))
	}

	a.Service = service.New(steam, epic, merger, engine, repo, insights, clock, logger)
	return a, nil
}

func newRepository(ctx context.Context, cfg config.Config) (catalog.Repository, error) {
	switch cfg.DB.Provider {
	case "postgres":
		repo, err := postgres.New(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("initialize postgres repository: %w", err)
		}
		return repo, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown db provider: %s", cfg.DB.Provider)
	}
}

func newArchive(ctx context.Context, cfg config.Config) (archive.Provider, *gcsclient.Client, error) {
	switch cfg.Archive.Provider {
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize gcs client: %w", err)
		}
		arch, err := archivegcs.New(client, cfg.Archive.GCSBucket, cfg.Archive.Prefix)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("initialize gcs archive: %w", err)
		}
		return arch, client, nil
	case "", "none":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown archive provider: %s", cfg.Archive.Provider)
	}
}

func newPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pubsubpub.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		logger.Info("pub/sub not configured, notification events disabled")
		return nil, nil
	}
	pub, err := pubsubpub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("initialize pub/sub publisher: %w", err)
	}
	return pub, nil
}

// Close releases every held resource. Safe to call once after a successful
// New.
func (a *App) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.Logger.Warn("close publisher", zap.Error(err))
		}
	}
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.Logger.Warn("close gcs client", zap.Error(err))
		}
	}
	if a.Repo != nil {
		a.Repo.Close()
	}
}

func (a *App) closePartial() {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.gcsClient != nil {
		_ = a.gcsClient.Close()
	}
	if a.Repo != nil {
		a.Repo.Close()
	}
}
