// Package setup bootstraps application dependencies in order and tears them
// down in reverse.
package setup

import (
	"context"
	"log"
	"time"

	"github.com/filmgatebot/filmgate/internal/gate"
	"github.com/filmgatebot/filmgate/internal/setup/config"
	"github.com/filmgatebot/filmgate/internal/sheets"
	"github.com/filmgatebot/filmgate/internal/store"
	"github.com/filmgatebot/filmgate/internal/telegram"
	"go.uber.org/zap"
)

// App bundles all core dependencies and services needed by the application.
type App struct {
	Config    *config.Config       // Application configuration
	Logger    *zap.Logger          // Main application logger
	Backing   *sheets.Client       // Spreadsheet backing store adapter
	Store     *store.Store         // In-memory caches and sync engine
	Telegram  *telegram.Client     // Messaging gateway and event source
	Verifier  *gate.Verifier       // Channel membership verifier
	Referrals *gate.ReferralEngine // Referral credit engine
	Resolver  *gate.Resolver       // Quota-gated catalog lookup
}

// InitializeApp bootstraps all application dependencies in the correct
// order, ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context) (*App, error) {
	cfg, configDir, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := NewLogger(&cfg.Debug)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded configuration",
		zap.String("configDir", configDir),
		zap.Int("channels", len(cfg.Gate.Channels)))

	backing, err := sheets.NewClient(ctx, &cfg.Sheets, cfg.Retry, logger)
	if err != nil {
		return nil, err
	}

	st := store.New(backing, store.Config{
		UsersTable:         cfg.Sheets.UsersTable,
		MoviesTable:        cfg.Sheets.MoviesTable,
		JoinRequestsTable:  cfg.Sheets.JoinRequestsTable,
		LedgerRefresh:      time.Duration(cfg.Sync.LedgerRefresh) * time.Second,
		CatalogRefresh:     time.Duration(cfg.Sync.CatalogRefresh) * time.Second,
		JoinRequestRefresh: time.Duration(cfg.Sync.JoinRequestRefresh) * time.Second,
		FlushInterval:      time.Duration(cfg.Sync.FlushInterval) * time.Second,
		FlushMaxAttempts:   cfg.Sync.FlushMaxAttempts,
		JoinRequestLimit:   cfg.Sync.JoinRequestLimit,
		StartCredits:       cfg.Rewards.StartCredits,
	}, logger)

	tg, err := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.PollTimeout, logger)
	if err != nil {
		return nil, err
	}

	verifier := gate.NewVerifier(tg, st, cfg.Gate.Channels, cfg.Gate.DispatchPerSecond, logger)
	referrals := gate.NewReferralEngine(st, tg, cfg.Rewards.ReferralCredits, logger)
	resolver := gate.NewResolver(st, verifier, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Backing:   backing,
		Store:     st,
		Telegram:  tg,
		Verifier:  verifier,
		Referrals: referrals,
		Resolver:  resolver,
	}, nil
}

// Cleanup ensures graceful shutdown: the store flushes its pending writes
// before the logger is synced.
func (a *App) Cleanup() {
	a.Store.Stop()

	if err := a.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}
}
