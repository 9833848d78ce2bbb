// Package app composes the relay from its parts: configuration, logging,
// tracing, storage, transport pacing, and the thread service. Embedders
// provide the concrete transport client and directory lookups; everything
// else is assembled here.
package app

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/modmailhq/go-modmail-backend/internal/attachments"
	"github.com/modmailhq/go-modmail-backend/internal/config"
	"github.com/modmailhq/go-modmail-backend/internal/format"
	"github.com/modmailhq/go-modmail-backend/internal/hooks"
	"github.com/modmailhq/go-modmail-backend/internal/observability"
	"github.com/modmailhq/go-modmail-backend/internal/repo"
	"github.com/modmailhq/go-modmail-backend/internal/scheduler"
	"github.com/modmailhq/go-modmail-backend/internal/services"
	"github.com/modmailhq/go-modmail-backend/internal/snippets"
	"github.com/modmailhq/go-modmail-backend/internal/sysutil"
	"github.com/modmailhq/go-modmail-backend/internal/transport"
)

// Version is stamped at build time.
var Version = "dev"

// App is the assembled relay.
type App struct {
	Cfg     config.Config
	DB      *gorm.DB
	Threads *services.ThreadService
	Hooks   *hooks.Bus
	Timers  *scheduler.Timers

	shutdownTracing func(context.Context) error
}

// New assembles the relay around the given transport client and directory
// lookups. It opens the database, applies migrations, configures logging and
// tracing, and wires the thread service.
func New(ctx context.Context, cfg config.Config, client transport.Client, members services.MemberResolver, blocklist services.Blocklist) (*App, error) {
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty)

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, Version)
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if err := os.MkdirAll(cfg.AttachmentDir, 0o755); err != nil {
		return nil, fmt.Errorf("attachment dir: %w", err)
	}

	if cfg.SendRatePerSecond > 0 {
		client = transport.RateLimited(client, rate.NewLimiter(rate.Limit(cfg.SendRatePerSecond), cfg.SendBurst))
	}

	bus := hooks.NewBus()
	timers := scheduler.NewTimers()

	threads := &services.ThreadService{
		DB:        db,
		Transport: client,
		Formatter: &format.Default{
			AnonymousName: cfg.AnonymousName,
			ShowRoleNames: cfg.ShowRoleNames,
		},
		Hooks:       bus,
		Timers:      timers,
		Snippets:    &snippets.GormStore{DB: db},
		Attachments: &attachments.DiskStore{BaseDir: cfg.AttachmentDir, BaseURL: cfg.AttachmentURL},
		Members:     members,
		Blocklist:   blocklist,
		Cfg:         cfg,
	}

	return &App{
		Cfg:             cfg,
		DB:              db,
		Threads:         threads,
		Hooks:           bus,
		Timers:          timers,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Shutdown stops armed timers and flushes tracing.
func (a *App) Shutdown(ctx context.Context) error {
	a.Timers.Stop()
	if a.shutdownTracing != nil {
		return a.shutdownTracing(ctx)
	}
	return nil
}
