// Package server initializes and runs the token service: storage, the auth
// facade, the gRPC and HTTP transports and the cleanup scheduler.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/permitauth/internal/logging"
	"github.com/dmitrijs2005/permitauth/internal/server/config"
	"github.com/dmitrijs2005/permitauth/internal/server/rest"
	"github.com/dmitrijs2005/permitauth/internal/server/services"
	"github.com/dmitrijs2005/permitauth/internal/server/shared/db"
	"github.com/dmitrijs2005/permitauth/internal/timex"

	gs "github.com/dmitrijs2005/permitauth/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	storage *db.Storage
	auth    *services.AuthService
	janitor *services.Janitor
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(c.LogBackend, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, err
	}

	storage, err := db.Open(ctx, c.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	clock := timex.SystemClock{}
	auth, err := services.NewAuthService(storage.Runner, storage.Repos, c, clock, logger)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	janitor := services.NewJanitor(storage.Runner, storage.Repos, clock, logger,
		c.RefreshTokenValidityDuration, c.LoginAttemptRetention)

	return &App{config: c, logger: logger, storage: storage, auth: auth, janitor: janitor}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// startScheduler runs the janitor on the configured cron schedule until
// ctx is done, then waits for a running sweep to finish.
func (app *App) startScheduler(ctx context.Context) error {
	if app.config.CleanupSchedule == "" {
		app.logger.Info(ctx, "cleanup schedule disabled")
		<-ctx.Done()
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(app.config.CleanupSchedule, func() {
		if _, err := app.janitor.Sweep(ctx); err != nil {
			app.logger.Error(ctx, "scheduled cleanup failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}

	c.Start()
	app.logger.Info(ctx, "cleanup scheduled", "schedule", app.config.CleanupSchedule)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Run serves until a signal arrives or one of the servers fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	grpcServer := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.auth)
	httpServer := rest.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.auth,
		app.storage.Ping, app.config.AllowedOrigins)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return grpcServer.Run(ctx) })
	g.Go(func() error { return httpServer.Run(ctx) })
	g.Go(func() error { return app.startScheduler(ctx) })

	err := g.Wait()
	if cerr := app.storage.Close(); cerr != nil {
		app.logger.Error(ctx, "closing storage", "err", cerr)
	}
	app.logger.Info(ctx, "App stopped")
	return err
}
