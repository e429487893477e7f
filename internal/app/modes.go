package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/futuresbot/internal/feed"
	"github.com/alanyoungcy/futuresbot/internal/server"
	"github.com/alanyoungcy/futuresbot/internal/server/handler"
)

// TradeMode runs the full trading stack: startup recovery, the venue
// position feed, and the HTTP API through which positions are opened.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	// Recovery must complete before any new saga starts: crashed sagas may
	// have left unprotected exposure behind.
	if err := deps.Orchestrator.Recover(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	// Venue position feed keeps the push cache warm.
	if a.cfg.Bybit.Enabled {
		wsFeed := feed.NewBybitPositionFeed(
			a.cfg.Bybit.WSURL,
			a.cfg.Bybit.APIKey,
			a.cfg.Bybit.APISecret,
			deps.PositionCache,
			a.logger,
		)
		g.Go(func() error {
			defer wsFeed.Close()
			return wsFeed.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		g.Go(func() error {
			return a.runServer(ctx, deps, deps.Orchestrator)
		})
	}

	return g.Wait()
}

// MonitorMode runs the feed and the read-only API without trading.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Bybit.Enabled {
		wsFeed := feed.NewBybitPositionFeed(
			a.cfg.Bybit.WSURL,
			a.cfg.Bybit.APIKey,
			a.cfg.Bybit.APISecret,
			deps.PositionCache,
			a.logger,
		)
		g.Go(func() error {
			defer wsFeed.Close()
			return wsFeed.Run(ctx)
		})
	}

	g.Go(func() error {
		return a.runServer(ctx, deps, nil)
	})

	return g.Wait()
}

// ServerMode runs only the HTTP API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	return a.runServer(ctx, deps, nil)
}

// runServer builds and runs the HTTP server, shutting it down gracefully
// when ctx is cancelled. opener is nil in read-only modes.
func (a *App) runServer(ctx context.Context, deps *Dependencies, opener handler.PositionOpener) error {
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(deps.PG, deps.Redis, a.logger),
		Positions: handler.NewPositionHandler(opener, deps.PositionStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:   a.cfg.Server.Port,
		APIKey: a.cfg.Server.APIKey,
	}, handlers, a.logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
