// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/starford/searchgate/internal/api"
	"github.com/starford/searchgate/internal/mcpserver"
	"github.com/starford/searchgate/internal/metrics"
	"github.com/starford/searchgate/internal/search"
)

func (a *application) init() (*slog.Logger, error) {
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := a.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if a.logOutput == nil {
		a.logOutput = os.Stdout
	}

	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger, nil
}

func newSearchClient(cfg *Config, m *metrics.Metrics) (*search.Client, error) {
	return search.NewClient(search.Config{
		BaseURL:          cfg.Search.BaseURL,
		APIKeyName:       cfg.Search.APIKeyName,
		APIKeyValue:      cfg.Search.APIKeyValue,
		QueryParam:       cfg.Search.QueryParam,
		Timeout:          cfg.Search.Timeout,
		MaxRequestBytes:  cfg.Search.MaxRequestBytes,
		MaxResponseBytes: cfg.Search.MaxResponseBytes,
	}, m)
}

// Run starts the HTTP server with the given options and blocks until ctx is
// cancelled, a shutdown signal arrives or the server fails.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	logger, err := app.init()
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.String("cors_policy", cfg.CORS.Policy),
		slog.Bool("search_configured", cfg.Search.Configured()),
		slog.Bool("metrics_enabled", cfg.Metrics.Enabled))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	searchHandler := app.searchHandler
	if searchHandler == nil {
		client, err := newSearchClient(cfg, m)
		if err != nil {
			return fmt.Errorf("init search client: %w", err)
		}
		searchHandler = search.NewRouter(search.NewHandler(client, logger))
	}

	router := api.NewRouter(api.Deps{
		Search: searchHandler,
		CORS: api.CORSPolicy{
			AnyOrigin:        cfg.CORS.AllowsAnyOrigin(),
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			ExposedHeaders:   cfg.CORS.ExposedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		},
		Logger:      logger,
		Metrics:     m,
		MetricsPath: cfg.Metrics.Path,
	})

	ln := app.listener
	if ln == nil {
		ln, err = net.Listen("tcp", cfg.App.HTTP.Address())
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	port := cfg.App.HTTP.Port
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	logger.Info(fmt.Sprintf("Server running on port %d", port), slog.Int("port", port))

	httpServer := &http.Server{
		Handler: router,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP exposes the upstream search as an MCP tool over stdio. Logs go to
// stderr unless WithLogOutput says otherwise, because stdout carries the protocol.
func ServeMCP(opts ...Option) error {
	app := &application{logOutput: os.Stderr}

	for _, opt := range opts {
		opt(app)
	}

	logger, err := app.init()
	if err != nil {
		return err
	}

	client, err := newSearchClient(app.config, nil)
	if err != nil {
		return fmt.Errorf("init search client: %w", err)
	}
	if !client.Configured() {
		logger.Warn("search upstream not configured; web_search calls will fail")
	}

	logger.Info("Serving MCP over stdio")
	return mcpserver.New(client).ServeStdio()
}
