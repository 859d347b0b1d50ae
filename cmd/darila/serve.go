package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/darila/internal/api"
	"github.com/erazemk/darila/internal/broadcast"
	"github.com/erazemk/darila/internal/config"
	"github.com/erazemk/darila/internal/db"
	"github.com/erazemk/darila/internal/fanout"
	"github.com/erazemk/darila/internal/guard"
	"github.com/erazemk/darila/internal/limiter"
	"github.com/erazemk/darila/internal/scrape"
	"github.com/erazemk/darila/internal/service"
	"github.com/erazemk/darila/internal/store"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and live socket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := opts.startLogging(cmd)
			if err != nil {
				return err
			}
			defer closeLog()

			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = addr
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default from config, :8080)")
	return cmd
}

func serve(cfg *config.Config) error {
	database, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()

	// Idempotent.
	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}
	slog.Info("database ready", slog.String("driver", database.Dialect.String()))

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		// Generated on first run and kept in the settings table.
		jwtSecret, err = store.GetJWTSecret(context.Background(), database)
		if err != nil {
			return err
		}
	}

	hub := fanout.NewHub(cfg.SubscriberBuffer)
	core := &service.ItemGeneric{
		DB: database,
		Coordinator: &broadcast.Coordinator{
			Guard: guard.New(&store.Ledger{DB: database}, guard.Options{
				LockTimeout: cfg.LockTimeout,
				Retries:     cfg.StoreRetries,
			}),
			Publisher: hub,
		},
	}

	var lim *limiter.Limiter
	if cfg.RedisAddr != "" {
		client, closeRedis := limiter.NewRedis(cfg.RedisAddr, cfg.RedisUser, cfg.RedisPassword)
		defer closeRedis()
		lim = &limiter.Limiter{Redis: client, Limit: cfg.RateLimit, Window: cfg.RateWindow}
		slog.Info("visitor rate limiting enabled",
			slog.String("redis", cfg.RedisAddr),
			slog.Int("limit", cfg.RateLimit),
			slog.Duration("window", cfg.RateWindow),
		)
	}

	handler := api.NewRouter(api.Deps{
		DB:          database,
		Items:       service.Chain(core, lim, cfg.LimiterFailOpen),
		Hub:         hub,
		Scraper:     scrape.New(cfg.ScrapeTimeout),
		JWTSecret:   jwtSecret,
		TokenExpiry: cfg.TokenExpiry,
		CORSOrigins: cfg.CORSOrigins,
	})

	// No WriteTimeout: it would cut off live sockets, which manage their own
	// write deadlines.
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", slog.Any("error", err))
		}
	}()

	slog.Info("server started", slog.String("addr", cfg.ListenAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}
