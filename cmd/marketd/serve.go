package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marketdash/marketd/pkg/api"
	"github.com/marketdash/marketd/pkg/auth"
	"github.com/marketdash/marketd/pkg/cache"
	"github.com/marketdash/marketd/pkg/coingecko"
	"github.com/marketdash/marketd/pkg/config"
	"github.com/marketdash/marketd/pkg/logging"
	"github.com/marketdash/marketd/pkg/market"
	"github.com/marketdash/marketd/pkg/quota"
	"github.com/marketdash/marketd/pkg/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger := logging.Setup(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	users, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer users.Close()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	tracker := quota.NewTracker(users, cfg.Quota.FreeDailyLimit, loc, logging.NewLogger("quota"))
	fetcher := coingecko.New(coingecko.Config{
		BaseURL:       cfg.Upstream.BaseURL,
		Timeout:       cfg.Upstream.Timeout,
		RatePerSecond: cfg.Upstream.RatePerSecond,
		Burst:         cfg.Upstream.Burst,
	})
	marketSvc := market.New(cache.New[[]coingecko.MarketItem](), tracker, fetcher, cfg.Cache.TTL)
	server := api.New(cfg.Listen, users, tokens, marketSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("listen", cfg.Listen).
		Str("db_path", cfg.DBPath).
		Str("upstream", cfg.Upstream.BaseURL).
		Int("free_daily_limit", cfg.Quota.FreeDailyLimit).
		Msg("Starting marketd")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(ctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
