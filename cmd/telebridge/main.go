// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/aiku/telebridge/pkg/bridge"
	"github.com/aiku/telebridge/pkg/config"
	"github.com/aiku/telebridge/pkg/identity"
	"github.com/aiku/telebridge/pkg/metrics"
	"github.com/aiku/telebridge/pkg/platform"
	"github.com/aiku/telebridge/pkg/platform/mattermost"
	"github.com/aiku/telebridge/pkg/platform/telegram"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "telebridge",
		Usage: "bidirectional Mattermost <-> Telegram message bridge",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the TOML config file",
				EnvVars: []string{"TELEBRIDGE_CONFIG"},
			},
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "write a sample config file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Value: "./telebridge.toml",
						Usage: "where to write the sample config",
					},
				},
				Action: func(c *cli.Context) error {
					path := c.String("path")
					if err := config.Init(path); err != nil {
						return err
					}
					fmt.Printf("wrote %s\n", path)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	log := newLogger(cfg)
	log.Info().Msg("Starting telebridge")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mapper, err := identity.Open(cfg.Bridge.DataDir, log)
	if err != nil {
		return fmt.Errorf("open identity store: %w", err)
	}
	defer func() {
		if err := mapper.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close identity store")
		}
	}()

	policy := platform.RetryPolicy{
		MaxAttempts:     cfg.Bridge.RetryMaxAttempts,
		BaseDelay:       time.Duration(cfg.Bridge.RetryBaseMS) * time.Millisecond,
		MaxDelay:        time.Duration(cfg.Bridge.RetryMaxMS) * time.Millisecond,
		Jitter:          0.2,
		HonorServerHint: true,
	}

	mm := mattermost.New(mattermost.Config{
		ServerURL:    cfg.Mattermost.ServerURL,
		Token:        cfg.Mattermost.Token,
		ChannelID:    cfg.Mattermost.ChannelID,
		MaxFileBytes: cfg.Mattermost.MaxFileBytes,
	}, log)
	if err := mm.Connect(ctx); err != nil {
		return fmt.Errorf("connect to Mattermost: %w", err)
	}

	tg := telegram.New(telegram.Config{
		Token:        cfg.Telegram.Token,
		ChatID:       cfg.Telegram.ChatID,
		APIURL:       cfg.Telegram.APIURL,
		PollTimeout:  cfg.PollTimeout(),
		MaxFileBytes: cfg.Telegram.MaxFileBytes,
	}, log)

	callTimeout := 2 * cfg.PollTimeout()
	mmAdapter := platform.NewAdapter(mm, cfg.Mattermost.RatePerSec, cfg.Mattermost.RateBurst, policy, callTimeout, log)
	tgAdapter := platform.NewAdapter(tg, cfg.Telegram.RatePerSec, cfg.Telegram.RateBurst, policy, callTimeout, log)
	mmAdapter.SetRetryHook(func() { metrics.Retries.WithLabelValues(mm.Name()).Inc() })
	tgAdapter.SetRetryHook(func() { metrics.Retries.WithLabelValues(tg.Name()).Inc() })

	engine := bridge.NewEngine(mapper,
		bridge.Endpoint{Adapter: mmAdapter, Push: mm},
		bridge.Endpoint{Adapter: tgAdapter, Poll: tg},
		bridge.Options{
			QueueSize:     cfg.Bridge.QueueSize,
			MediaWorkers:  cfg.Bridge.MediaWorkers,
			ShutdownGrace: cfg.ShutdownGrace(),
		}, log)

	go func() {
		if err := bridge.ServeAdmin(ctx, cfg.Bridge.AdminAddr, log); err != nil {
			log.Error().Err(err).Msg("Admin endpoint failed")
		}
	}()

	if err := engine.Run(ctx); err != nil {
		return err
	}
	log.Info().Msg("Shutdown complete")
	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out zerolog.Logger
	if cfg.Logging.Pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		out = zerolog.New(os.Stderr)
	}
	return out.Level(level).With().Timestamp().Logger()
}
