// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gatekeeper/internal/aichat"
	"github.com/bureau-foundation/gatekeeper/internal/bot"
	"github.com/bureau-foundation/gatekeeper/internal/control"
	"github.com/bureau-foundation/gatekeeper/internal/dashboard"
	"github.com/bureau-foundation/gatekeeper/internal/discord"
	"github.com/bureau-foundation/gatekeeper/internal/gate"
	"github.com/bureau-foundation/gatekeeper/internal/linkstore"
	"github.com/bureau-foundation/gatekeeper/internal/metrics"
	"github.com/bureau-foundation/gatekeeper/internal/revocation"
	"github.com/bureau-foundation/gatekeeper/internal/status"
	"github.com/bureau-foundation/gatekeeper/internal/verification"
	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/config"
	"github.com/bureau-foundation/gatekeeper/lib/credentials"
	"github.com/bureau-foundation/gatekeeper/lib/llm"
	"github.com/bureau-foundation/gatekeeper/lib/roblox"
	"github.com/bureau-foundation/gatekeeper/lib/service"
	"github.com/bureau-foundation/gatekeeper/lib/version"
)

// loadConfig resolves, loads, and validates the configuration.
func loadConfig(flagValue string) (*config.Config, error) {
	path, err := config.ResolvePath(flagValue)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s:\n%w", path, err)
	}
	return cfg, nil
}

func runServe(args []string) error {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := flags.String("config", "", "configuration file (default $"+config.PathVariable+")")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	level, _ := cfg.LogLevel()
	logger := newLogger(os.Stderr, level).With("environment", string(cfg.Environment))
	discord.RouteLibraryLogs(logger.With("component", "discordgo"))

	bundle, err := credentials.Load(cfg.Credentials.Path, cfg.Credentials.IdentityPath)
	if err != nil {
		return err
	}
	defer bundle.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, bundle, logger)
}

// serve wires every component and blocks until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, bundle *credentials.Bundle, logger *slog.Logger) error {
	realClock := clock.Real()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	instruments := metrics.New(registry)

	store, err := linkstore.Open(ctx, linkstore.Config{
		Path:     cfg.Storage.Path,
		PoolSize: cfg.Storage.PoolSize,
		Clock:    realClock,
		Logger:   logger.With("component", "linkstore"),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	robloxClient := roblox.NewClient(roblox.Config{
		UsersBaseURL:      cfg.Roblox.UsersBaseURL,
		GroupsBaseURL:     cfg.Roblox.GroupsBaseURL,
		GroupID:           cfg.Roblox.GroupID,
		RequestsPerSecond: cfg.Roblox.RequestsPerSecond,
		Timeout:           cfg.Roblox.Timeout,
		Logger:            logger.With("component", "roblox"),
	})

	gateway, err := discord.New(ctx, discord.Config{
		Token:   bundle.DiscordToken,
		GuildID: cfg.Discord.GuildID,
		Logger:  logger.With("component", "discord"),
	})
	if err != nil {
		return err
	}
	defer gateway.Close()

	if bundle.AdminSecret == nil && cfg.Verification.AdminIdentifier != "" {
		logger.Warn("admin bypass disabled: the credential bundle has no admin_secret")
	}
	machine, err := verification.New(verification.Config{
		Links:                  store,
		Identities:             robloxClient,
		Effects:                gateway,
		MemberRoleID:           cfg.Discord.MemberRoleID,
		UnverifiedRoleID:       cfg.Discord.UnverifiedRoleID,
		RequireGroupMembership: cfg.Verification.RequireGroupMembership,
		AdminIdentifier:        cfg.Verification.AdminIdentifier,
		AdminSecret:            bundle.AdminSecret,
		SessionTTL:             cfg.Verification.SessionTTL,
		Clock:                  realClock,
		Logger:                 logger.With("component", "verification"),
		Metrics:                instruments,
	})
	if err != nil {
		return err
	}

	accessGate, err := gate.New(gate.Config{
		Links:                 store,
		Channels:              gateway,
		SelfID:                gateway.SelfID(),
		VerificationChannelID: cfg.Discord.VerificationChannelID,
		RestrictedChannelIDs:  cfg.Discord.RestrictedChannelIDs,
		Clock:                 realClock,
		Logger:                logger.With("component", "gate"),
		Metrics:               instruments,
	})
	if err != nil {
		return err
	}

	routerConfig := bot.Config{
		Verifier:              machine,
		Gate:                  accessGate,
		Poster:                gateway,
		VerificationChannelID: cfg.Discord.VerificationChannelID,
		Logger:                logger.With("component", "bot"),
	}
	if bundle.GeminiAPIKey != nil {
		chatter, err := newChatter(cfg, bundle, gateway, realClock, logger, instruments)
		if err != nil {
			return err
		}
		routerConfig.Chatter = chatter
	} else {
		logger.Info("ai chat disabled: the credential bundle has no gemini_api_key")
	}
	router, err := bot.New(routerConfig)
	if err != nil {
		return err
	}

	statusConfig := status.Config{
		Store:    store,
		Sessions: machine.Sessions(),
		Clock:    realClock,
		Metrics:  instruments,
	}
	controlConfig := control.Config{Links: store, Logger: logger.With("component", "control")}
	var scheduler *revocation.Scheduler
	if cfg.Revocation.Enabled {
		scheduler, err = revocation.New(revocation.Config{
			Store:            store,
			Membership:       robloxClient,
			Guild:            gateway,
			MemberRoleID:     cfg.Discord.MemberRoleID,
			UnverifiedRoleID: cfg.Discord.UnverifiedRoleID,
			Interval:         cfg.Revocation.Interval,
			Clock:            realClock,
			Logger:           logger.With("component", "revocation"),
			Metrics:          instruments,
		})
		if err != nil {
			return err
		}
		statusConfig.Sweeps = scheduler
		controlConfig.Sweeper = scheduler
	}
	reporter, err := status.New(statusConfig)
	if err != nil {
		return err
	}
	controlConfig.Reporter = reporter

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var background sync.WaitGroup
	failures := make(chan error, 2)
	launch := func(name string, serveFunc func(context.Context) error) {
		background.Add(1)
		go func() {
			defer background.Done()
			if err := serveFunc(runCtx); err != nil {
				failures <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	if cfg.Dashboard.ListenAddress != "" {
		board, err := dashboard.New(dashboard.Config{
			Reporter: reporter,
			Gatherer: registry,
			Logger:   logger.With("component", "dashboard"),
		})
		if err != nil {
			return err
		}
		server := service.NewHTTPServer(service.HTTPServerConfig{
			Address: cfg.Dashboard.ListenAddress,
			Handler: board.Handler(),
			Logger:  logger.With("component", "dashboard"),
		})
		launch("dashboard", server.Serve)
	}

	if cfg.Control.SocketPath != "" {
		socket := service.NewSocketServer(cfg.Control.SocketPath, logger.With("component", "control"))
		if err := control.Register(socket, controlConfig); err != nil {
			return err
		}
		launch("control socket", socket.Serve)
	}

	if err := gateway.Start(runCtx, discord.Handlers{
		Message:     router.HandleMessage,
		Interaction: router.HandleInteraction,
		Slow:        bot.Slow,
	}); err != nil {
		cancel()
		background.Wait()
		return err
	}

	background.Add(1)
	go func() {
		defer background.Done()
		machine.Sessions().Run(runCtx)
	}()

	if scheduler != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			scheduler.Run(runCtx)
		}()
	}

	logger.Info("gatekeeper running",
		"version", version.Info(),
		"guild_id", cfg.Discord.GuildID,
		"bot_user_id", gateway.SelfID(),
		"revocation", cfg.Revocation.Enabled,
		"ai_chat", routerConfig.Chatter != nil,
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-failures:
		logger.Error("background server failed", "error", runErr)
	}
	cancel()
	background.Wait()
	return runErr
}

func newChatter(cfg *config.Config, bundle *credentials.Bundle, gateway *discord.Gateway, realClock clock.Clock, logger *slog.Logger, instruments *metrics.Metrics) (*aichat.Adapter, error) {
	provider, err := llm.NewGemini(llm.GeminiConfig{
		BaseURL: cfg.Gemini.BaseURL,
		Model:   cfg.Gemini.Model,
		APIKey:  bundle.GeminiAPIKey,
		Timeout: cfg.Gemini.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return aichat.New(aichat.Config{
		Provider:          provider,
		Poster:            gateway,
		SelfID:            gateway.SelfID(),
		ChannelIDs:        cfg.Discord.AIChannelIDs,
		SystemInstruction: cfg.Gemini.SystemInstruction,
		MaxOutputTokens:   cfg.Gemini.MaxOutputTokens,
		Retry:             llm.RetryPolicy{Clock: realClock},
		Logger:            logger.With("component", "aichat"),
		Metrics:           instruments,
	})
}
