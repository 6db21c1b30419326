// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Slackbound Bridge
//
// Entry point for the email ↔ Slack bridge service. It:
//  1. Loads configuration from config.yaml and environment variables
//  2. Connects to Redis (thread store) and optionally PostgreSQL (prefs)
//  3. Builds the Slack and email provider clients
//  4. Serves the inbound email webhook and the Slack events endpoint
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/slackbound/bridge/internal/config"
	"github.com/slackbound/bridge/internal/emailapi"
	"github.com/slackbound/bridge/internal/inbound"
	"github.com/slackbound/bridge/internal/normalizer"
	"github.com/slackbound/bridge/internal/outbound"
	"github.com/slackbound/bridge/internal/slackapi"
	"github.com/slackbound/bridge/internal/threadstore"
	"github.com/slackbound/bridge/internal/userprefs"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting slackbound bridge service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"channel", cfg.SlackChannelID,
		"redis", cfg.RedisURL != "",
		"database", cfg.DatabaseURL != "",
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Thread Identity Store ---
	var store threadstore.Store
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)
		redisStore := threadstore.NewRedisStore(rdb)
		if err := redisStore.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		store = redisStore
		slog.Info("connected to Redis")
	} else {
		slog.Warn("no REDIS_URL configured — using in-memory thread store; " +
			"mappings will be lost on restart and cannot be shared across instances")
		store = threadstore.NewMemoryStore()
	}

	// --- User Preference Store (optional Postgres) ---
	var prefs userprefs.Store
	var pgPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pgPool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		prefs, err = userprefs.NewPostgresStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise preference store", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Info("no DATABASE_URL configured — user display preferences default to hidden email")
		prefs = userprefs.NewMemoryStore()
	}

	// --- External Clients ---
	slack := slackapi.NewClient(
		&http.Client{Timeout: cfg.HTTPTimeout},
		cfg.SlackAPIBaseURL,
		cfg.SlackBotToken,
	)
	email := emailapi.NewClient(ctx, cfg.EmailAPIBaseURL, cfg.EmailAPIKey, cfg.HTTPTimeout)

	// --- Emoji Cache ---
	emojiCache := normalizer.NewEmojiCache(slack.ListEmoji, cfg.EmojiCacheTTL)

	// --- Pipelines ---
	inboundPipeline := inbound.NewPipeline(inbound.Config{
		Store:         store,
		Slack:         slack,
		Attachments:   email,
		Prefs:         prefs,
		ChannelID:     cfg.SlackChannelID,
		AvatarBaseURL: cfg.AvatarBaseURL,
	})
	outboundPipeline := outbound.NewPipeline(outbound.Config{
		Store:         store,
		Slack:         slack,
		Email:         email,
		Prefs:         prefs,
		Emoji:         emojiCache,
		DefaultDomain: cfg.DefaultSendingDomain,
	})

	inboundHandler := inbound.NewHandler(inboundPipeline)
	outboundHandler := outbound.NewHandler(outboundPipeline)

	// --- HTTP Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/inbound", inboundHandler.ServeWebhook)
	mux.HandleFunc("/slack/events", outboundHandler.ServeEvents)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "thread store unhealthy", http.StatusServiceUnavailable)
			return
		}
		if pgPool != nil {
			if err := pgPool.Ping(r.Context()); err != nil {
				http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		if rdb != nil {
			rdb.Close()
		}
	}()

	slog.Info("bridge service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("bridge service stopped")
}
