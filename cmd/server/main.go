// Copyright (c) 2026 Skywalkers Paragliding
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

// Skywalkers Hub — message and back-office service
//
// Entry point for the hub. It:
//  1. Loads configuration from config.yaml / environment
//  2. Connects to PostgreSQL and Redis
//  3. Initialises the message, rule, conversation, and CRM stores
//  4. Wires the email rule dispatcher, SMTP sender, and WhatsApp client
//  5. Serves the webhook and dashboard REST endpoints
//  6. Handles graceful shutdown on SIGTERM/SIGINT
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

	"github.com/mrtandempilot/skywalkers-hub/internal/api"
	"github.com/mrtandempilot/skywalkers-hub/internal/auth"
	"github.com/mrtandempilot/skywalkers-hub/internal/calendar"
	"github.com/mrtandempilot/skywalkers-hub/internal/chatbot"
	"github.com/mrtandempilot/skywalkers-hub/internal/config"
	"github.com/mrtandempilot/skywalkers-hub/internal/dedup"
	"github.com/mrtandempilot/skywalkers-hub/internal/mailer"
	"github.com/mrtandempilot/skywalkers-hub/internal/notify"
	"github.com/mrtandempilot/skywalkers-hub/internal/rules"
	"github.com/mrtandempilot/skywalkers-hub/internal/store"
	"github.com/mrtandempilot/skywalkers-hub/internal/whatsapp"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting skywalkers hub")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	notifier := notify.NewPublisher(rdb, cfg.NotifyQueue)
	if err := notifier.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Dedup Filter ---
	filter := dedup.NewFilter(rdb)

	// --- Stores (Postgres) ---
	emailStore, err := store.NewEmailStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise email store", "error", err)
		os.Exit(1)
	}
	ruleStore, err := store.NewRuleStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise rule store", "error", err)
		os.Exit(1)
	}
	convStore, err := store.NewConversationStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise conversation store", "error", err)
		os.Exit(1)
	}
	crmStore, err := store.NewCRMStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise CRM store", "error", err)
		os.Exit(1)
	}

	// --- Outbound channels ---
	smtpSender := mailer.NewSMTPSender(cfg.SMTP)
	waClient := whatsapp.NewClient(cfg.WhatsApp)
	botClient := chatbot.NewClient(cfg.ChatbotURL)

	// --- Rule Dispatcher ---
	dispatcher := rules.NewDispatcher(ruleStore, emailStore, smtpSender, notifier)

	// --- Google Calendar (optional) ---
	apiCfg := api.Config{
		Emails:        emailStore,
		Rules:         ruleStore,
		Conversations: convStore,
		CRM:           crmStore,
		Dedup:         filter,
		Dispatcher:    dispatcher,
		Notifier:      notifier,
		WhatsApp:      waClient,
		Chatbot:       botClient,
		Admin:         auth.NewAdminPolicy(auth.NewSupabaseVerifier(cfg.Auth), cfg.Auth.AdminEmail),
		WAVerifyToken: cfg.WhatsApp.VerifyToken,
	}
	calClient, err := calendar.NewClient(ctx, cfg.Calendar)
	if err != nil {
		slog.Error("failed to initialise calendar client", "error", err)
		os.Exit(1)
	}
	if calClient != nil {
		apiCfg.Calendar = calClient
		slog.Info("calendar sync enabled", "calendar_id", cfg.Calendar.CalendarID)
	}

	// --- HTTP Server ---
	mux := http.NewServeMux()
	api.New(apiCfg).Register(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		// Check Redis
		if err := notifier.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		// Check Postgres
		if err := pgPool.Ping(r.Context()); err != nil {
			http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
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

		rdb.Close()
		pgPool.Close()
	}()

	slog.Info("hub listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("hub stopped")
}
