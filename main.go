package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/shellgate/bastion/internal/alerting"
	"github.com/shellgate/bastion/internal/audit"
	"github.com/shellgate/bastion/internal/auth"
	"github.com/shellgate/bastion/internal/config"
	"github.com/shellgate/bastion/internal/database"
	"github.com/shellgate/bastion/internal/extractor"
	"github.com/shellgate/bastion/internal/handlers"
	"github.com/shellgate/bastion/internal/logging"
	"github.com/shellgate/bastion/internal/middleware"
	"github.com/shellgate/bastion/internal/secrets"
	"github.com/shellgate/bastion/internal/session"
)

func main() {
	config.Load()
	logging.Init()
	defer logging.Close()

	db, err := database.Open(config.Cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close(db)

	decryptor, err := secrets.NewDecryptor(config.Cfg.FernetKey)
	if err != nil {
		log.Fatalf("Secrets init: %v", err)
	}

	tokens := auth.NewTokenStore(db)
	resolver := database.NewResolver(db)
	auditor := audit.NewAuditor(db, config.Cfg.AuditRetentionDays)

	rules := alerting.NewRuleCache(db)
	if err := rules.Refresh(); err != nil {
		log.Printf("WARNING: initial rule refresh failed: %v", err)
	}
	notifier := alerting.NewWebhookNotifier(db, &http.Client{Timeout: 10 * time.Second})
	evaluator := alerting.NewEvaluator(rules, auditor, notifier)

	extCfg, err := extractor.LoadConfig(config.Cfg.ExtractorTuningFile)
	if err != nil {
		log.Printf("WARNING: extractor tuning not applied: %v", err)
	}

	idleTimeout, err := time.ParseDuration(config.Cfg.SessionIdleTimeout)
	if err != nil {
		idleTimeout = session.DefaultIdleTimeout
	}

	supervisor := session.NewSupervisor(session.Config{
		IdleTimeout:       idleTimeout,
		IdleCheckInterval: time.Duration(config.Cfg.SessionIdleCheckSecs) * time.Second,
		Extractor:         extCfg,
	}, tokens, resolver, decryptor, auditor, evaluator)
	log.Printf("Session supervisor initialized (idle_timeout=%s, rules=%d)", idleTimeout, rules.Len())

	jobs := cron.New()
	jobs.AddFunc(config.Cfg.RuleRefreshSpec, func() {
		if err := rules.Refresh(); err != nil {
			log.Printf("Rule refresh failed: %v", err)
		}
	})
	jobs.AddFunc(config.Cfg.AuditPurgeSpec, func() {
		if _, err := auditor.PurgeOlderThan(0); err != nil {
			log.Printf("Audit purge failed: %v", err)
		}
	})
	jobs.Start()
	defer jobs.Stop()

	api := handlers.NewAPI(supervisor, auditor)

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", api.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Terminal WebSocket authenticates via its token parameter inside
		// the session supervisor.
		r.Get("/hosts/{id}/terminal", api.Terminal)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(tokens))
			r.Get("/command-logs", api.CommandLogs)
			r.Get("/alert-logs", api.AlertLogs)
		})
	})

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	supervisor.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
