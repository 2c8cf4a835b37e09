package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"leadflow_backend/internal/crm"
	"leadflow_backend/internal/email"
	"leadflow_backend/internal/engine"
	"leadflow_backend/internal/leads/dispatch"
	"leadflow_backend/internal/leads/qualify"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/tenants"
	"leadflow_backend/internal/whatsapp"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env, "queue", cfg.AsynqQueueName, "concurrency", cfg.AsynqConcurrency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.IsEngineEnabled() {
		log.Error("ENGINE_API_KEY not configured; worker cannot qualify leads")
		panic("ENGINE_API_KEY not configured")
	}

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	leadRepo := repository.New(pool)
	tenantRepo := tenants.NewRepository(pool)

	qualifier, err := engine.NewClient(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize qualification engine", "error", err)
		panic("failed to initialize qualification engine: " + err.Error())
	}

	waClient := whatsapp.NewClient(cfg, log)
	emailSender := email.NewSMTPSender(cfg)
	crmClient := crm.NewRDStationClient(cfg, log)

	// The qualify stage enqueues follow-up respond and CRM sync tasks.
	queue, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer queue.Close()

	// ========================================================================
	// Pipeline Stages
	// ========================================================================

	qualifyStage := qualify.NewService(leadRepo, tenantRepo, qualifier, queue, log)
	dispatchStage := dispatch.NewService(leadRepo, tenantRepo, waClient, emailSender, log)
	crmSync := crm.NewSyncService(leadRepo, tenantRepo, crmClient, log)

	worker, err := scheduler.NewWorker(cfg, qualifyStage, dispatchStage, crmSync, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	log.Info("worker ready, processing tasks")
	worker.Run(ctx)
	log.Info("worker stopped")
}
