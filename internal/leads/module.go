// Package leads provides the lead pipeline bounded context module.
// This file wires the repositories, ingestion service, and HTTP handler.
package leads

import (
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/idempotency"
	"leadflow_backend/internal/leads/handler"
	"leadflow_backend/internal/leads/ingest"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/tenants"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	repo    *repository.Repository
	ingest  *ingest.Service
}

// NewModule creates and initializes the leads module with all its dependencies.
func NewModule(pool *pgxpool.Pool, idemStore *idempotency.Store, queue scheduler.Enqueuer, val *validator.Validator, cfg *config.Config, log *logger.Logger) *Module {
	repo := repository.New(pool)
	tenantRepo := tenants.NewRepository(pool)

	ingestSvc := ingest.NewService(repo, tenantRepo, idemStore, queue, log, cfg.GetDefaultPhoneRegion())
	h := handler.New(ingestSvc, repo, tenantRepo, val)

	return &Module{
		handler: h,
		repo:    repo,
		ingest:  ingestSvc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Repository returns the lead repository for external use.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// IngestService returns the ingestion service for external use.
func (m *Module) IngestService() *ingest.Service {
	return m.ingest
}

// RegisterRoutes mounts the lead routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterPublicRoutes(ctx.Public)
	m.handler.RegisterRoutes(ctx.V1)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
