package crm

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/tenants"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// LeadStore is the slice of the lead repository CRM sync reads and audits
// through. Sync never writes lead status.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	AppendEvent(ctx context.Context, event domain.LeadEvent) error
}

// TenantStore loads the tenant whose CRM credentials the sync uses.
type TenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (tenants.Tenant, error)
}

// Upserter pushes one lead into the CRM. ErrNotConfigured means the tenant
// has nothing to sync to; any other error is a failed push.
type Upserter interface {
	UpsertLead(ctx context.Context, lead domain.Lead, tenant tenants.Tenant) error
}

// SyncService mirrors qualified leads into the CRM from the job queue.
type SyncService struct {
	leads   LeadStore
	tenants TenantStore
	client  Upserter
	log     *logger.Logger
}

func NewSyncService(leads LeadStore, tenantStore TenantStore, client Upserter, log *logger.Logger) *SyncService {
	return &SyncService{
		leads:   leads,
		tenants: tenantStore,
		client:  client,
		log:     log,
	}
}

// Sync pushes the lead to the CRM and records the outcome as an audit event.
// A failed push returns an error so the queue retries, but the lead's status
// and pipeline progress are never touched.
func (s *SyncService) Sync(ctx context.Context, leadID, tenantID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("load lead %s: %w", leadID, err)
	}

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load tenant %s: %w", tenantID, err)
	}

	err = s.client.UpsertLead(ctx, lead, tenant)
	if errors.Is(err, ErrNotConfigured) {
		// Nothing to push for this tenant; do not burn the retry budget.
		s.log.Info("crm sync skipped, not configured", "lead_id", leadID, "tenant_id", tenantID)
		return nil
	}
	if err != nil {
		s.log.Warn("crm sync failed", "error", err, "lead_id", leadID)
		s.appendEvent(ctx, lead, domain.EventCRMSyncFailed, "Falha ao sincronizar lead com o CRM")
		return fmt.Errorf("crm sync failed for lead %s: %w", leadID, err)
	}

	s.appendEvent(ctx, lead, domain.EventCRMSynced, "Lead sincronizado com o CRM")
	return nil
}

func (s *SyncService) appendEvent(ctx context.Context, lead domain.Lead, eventType, description string) {
	err := s.leads.AppendEvent(ctx, domain.LeadEvent{
		LeadID:      lead.ID,
		TenantID:    lead.TenantID,
		EventType:   eventType,
		Description: &description,
		Actor:       domain.ActorSystem,
	})
	if err != nil {
		s.log.DatabaseError("append lead event", err)
	}
}
