// Package ingest accepts leads from the public surfaces (web form, RD Station
// webhook), deduplicates them, and hands them to the qualification queue.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/idempotency"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/tenants"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"

	"github.com/google/uuid"
)

// LeadStore is the slice of the lead repository ingestion writes through.
type LeadStore interface {
	Create(ctx context.Context, params repository.CreateLeadParams) (domain.Lead, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	GetByFingerprint(ctx context.Context, dedupHash string, tenantID uuid.UUID) (domain.Lead, error)
	GetByExternalID(ctx context.Context, externalID string, tenantID uuid.UUID) (domain.Lead, error)
	Reingest(ctx context.Context, id uuid.UUID, message string, idempotencyKey *string) (domain.Lead, error)
	AppendEvent(ctx context.Context, event domain.LeadEvent) error
}

// TenantStore resolves the tenant slug carried in the public URL.
type TenantStore interface {
	GetBySlug(ctx context.Context, slug string) (tenants.Tenant, error)
}

// IdempotencyStore is the redis-backed processed-submission marker set.
type IdempotencyStore interface {
	IsProcessed(ctx context.Context, key string) (bool, uuid.UUID, error)
	MarkProcessed(ctx context.Context, key string, leadID uuid.UUID) error
}

type Service struct {
	leads       LeadStore
	tenants     TenantStore
	idem        IdempotencyStore
	queue       scheduler.Enqueuer
	log         *logger.Logger
	phoneRegion string
	now         func() time.Time
}

func NewService(leads LeadStore, tenantStore TenantStore, idem IdempotencyStore, queue scheduler.Enqueuer, log *logger.Logger, phoneRegion string) *Service {
	return &Service{
		leads:       leads,
		tenants:     tenantStore,
		idem:        idem,
		queue:       queue,
		log:         log,
		phoneRegion: phoneRegion,
		now:         time.Now,
	}
}

// WebFormInput is a deduplicated web form submission.
type WebFormInput struct {
	TenantSlug  string
	Name        string
	Phone       string
	Email       *string
	Company     *string
	City        *string
	State       *string
	Message     string
	SourceURL   *string
	UTMSource   *string
	UTMCampaign *string
	UTMMedium   *string
	UTMContent  *string
	Gclid       *string
	Fbclid      *string
}

// IngestWebForm processes one web form submission and returns the lead it
// created or refreshed.
func (s *Service) IngestWebForm(ctx context.Context, input WebFormInput) (domain.Lead, error) {
	tenant, err := s.resolveTenant(ctx, input.TenantSlug)
	if err != nil {
		return domain.Lead{}, err
	}

	phoneNormalized := phone.NormalizeE164(input.Phone, s.phoneRegion)
	dedupHash := idempotency.Fingerprint(phoneNormalized, tenant.ID)

	email := ""
	if input.Email != nil {
		email = *input.Email
	}
	idemKey := idempotency.Key(input.TenantSlug, input.Phone, email, input.Message, s.now())

	// A repeat of the exact submission within the hour returns the already
	// ingested lead without touching the pipeline.
	processed, processedLeadID, err := s.idem.IsProcessed(ctx, idemKey)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("idempotency check: %w", err)
	}
	if processed {
		existing, err := s.lookupProcessed(ctx, processedLeadID, dedupHash, tenant.ID)
		if err == nil {
			s.log.WithLead(existing.ID.String()).Info("duplicate submission suppressed", "tenant", tenant.Slug)
			return existing, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, err
		}
	}

	// Same contact, new message: refresh the existing lead and requalify.
	existing, err := s.leads.GetByFingerprint(ctx, dedupHash, tenant.ID)
	if err == nil {
		return s.reingest(ctx, existing, input.Message, idemKey)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.Lead{}, err
	}

	lead, err := s.leads.Create(ctx, repository.CreateLeadParams{
		TenantID:        tenant.ID,
		Name:            input.Name,
		Phone:           input.Phone,
		PhoneNormalized: nilIfEmpty(phoneNormalized),
		Email:           input.Email,
		Company:         input.Company,
		City:            input.City,
		State:           input.State,
		Message:         input.Message,
		Source:          domain.SourceWebForm,
		Attribution: domain.Attribution{
			SourceURL:   input.SourceURL,
			UTMSource:   input.UTMSource,
			UTMCampaign: input.UTMCampaign,
			UTMMedium:   input.UTMMedium,
			UTMContent:  input.UTMContent,
			Gclid:       input.Gclid,
			Fbclid:      input.Fbclid,
		},
		DedupHash:      dedupHash,
		IdempotencyKey: &idemKey,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost a first-submission race; the winner's row is the current lead.
		winner, getErr := s.leads.GetByFingerprint(ctx, dedupHash, tenant.ID)
		if getErr != nil {
			return domain.Lead{}, fmt.Errorf("create lead: %w", err)
		}
		return s.reingest(ctx, winner, input.Message, idemKey)
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("create lead: %w", err)
	}

	s.recordReceived(ctx, lead, "Lead recebido via formulário web")
	s.markAndEnqueue(ctx, lead, idemKey)

	return lead, nil
}

// RDStationInput is a contact conversion pushed by the RD Station webhook.
type RDStationInput struct {
	TenantSlug    string
	ExternalUUID  string
	Name          string
	MobilePhone   *string
	PersonalPhone *string
	Email         *string
	Company       *string
	City          *string
	State         *string
	CustomFields  map[string]string
	SourceOrigin  *string
	UTMSource     *string
	UTMCampaign   *string
	UTMMedium     *string
	UTMContent    *string
}

// IngestRDStation processes one webhook conversion. The RD Station contact
// UUID is the upsert key: a replayed webhook returns the existing lead.
func (s *Service) IngestRDStation(ctx context.Context, input RDStationInput) (domain.Lead, error) {
	tenant, err := s.resolveTenant(ctx, input.TenantSlug)
	if err != nil {
		return domain.Lead{}, err
	}

	if input.ExternalUUID == "" {
		return domain.Lead{}, apperr.Validation("webhook payload missing contact uuid").WithOp("ingest.rdstation")
	}

	existing, err := s.leads.GetByExternalID(ctx, input.ExternalUUID, tenant.ID)
	if err == nil {
		s.log.WithLead(existing.ID.String()).Info("webhook replay suppressed", "external_id", input.ExternalUUID)
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.Lead{}, err
	}

	rawPhone := firstNonEmpty(input.MobilePhone, input.PersonalPhone)
	phoneNormalized := phone.NormalizeE164(rawPhone, s.phoneRegion)
	dedupHash := idempotency.Fingerprint(phoneNormalized, tenant.ID)
	idemKey := "rdstation_" + input.ExternalUUID

	processed, processedLeadID, err := s.idem.IsProcessed(ctx, idemKey)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("idempotency check: %w", err)
	}
	if processed {
		existing, err := s.lookupProcessed(ctx, processedLeadID, dedupHash, tenant.ID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, err
		}
	}

	message := extractRDMessage(input.CustomFields)

	lead, err := s.leads.Create(ctx, repository.CreateLeadParams{
		TenantID:        tenant.ID,
		Name:            input.Name,
		Phone:           rawPhone,
		PhoneNormalized: nilIfEmpty(phoneNormalized),
		Email:           input.Email,
		Company:         input.Company,
		City:            input.City,
		State:           input.State,
		Message:         message,
		Source:          domain.SourceRDStation,
		Attribution: domain.Attribution{
			SourceURL:   input.SourceOrigin,
			UTMSource:   input.UTMSource,
			UTMCampaign: input.UTMCampaign,
			UTMMedium:   input.UTMMedium,
			UTMContent:  input.UTMContent,
		},
		DedupHash:      dedupHash,
		ExternalID:     &input.ExternalUUID,
		IdempotencyKey: &idemKey,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		winner, getErr := s.leads.GetByFingerprint(ctx, dedupHash, tenant.ID)
		if getErr != nil {
			return domain.Lead{}, fmt.Errorf("create lead: %w", err)
		}
		return winner, nil
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("create lead: %w", err)
	}

	s.recordReceived(ctx, lead, "Lead recebido via RD Station")
	s.markAndEnqueue(ctx, lead, idemKey)

	return lead, nil
}

// lookupProcessed resolves the lead behind an unexpired idempotency marker:
// first by the lead id the marker recorded, then by fingerprint. ErrNotFound
// means the marker is orphaned and the submission may be treated as fresh.
func (s *Service) lookupProcessed(ctx context.Context, leadID uuid.UUID, dedupHash string, tenantID uuid.UUID) (domain.Lead, error) {
	if leadID != uuid.Nil {
		lead, err := s.leads.GetByID(ctx, leadID)
		if err == nil {
			return lead, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, err
		}
	}
	return s.leads.GetByFingerprint(ctx, dedupHash, tenantID)
}

func (s *Service) resolveTenant(ctx context.Context, slug string) (tenants.Tenant, error) {
	tenant, err := s.tenants.GetBySlug(ctx, slug)
	if errors.Is(err, tenants.ErrNotFound) {
		return tenants.Tenant{}, apperr.NotFound(fmt.Sprintf("tenant %q not found", slug)).WithOp("ingest.tenant")
	}
	if err != nil {
		return tenants.Tenant{}, err
	}
	if !tenant.IsActive {
		return tenants.Tenant{}, apperr.Validation(fmt.Sprintf("tenant %q is inactive", slug)).WithOp("ingest.tenant")
	}
	return tenant, nil
}

func (s *Service) reingest(ctx context.Context, existing domain.Lead, message, idemKey string) (domain.Lead, error) {
	updated, err := s.leads.Reingest(ctx, existing.ID, message, &idemKey)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("reingest lead: %w", err)
	}

	description := "Lead atualizado com nova mensagem"
	s.appendEvent(ctx, updated, domain.EventLeadUpdated, &description)
	s.markAndEnqueue(ctx, updated, idemKey)

	return updated, nil
}

func (s *Service) recordReceived(ctx context.Context, lead domain.Lead, description string) {
	to := domain.StatusReceived
	err := s.leads.AppendEvent(ctx, domain.LeadEvent{
		LeadID:      lead.ID,
		TenantID:    lead.TenantID,
		EventType:   domain.EventLeadReceived,
		ToStatus:    &to,
		Description: &description,
		Actor:       domain.ActorSystem,
	})
	if err != nil {
		s.log.DatabaseError("append lead event", err)
	}
}

func (s *Service) appendEvent(ctx context.Context, lead domain.Lead, eventType string, description *string) {
	err := s.leads.AppendEvent(ctx, domain.LeadEvent{
		LeadID:      lead.ID,
		TenantID:    lead.TenantID,
		EventType:   eventType,
		Description: description,
		Actor:       domain.ActorSystem,
	})
	if err != nil {
		s.log.DatabaseError("append lead event", err)
	}
}

// markAndEnqueue finalizes a successful ingestion. Failures here are logged
// and swallowed: the lead row exists, and qualification has its own retries.
func (s *Service) markAndEnqueue(ctx context.Context, lead domain.Lead, idemKey string) {
	if err := s.idem.MarkProcessed(ctx, idemKey, lead.ID); err != nil {
		s.log.Warn("idempotency mark failed", "error", err, "lead_id", lead.ID)
	}

	payload := scheduler.LeadQualifyPayload{LeadID: lead.ID.String(), TenantID: lead.TenantID.String()}
	if err := s.queue.EnqueueQualify(ctx, payload); err != nil {
		s.log.Error("qualify enqueue failed", "error", err, "lead_id", lead.ID)
	}
}

func extractRDMessage(fields map[string]string) string {
	if msg, ok := fields["message"]; ok && msg != "" {
		return msg
	}
	if msg, ok := fields["interesse"]; ok && msg != "" {
		return msg
	}
	return "Lead recebido via RD Station"
}

func firstNonEmpty(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
