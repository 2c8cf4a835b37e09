// Package qualify runs the qualification stage: normalize, call the engine,
// decode strictly, then apply the deterministic guardrails before anything is
// sent to the lead.
package qualify

import (
	"context"
	"errors"
	"fmt"

	"leadflow_backend/internal/engine"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/tenants"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

const sensitiveDataReason = "Dados sensíveis detectados"

// LeadStore is the slice of the lead repository this stage writes through.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, version int, status domain.Status) (domain.Lead, error)
	SaveQualification(ctx context.Context, id uuid.UUID, version int, q *domain.Qualification, rawReply string) (domain.Lead, error)
	MarkHandoff(ctx context.Context, id uuid.UUID, version int, reason string, handedOffBy *string) (domain.Lead, error)
	MarkClosed(ctx context.Context, id uuid.UUID, version int) (domain.Lead, error)
	MarkFailed(ctx context.Context, id uuid.UUID, stageErr string) (domain.Lead, error)
	AppendEvent(ctx context.Context, event domain.LeadEvent) error
}

// TenantStore loads the tenant whose playbook and threshold govern the stage.
type TenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (tenants.Tenant, error)
}

type Service struct {
	leads   LeadStore
	tenants TenantStore
	engine  engine.Qualifier
	queue   scheduler.Enqueuer
	log     *logger.Logger
}

func NewService(leads LeadStore, tenantStore TenantStore, qualifier engine.Qualifier, queue scheduler.Enqueuer, log *logger.Logger) *Service {
	return &Service{
		leads:   leads,
		tenants: tenantStore,
		engine:  qualifier,
		queue:   queue,
		log:     log,
	}
}

// Run qualifies one lead. Any returned error is retryable: the job queue
// re-delivers and the stage resumes from the Failed status.
func (s *Service) Run(ctx context.Context, leadID, tenantID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("load lead %s: %w", leadID, err)
	}

	// Duplicate delivery of an already-qualified lead is a no-op.
	if lead.Status.Ordinal() >= domain.StatusQualified.Ordinal() && lead.Status != domain.StatusFailed {
		s.log.WithLead(leadID.String()).Info("qualification skipped, lead already past stage", "status", lead.Status)
		return nil
	}
	// A lead already at Normalized resumes mid-stage after a crash.
	if lead.Status != domain.StatusNormalized && !lead.Status.CanTransitionTo(domain.StatusNormalized) {
		s.log.WithLead(leadID.String()).Warn("qualification skipped, transition not allowed", "status", lead.Status)
		return nil
	}

	// Tenant config is read fresh on every run so threshold or playbook edits
	// apply to retries.
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load tenant %s: %w", tenantID, err)
	}

	if lead.Status != domain.StatusNormalized {
		fromStatus := lead.Status
		lead, err = s.leads.UpdateStatus(ctx, lead.ID, lead.Version, domain.StatusNormalized)
		if err != nil {
			return s.fail(ctx, leadID, tenantID, fmt.Errorf("normalize lead: %w", err))
		}
		s.log.StageTransition("qualify", leadID.String(), string(fromStatus), string(domain.StatusNormalized))
		s.appendEvent(ctx, lead, domain.EventStatusChanged, &fromStatus, ptrStatus(domain.StatusNormalized), "Lead normalizado")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	rawReply, err := s.engine.Qualify(ctx, lead, tenant)
	if err != nil {
		return s.fail(ctx, leadID, tenantID, err)
	}

	qualification, err := domain.DecodeQualification([]byte(rawReply))
	if err != nil {
		return s.fail(ctx, leadID, tenantID, fmt.Errorf("decode engine reply: %w", err))
	}

	lead, err = s.leads.SaveQualification(ctx, lead.ID, lead.Version, qualification, rawReply)
	if err != nil {
		return s.fail(ctx, leadID, tenantID, fmt.Errorf("persist qualification: %w", err))
	}
	s.log.StageTransition("qualify", leadID.String(), string(domain.StatusNormalized), string(domain.StatusQualified))
	s.appendEventActor(ctx, lead, domain.EventLLMQualified,
		ptrStatus(domain.StatusNormalized), ptrStatus(domain.StatusQualified),
		fmt.Sprintf("Lead qualificado. Score: %d, Intent: %s", qualification.Score, qualification.Intent),
		domain.ActorLLM)

	return s.applyGuardrails(ctx, lead, tenant, qualification)
}

// applyGuardrails runs the deterministic post-qualification rules in priority
// order. Sensitive data always wins over the low-score rule.
func (s *Service) applyGuardrails(ctx context.Context, lead domain.Lead, tenant tenants.Tenant, q *domain.Qualification) error {
	switch {
	case q.HasRiskFlag(domain.RiskSensitiveData):
		updated, err := s.leads.MarkHandoff(ctx, lead.ID, lead.Version, sensitiveDataReason, nil)
		if err != nil {
			return s.fail(ctx, lead.ID, lead.TenantID, fmt.Errorf("auto handoff: %w", err))
		}
		s.log.StageTransition("qualify", lead.ID.String(), string(domain.StatusQualified), string(domain.StatusHandoff))
		s.appendEvent(ctx, updated, domain.EventAutoHandoff,
			ptrStatus(domain.StatusQualified), ptrStatus(domain.StatusHandoff),
			"Lead encaminhado automaticamente por detectar dados sensíveis")
		return nil

	case q.Score < tenant.Config.ScoreThreshold &&
		(q.Intent == domain.IntentCarreira || q.HasRiskFlag(domain.RiskSuspectedSpam)):
		updated, err := s.leads.MarkClosed(ctx, lead.ID, lead.Version)
		if err != nil {
			return s.fail(ctx, lead.ID, lead.TenantID, fmt.Errorf("auto close: %w", err))
		}
		s.log.StageTransition("qualify", lead.ID.String(), string(domain.StatusQualified), string(domain.StatusClosed))
		s.appendEvent(ctx, updated, domain.EventAutoClosed,
			ptrStatus(domain.StatusQualified), ptrStatus(domain.StatusClosed),
			"Lead fechado automaticamente por baixo score e intenção inadequada")
		return nil

	default:
		payload := scheduler.LeadRespondPayload{LeadID: lead.ID.String(), TenantID: lead.TenantID.String()}
		if err := s.queue.EnqueueRespond(ctx, payload); err != nil {
			return s.fail(ctx, lead.ID, lead.TenantID, fmt.Errorf("enqueue respond: %w", err))
		}
		// CRM sync is best-effort; a full queue must not fail qualification.
		syncPayload := scheduler.LeadCRMSyncPayload{LeadID: lead.ID.String(), TenantID: lead.TenantID.String()}
		if err := s.queue.EnqueueCRMSync(ctx, syncPayload); err != nil {
			s.log.Warn("crm sync enqueue failed", "error", err, "lead_id", lead.ID)
		}
		return nil
	}
}

// fail records the stage failure on the lead and returns the original error
// so the job queue schedules a retry.
func (s *Service) fail(ctx context.Context, leadID, tenantID uuid.UUID, stageErr error) error {
	lead, markErr := s.leads.MarkFailed(ctx, leadID, stageErr.Error())
	if markErr != nil {
		s.log.DatabaseError("mark lead failed", markErr)
		return errors.Join(stageErr, markErr)
	}

	s.log.StageFailure("qualify", leadID.String(), lead.RetryCount, stageErr)
	s.appendEvent(ctx, lead, domain.EventQualificationFailed,
		nil, ptrStatus(domain.StatusFailed),
		fmt.Sprintf("Erro na qualificação: %s", stageErr))

	return stageErr
}

func (s *Service) appendEvent(ctx context.Context, lead domain.Lead, eventType string, from, to *domain.Status, description string) {
	s.appendEventActor(ctx, lead, eventType, from, to, description, domain.ActorSystem)
}

func (s *Service) appendEventActor(ctx context.Context, lead domain.Lead, eventType string, from, to *domain.Status, description, actor string) {
	err := s.leads.AppendEvent(ctx, domain.LeadEvent{
		LeadID:      lead.ID,
		TenantID:    lead.TenantID,
		EventType:   eventType,
		FromStatus:  from,
		ToStatus:    to,
		Description: &description,
		Actor:       actor,
	})
	if err != nil {
		s.log.DatabaseError("append lead event", err)
	}
}

func ptrStatus(s domain.Status) *domain.Status {
	return &s
}
