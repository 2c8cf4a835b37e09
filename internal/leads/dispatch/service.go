// Package dispatch runs the response stage: gate on business hours, deliver
// the engine's reply over the chosen channel(s), and hand off when the engine
// recommended it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/tenants"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const llmHandoffReason = "Encaminhado conforme recomendação da LLM"

// LeadStore is the slice of the lead repository this stage writes through.
type LeadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	MarkResponded(ctx context.Context, id uuid.UUID, version int, channel string, at time.Time) (domain.Lead, error)
	MarkHandoff(ctx context.Context, id uuid.UUID, version int, reason string, handedOffBy *string) (domain.Lead, error)
	MarkFailed(ctx context.Context, id uuid.UUID, stageErr string) (domain.Lead, error)
	AppendEvent(ctx context.Context, event domain.LeadEvent) error
}

// TenantStore loads the tenant whose business hours gate the send.
type TenantStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (tenants.Tenant, error)
}

// WhatsAppSender delivers a message to an E.164 number.
type WhatsAppSender interface {
	SendMessage(ctx context.Context, phoneNumber, message string) error
}

// EmailSender delivers a rendered reply to an email address.
type EmailSender interface {
	SendLeadReply(ctx context.Context, toEmail, leadName, message string) error
}

type Service struct {
	leads    LeadStore
	tenants  TenantStore
	whatsapp WhatsAppSender
	email    EmailSender
	log      *logger.Logger
	now      func() time.Time
}

func NewService(leads LeadStore, tenantStore TenantStore, wa WhatsAppSender, email EmailSender, log *logger.Logger) *Service {
	return &Service{
		leads:    leads,
		tenants:  tenantStore,
		whatsapp: wa,
		email:    email,
		log:      log,
		now:      time.Now,
	}
}

// Run sends the reply for one lead. Any returned error is retryable.
func (s *Service) Run(ctx context.Context, leadID, tenantID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("load lead %s: %w", leadID, err)
	}

	log := s.log.WithLead(leadID.String())

	// Duplicate delivery after a successful send is a no-op; the lead must
	// never hear from us twice.
	if lead.HasResponded {
		log.Info("dispatch skipped, lead already responded")
		return nil
	}
	if lead.Qualification == nil || lead.Qualification.ReplyMessage == "" {
		log.Warn("dispatch skipped, lead has no reply to send", "status", lead.Status)
		return nil
	}
	// A lead already handed off or closed must never be messaged, even if a
	// stray respond task reaches us.
	if !lead.Status.CanTransitionTo(domain.StatusResponded) {
		log.Warn("dispatch skipped, transition not allowed", "status", lead.Status)
		return nil
	}

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load tenant %s: %w", tenantID, err)
	}

	if !tenant.Config.BusinessHours.Contains(s.now()) {
		return s.sendAfterHoursAck(ctx, lead, log)
	}

	if err := s.send(ctx, lead, lead.Qualification.ReplyMessage); err != nil {
		return s.fail(ctx, lead, err)
	}

	// The message is out; a shutdown must not drop the status update.
	ctx = context.WithoutCancel(ctx)

	channel := string(lead.Qualification.ReplyChannel)
	updated, err := s.leads.MarkResponded(ctx, lead.ID, lead.Version, channel, s.now().UTC())
	if err != nil {
		return s.fail(ctx, lead, fmt.Errorf("mark responded: %w", err))
	}
	s.log.StageTransition("dispatch", lead.ID.String(), string(lead.Status), string(domain.StatusResponded))
	s.appendEvent(ctx, updated, domain.EventResponseSent,
		ptrStatus(domain.StatusQualified), ptrStatus(domain.StatusResponded),
		fmt.Sprintf("Resposta enviada via %s", channel))

	if lead.Qualification.NextStep == domain.StepHandoff {
		reason := llmHandoffReason
		if lead.Qualification.HandoffReason != nil && *lead.Qualification.HandoffReason != "" {
			reason = *lead.Qualification.HandoffReason
		}

		final, err := s.leads.MarkHandoff(ctx, updated.ID, updated.Version, reason, nil)
		if err != nil {
			return s.fail(ctx, updated, fmt.Errorf("post-response handoff: %w", err))
		}
		s.log.StageTransition("dispatch", lead.ID.String(), string(domain.StatusResponded), string(domain.StatusHandoff))
		s.appendEvent(ctx, final, domain.EventAutoHandoff,
			ptrStatus(domain.StatusResponded), ptrStatus(domain.StatusHandoff), reason)
	}

	return nil
}

// sendAfterHoursAck delivers the fixed acknowledgement outside business hours.
// The real reply stays pending: hasResponded is left unset so the next
// business-hours delivery sends it.
func (s *Service) sendAfterHoursAck(ctx context.Context, lead domain.Lead, log *logger.Logger) error {
	ack := fmt.Sprintf("Olá %s! Recebemos sua mensagem. Nossa equipe retornará em breve no horário comercial. Obrigado!", lead.Name)

	if err := s.send(ctx, lead, ack); err != nil {
		return s.fail(ctx, lead, fmt.Errorf("after-hours ack: %w", err))
	}

	log.Info("after-hours ack sent", "channel", lead.Qualification.ReplyChannel)
	s.appendEvent(ctx, lead, domain.EventAfterHoursAck, nil, nil,
		"Confirmação de recebimento enviada fora do horário comercial")
	return nil
}

// send fans the message out over the qualified channel(s). For "both" the
// channels run concurrently and the send counts as delivered if either lands.
func (s *Service) send(ctx context.Context, lead domain.Lead, message string) error {
	channel := lead.Qualification.ReplyChannel

	switch channel {
	case domain.ChannelWhatsApp:
		return s.sendWhatsApp(ctx, lead, message)
	case domain.ChannelEmail:
		return s.sendEmail(ctx, lead, message)
	case domain.ChannelBoth:
		g, gctx := errgroup.WithContext(ctx)
		var waErr, emailErr error
		g.Go(func() error {
			waErr = s.sendWhatsApp(gctx, lead, message)
			return nil
		})
		g.Go(func() error {
			emailErr = s.sendEmail(gctx, lead, message)
			return nil
		})
		_ = g.Wait()

		if waErr != nil && emailErr != nil {
			return errors.Join(waErr, emailErr)
		}
		if waErr != nil {
			s.log.Warn("whatsapp leg failed, email delivered", "error", waErr, "lead_id", lead.ID)
		}
		if emailErr != nil {
			s.log.Warn("email leg failed, whatsapp delivered", "error", emailErr, "lead_id", lead.ID)
		}
		return nil
	default:
		return fmt.Errorf("unknown reply channel %q", channel)
	}
}

func (s *Service) sendWhatsApp(ctx context.Context, lead domain.Lead, message string) error {
	dest, ok := lead.Destination(domain.ChannelWhatsApp)
	if !ok {
		return fmt.Errorf("lead %s has no usable phone number", lead.ID)
	}
	return s.whatsapp.SendMessage(ctx, dest, message)
}

func (s *Service) sendEmail(ctx context.Context, lead domain.Lead, message string) error {
	dest, ok := lead.Destination(domain.ChannelEmail)
	if !ok {
		return fmt.Errorf("lead %s has no email address", lead.ID)
	}
	return s.email.SendLeadReply(ctx, dest, lead.Name, message)
}

func (s *Service) fail(ctx context.Context, lead domain.Lead, stageErr error) error {
	updated, markErr := s.leads.MarkFailed(ctx, lead.ID, fmt.Sprintf("Erro ao enviar resposta: %s", stageErr))
	if markErr != nil {
		s.log.DatabaseError("mark lead failed", markErr)
		return errors.Join(stageErr, markErr)
	}

	s.log.StageFailure("dispatch", lead.ID.String(), updated.RetryCount, stageErr)
	s.appendEvent(ctx, updated, domain.EventResponseFailed,
		nil, ptrStatus(domain.StatusFailed),
		fmt.Sprintf("Erro ao enviar resposta: %s", stageErr))

	return stageErr
}

func (s *Service) appendEvent(ctx context.Context, lead domain.Lead, eventType string, from, to *domain.Status, description string) {
	err := s.leads.AppendEvent(ctx, domain.LeadEvent{
		LeadID:      lead.ID,
		TenantID:    lead.TenantID,
		EventType:   eventType,
		FromStatus:  from,
		ToStatus:    to,
		Description: &description,
		Actor:       domain.ActorSystem,
	})
	if err != nil {
		s.log.DatabaseError("append lead event", err)
	}
}

func ptrStatus(s domain.Status) *domain.Status {
	return &s
}
