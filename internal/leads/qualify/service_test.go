package qualify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/tenants"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadStore struct {
	lead domain.Lead

	handoffReason *string
	closed        bool
	failedWith    string
	events        []domain.LeadEvent
}

func (f *fakeLeadStore) GetByID(_ context.Context, _ uuid.UUID) (domain.Lead, error) {
	return f.lead, nil
}

func (f *fakeLeadStore) UpdateStatus(_ context.Context, _ uuid.UUID, version int, status domain.Status) (domain.Lead, error) {
	if version != f.lead.Version {
		return domain.Lead{}, errors.New("version conflict")
	}
	f.lead.Status = status
	f.lead.Version++
	return f.lead, nil
}

func (f *fakeLeadStore) SaveQualification(_ context.Context, _ uuid.UUID, version int, q *domain.Qualification, rawReply string) (domain.Lead, error) {
	if version != f.lead.Version {
		return domain.Lead{}, errors.New("version conflict")
	}
	f.lead.Qualification = q
	f.lead.EngineRawReply = &rawReply
	f.lead.Status = domain.StatusQualified
	f.lead.Version++
	return f.lead, nil
}

func (f *fakeLeadStore) MarkHandoff(_ context.Context, _ uuid.UUID, version int, reason string, _ *string) (domain.Lead, error) {
	if version != f.lead.Version {
		return domain.Lead{}, errors.New("version conflict")
	}
	f.handoffReason = &reason
	f.lead.Status = domain.StatusHandoff
	f.lead.IsHandedOff = true
	f.lead.Version++
	return f.lead, nil
}

func (f *fakeLeadStore) MarkClosed(_ context.Context, _ uuid.UUID, version int) (domain.Lead, error) {
	if version != f.lead.Version {
		return domain.Lead{}, errors.New("version conflict")
	}
	f.closed = true
	f.lead.Status = domain.StatusClosed
	f.lead.Version++
	return f.lead, nil
}

func (f *fakeLeadStore) MarkFailed(_ context.Context, _ uuid.UUID, stageErr string) (domain.Lead, error) {
	f.failedWith = stageErr
	f.lead.Status = domain.StatusFailed
	f.lead.RetryCount++
	f.lead.Version++
	return f.lead, nil
}

func (f *fakeLeadStore) AppendEvent(_ context.Context, event domain.LeadEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeTenantStore struct {
	tenant tenants.Tenant
}

func (f *fakeTenantStore) GetByID(_ context.Context, _ uuid.UUID) (tenants.Tenant, error) {
	return f.tenant, nil
}

type fakeEngine struct {
	reply string
	err   error
	calls int
}

func (f *fakeEngine) Qualify(_ context.Context, _ domain.Lead, _ tenants.Tenant) (string, error) {
	f.calls++
	return f.reply, f.err
}

type fakeEnqueuer struct {
	respondCalls int
	crmCalls     int
	respondErr   error
	crmErr       error
}

func (f *fakeEnqueuer) EnqueueQualify(_ context.Context, _ scheduler.LeadQualifyPayload) error {
	return nil
}

func (f *fakeEnqueuer) EnqueueRespond(_ context.Context, _ scheduler.LeadRespondPayload) error {
	f.respondCalls++
	return f.respondErr
}

func (f *fakeEnqueuer) EnqueueCRMSync(_ context.Context, _ scheduler.LeadCRMSyncPayload) error {
	f.crmCalls++
	return f.crmErr
}

func engineReply(score int, intent string, riskFlags string) string {
	return fmt.Sprintf(`{
		"lead_score": %d,
		"intent": %q,
		"urgency": "media",
		"service_match": [],
		"key_details": [],
		"missing_questions": [],
		"risk_flags": [%s],
		"recommended_next_step": "responder",
		"reply_channel": "whatsapp",
		"reply_message": "Olá! Podemos ajudar."
	}`, score, intent, riskFlags)
}

func newTestService(store *fakeLeadStore, eng *fakeEngine, queue *fakeEnqueuer, threshold int) *Service {
	cfg := tenants.DefaultConfig()
	cfg.ScoreThreshold = threshold
	ts := &fakeTenantStore{tenant: tenants.Tenant{
		ID:       uuid.New(),
		Name:     "Acme",
		Slug:     "acme",
		IsActive: true,
		Config:   cfg,
	}}
	return NewService(store, ts, eng, queue, logger.New("test"))
}

func receivedLead() domain.Lead {
	return domain.Lead{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Name:     "Maria",
		Phone:    "+5511999990000",
		Message:  "Quero um orçamento",
		Source:   domain.SourceWebForm,
		Status:   domain.StatusReceived,
		Version:  1,
	}
}

func TestRunQualifiesAndEnqueues(t *testing.T) {
	store := &fakeLeadStore{lead: receivedLead()}
	eng := &fakeEngine{reply: engineReply(80, "orcamento", "")}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, eng, queue, 50)

	if err := svc.Run(context.Background(), store.lead.ID, store.lead.TenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.lead.Status != domain.StatusQualified {
		t.Fatalf("status = %s, want %s", store.lead.Status, domain.StatusQualified)
	}
	if store.lead.Qualification == nil || store.lead.Qualification.Score != 80 {
		t.Fatal("qualification was not persisted")
	}
	if queue.respondCalls != 1 {
		t.Fatalf("respond enqueued %d times, want 1", queue.respondCalls)
	}
	if queue.crmCalls != 1 {
		t.Fatalf("crm sync enqueued %d times, want 1", queue.crmCalls)
	}
	if store.handoffReason != nil || store.closed {
		t.Fatal("guardrails should not fire on a clean high-score lead")
	}
}

func TestSensitiveDataBeatsLowScoreRule(t *testing.T) {
	// Both guardrails match; sensitive data must take priority and skip
	// dispatch entirely.
	store := &fakeLeadStore{lead: receivedLead()}
	eng := &fakeEngine{reply: engineReply(10, "carreira", `"dados_sensiveis", "spam_suspeito"`)}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, eng, queue, 50)

	if err := svc.Run(context.Background(), store.lead.ID, store.lead.TenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.handoffReason == nil {
		t.Fatal("expected automatic handoff")
	}
	if *store.handoffReason != "Dados sensíveis detectados" {
		t.Fatalf("handoff reason = %q", *store.handoffReason)
	}
	if store.closed {
		t.Fatal("lead must not be closed when handed off")
	}
	if queue.respondCalls != 0 || queue.crmCalls != 0 {
		t.Fatal("nothing may be enqueued after a sensitive-data handoff")
	}
}

func TestLowScoreCareerIntentCloses(t *testing.T) {
	store := &fakeLeadStore{lead: receivedLead()}
	eng := &fakeEngine{reply: engineReply(20, "carreira", "")}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, eng, queue, 50)

	if err := svc.Run(context.Background(), store.lead.ID, store.lead.TenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !store.closed {
		t.Fatal("expected automatic close")
	}
	if queue.respondCalls != 0 {
		t.Fatal("closed lead must not be dispatched")
	}
}

func TestLowScoreAloneStillDispatches(t *testing.T) {
	// A low score without career intent or a spam flag is still worth a reply.
	store := &fakeLeadStore{lead: receivedLead()}
	eng := &fakeEngine{reply: engineReply(20, "orcamento", "")}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, eng, queue, 50)

	if err := svc.Run(context.Background(), store.lead.ID, store.lead.TenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.closed || store.handoffReason != nil {
		t.Fatal("guardrails should not fire")
	}
	if queue.respondCalls != 1 {
		t.Fatalf("respond enqueued %d times, want 1", queue.respondCalls)
	}
}

func TestUnknownEnumMarksFailed(t *testing.T) {
	store := &fakeLeadStore{lead: receivedLead()}
	eng := &fakeEngine{reply: engineReply(80, "venda_urgente", "")}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, eng, queue, 50)

	err := svc.Run(context.Background(), store.lead.ID, store.lead.TenantID)
	if err == nil {
		t.Fatal("expected a decode error")
	}
	if store.lead.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", store.lead.Status, domain.StatusFailed)
	}
	if store.failedWith == "" {
		t.Fatal("failure detail was not recorded")
	}
	if queue.respondCalls != 0 {
		t.Fatal("failed lead must not be dispatched")
	}
}

func TestAlreadyQualifiedLeadIsSkipped(t *testing.T) {
	lead := receivedLead()
	lead.Status = domain.StatusResponded
	store := &fakeLeadStore{lead: lead}
	eng := &fakeEngine{reply: engineReply(80, "orcamento", "")}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, eng, queue, 50)

	if err := svc.Run(context.Background(), lead.ID, lead.TenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng.calls != 0 {
		t.Fatal("engine must not run for an already-qualified lead")
	}
}

func TestFailedLeadIsRequalified(t *testing.T) {
	lead := receivedLead()
	lead.Status = domain.StatusFailed
	store := &fakeLeadStore{lead: lead}
	eng := &fakeEngine{reply: engineReply(80, "orcamento", "")}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, eng, queue, 50)

	if err := svc.Run(context.Background(), lead.ID, lead.TenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng.calls != 1 {
		t.Fatal("failed lead should go through the engine again")
	}
	if store.lead.Status != domain.StatusQualified {
		t.Fatalf("status = %s, want %s", store.lead.Status, domain.StatusQualified)
	}
}

func TestNormalizedLeadResumesQualification(t *testing.T) {
	// A crash between the status write and the engine call leaves the lead at
	// Normalized; redelivery must pick it up, not re-normalize or skip it.
	lead := receivedLead()
	lead.Status = domain.StatusNormalized
	store := &fakeLeadStore{lead: lead}
	eng := &fakeEngine{reply: engineReply(80, "orcamento", "")}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, eng, queue, 50)

	if err := svc.Run(context.Background(), lead.ID, lead.TenantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eng.calls != 1 {
		t.Fatal("engine must run for a lead stuck at normalized")
	}
	if store.lead.Status != domain.StatusQualified {
		t.Fatalf("status = %s, want %s", store.lead.Status, domain.StatusQualified)
	}
	for _, ev := range store.events {
		if ev.EventType == domain.EventStatusChanged {
			t.Fatal("normalization must not be recorded twice")
		}
	}
}

func TestCRMEnqueueFailureDoesNotFailTheStage(t *testing.T) {
	store := &fakeLeadStore{lead: receivedLead()}
	eng := &fakeEngine{reply: engineReply(80, "orcamento", "")}
	queue := &fakeEnqueuer{crmErr: errors.New("queue full")}
	svc := newTestService(store, eng, queue, 50)

	if err := svc.Run(context.Background(), store.lead.ID, store.lead.TenantID); err != nil {
		t.Fatalf("crm enqueue failure must not fail qualification: %v", err)
	}
	if queue.respondCalls != 1 {
		t.Fatal("respond must still be enqueued")
	}
	if store.failedWith != "" {
		t.Fatal("lead must not be marked failed")
	}
}

func TestRespondEnqueueFailureFailsTheStage(t *testing.T) {
	store := &fakeLeadStore{lead: receivedLead()}
	eng := &fakeEngine{reply: engineReply(80, "orcamento", "")}
	queue := &fakeEnqueuer{respondErr: errors.New("queue full")}
	svc := newTestService(store, eng, queue, 50)

	if err := svc.Run(context.Background(), store.lead.ID, store.lead.TenantID); err == nil {
		t.Fatal("expected an error when the respond task cannot be enqueued")
	}
	if store.lead.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", store.lead.Status, domain.StatusFailed)
	}
}

func TestCancelledContextStopsBeforeEngine(t *testing.T) {
	store := &fakeLeadStore{lead: receivedLead()}
	eng := &fakeEngine{reply: engineReply(80, "orcamento", "")}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, eng, queue, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Run(ctx, store.lead.ID, store.lead.TenantID); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if eng.calls != 0 {
		t.Fatal("engine must not run on a cancelled context")
	}
}
