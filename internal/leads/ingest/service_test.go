package ingest

import (
	"context"
	"testing"
	"time"

	"leadflow_backend/internal/idempotency"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/tenants"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeLeadStore struct {
	byID          *domain.Lead
	byFingerprint *domain.Lead
	byExternalID  *domain.Lead

	// fingerprintOnRetry surfaces only after a Create attempt, simulating a
	// concurrent submission winning the insert race.
	fingerprintOnRetry *domain.Lead
	createErr          error
	createCalls        int

	created    []repository.CreateLeadParams
	reingested bool
	events     []domain.LeadEvent
}

func (f *fakeLeadStore) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	if f.byID == nil || f.byID.ID != id {
		return domain.Lead{}, repository.ErrNotFound
	}
	return *f.byID, nil
}

func (f *fakeLeadStore) Create(_ context.Context, params repository.CreateLeadParams) (domain.Lead, error) {
	f.createCalls++
	if f.createErr != nil {
		return domain.Lead{}, f.createErr
	}
	f.created = append(f.created, params)
	return domain.Lead{
		ID:       uuid.New(),
		TenantID: params.TenantID,
		Name:     params.Name,
		Phone:    params.Phone,
		Message:  params.Message,
		Source:   params.Source,
		Status:   domain.StatusReceived,
		Version:  1,
	}, nil
}

func (f *fakeLeadStore) GetByFingerprint(_ context.Context, _ string, _ uuid.UUID) (domain.Lead, error) {
	if f.byFingerprint != nil {
		return *f.byFingerprint, nil
	}
	if f.fingerprintOnRetry != nil && f.createCalls > 0 {
		return *f.fingerprintOnRetry, nil
	}
	return domain.Lead{}, repository.ErrNotFound
}

func (f *fakeLeadStore) GetByExternalID(_ context.Context, _ string, _ uuid.UUID) (domain.Lead, error) {
	if f.byExternalID == nil {
		return domain.Lead{}, repository.ErrNotFound
	}
	return *f.byExternalID, nil
}

func (f *fakeLeadStore) Reingest(_ context.Context, id uuid.UUID, message string, _ *string) (domain.Lead, error) {
	f.reingested = true
	base := f.byFingerprint
	if base == nil {
		base = f.fingerprintOnRetry
	}
	updated := *base
	updated.ID = id
	updated.Message = message
	updated.Status = domain.StatusReceived
	updated.Version++
	return updated, nil
}

func (f *fakeLeadStore) AppendEvent(_ context.Context, event domain.LeadEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fakeTenantStore struct {
	tenant tenants.Tenant
	err    error
}

func (f *fakeTenantStore) GetBySlug(_ context.Context, _ string) (tenants.Tenant, error) {
	if f.err != nil {
		return tenants.Tenant{}, f.err
	}
	return f.tenant, nil
}

type fakeIdemStore struct {
	processed map[string]uuid.UUID
	marked    []string
}

func (f *fakeIdemStore) IsProcessed(_ context.Context, key string) (bool, uuid.UUID, error) {
	id, ok := f.processed[key]
	return ok, id, nil
}

func (f *fakeIdemStore) MarkProcessed(_ context.Context, key string, leadID uuid.UUID) error {
	if f.processed == nil {
		f.processed = map[string]uuid.UUID{}
	}
	f.processed[key] = leadID
	f.marked = append(f.marked, key)
	return nil
}

type fakeEnqueuer struct {
	qualifyCalls int
}

func (f *fakeEnqueuer) EnqueueQualify(_ context.Context, _ scheduler.LeadQualifyPayload) error {
	f.qualifyCalls++
	return nil
}

func (f *fakeEnqueuer) EnqueueRespond(_ context.Context, _ scheduler.LeadRespondPayload) error {
	return nil
}

func (f *fakeEnqueuer) EnqueueCRMSync(_ context.Context, _ scheduler.LeadCRMSyncPayload) error {
	return nil
}

func activeTenant() tenants.Tenant {
	return tenants.Tenant{
		ID:       uuid.New(),
		Name:     "Acme",
		Slug:     "acme",
		IsActive: true,
		Config:   tenants.DefaultConfig(),
	}
}

func newTestService(store *fakeLeadStore, ts *fakeTenantStore, idem *fakeIdemStore, queue *fakeEnqueuer) *Service {
	svc := NewService(store, ts, idem, queue, logger.New("test"), "BR")
	svc.now = func() time.Time { return time.Date(2026, 3, 4, 12, 30, 0, 0, time.UTC) }
	return svc
}

func webFormInput() WebFormInput {
	return WebFormInput{
		TenantSlug: "acme",
		Name:       "Maria Silva",
		Phone:      "11 99999-0000",
		Message:    "Quero um orçamento para reforma",
	}
}

func TestWebFormCreatesLeadAndEnqueues(t *testing.T) {
	store := &fakeLeadStore{}
	idem := &fakeIdemStore{}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, &fakeTenantStore{tenant: activeTenant()}, idem, queue)

	lead, err := svc.IngestWebForm(context.Background(), webFormInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("created %d leads, want 1", len(store.created))
	}
	if store.created[0].Source != domain.SourceWebForm {
		t.Fatalf("source = %s, want %s", store.created[0].Source, domain.SourceWebForm)
	}
	if store.created[0].PhoneNormalized == nil {
		t.Fatal("phone should normalize to E.164")
	}
	if lead.Status != domain.StatusReceived {
		t.Fatalf("status = %s, want %s", lead.Status, domain.StatusReceived)
	}
	if queue.qualifyCalls != 1 {
		t.Fatalf("qualify enqueued %d times, want 1", queue.qualifyCalls)
	}
	if len(idem.marked) != 1 {
		t.Fatalf("idempotency keys marked = %d, want 1", len(idem.marked))
	}
}

func TestWebFormRepeatWithinWindowIsSuppressed(t *testing.T) {
	existing := domain.Lead{ID: uuid.New(), Status: domain.StatusQualified, Version: 3}
	store := &fakeLeadStore{byFingerprint: &existing}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, &fakeTenantStore{tenant: activeTenant()}, &fakeIdemStore{}, queue)

	// First submission reingests and marks the key; the identical repeat
	// must come back without touching the pipeline again.
	if _, err := svc.IngestWebForm(context.Background(), webFormInput()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.reingested = false
	queue.qualifyCalls = 0

	lead, err := svc.IngestWebForm(context.Background(), webFormInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lead.ID != existing.ID {
		t.Fatal("repeat should return the existing lead")
	}
	if store.reingested {
		t.Fatal("repeat must not reingest")
	}
	if queue.qualifyCalls != 0 {
		t.Fatal("repeat must not enqueue qualification")
	}
}

func TestWebFormUnexpiredMarkerResolvesByLeadID(t *testing.T) {
	// The processed marker remembers the lead id; a fingerprint miss (e.g.
	// the phone normalized differently) must not open a second record
	// inside the at-most-once window.
	existing := domain.Lead{ID: uuid.New(), Status: domain.StatusQualified, Version: 2}
	store := &fakeLeadStore{byID: &existing}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, &fakeTenantStore{tenant: activeTenant()}, &fakeIdemStore{}, queue)

	input := webFormInput()
	email := ""
	key := idempotency.Key(input.TenantSlug, input.Phone, email, input.Message, svc.now())
	svc.idem.(*fakeIdemStore).processed = map[string]uuid.UUID{key: existing.ID}

	lead, err := svc.IngestWebForm(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lead.ID != existing.ID {
		t.Fatal("marker should resolve to the lead it recorded")
	}
	if len(store.created) != 0 {
		t.Fatal("no new lead inside the idempotency window")
	}
	if queue.qualifyCalls != 0 {
		t.Fatal("nothing to enqueue for a suppressed repeat")
	}
}

func TestWebFormSameContactNewMessageReingests(t *testing.T) {
	existing := domain.Lead{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Name:     "Maria Silva",
		Status:   domain.StatusResponded,
		Version:  5,
	}
	store := &fakeLeadStore{byFingerprint: &existing}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, &fakeTenantStore{tenant: activeTenant()}, &fakeIdemStore{}, queue)

	input := webFormInput()
	input.Message = "Na verdade preciso de outro serviço"

	lead, err := svc.IngestWebForm(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !store.reingested {
		t.Fatal("same contact with a new message should reingest")
	}
	if len(store.created) != 0 {
		t.Fatal("no new lead row for a known contact")
	}
	if lead.Message != input.Message {
		t.Fatalf("message = %q, want the new one", lead.Message)
	}
	if queue.qualifyCalls != 1 {
		t.Fatal("reingestion should requalify")
	}
}

func TestWebFormLostInsertRaceReingestsWinner(t *testing.T) {
	winner := domain.Lead{
		ID:       uuid.New(),
		TenantID: uuid.New(),
		Name:     "Maria Silva",
		Status:   domain.StatusReceived,
		Version:  1,
	}
	store := &fakeLeadStore{
		createErr:          repository.ErrDuplicate,
		fingerprintOnRetry: &winner,
	}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, &fakeTenantStore{tenant: activeTenant()}, &fakeIdemStore{}, queue)

	lead, err := svc.IngestWebForm(context.Background(), webFormInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lead.ID != winner.ID {
		t.Fatal("the concurrent winner's row is the current lead")
	}
	if !store.reingested {
		t.Fatal("losing submission should fold into the winner's record")
	}
}

func TestInactiveTenantIsRejected(t *testing.T) {
	tenant := activeTenant()
	tenant.IsActive = false
	svc := newTestService(&fakeLeadStore{}, &fakeTenantStore{tenant: tenant}, &fakeIdemStore{}, &fakeEnqueuer{})

	if _, err := svc.IngestWebForm(context.Background(), webFormInput()); err == nil {
		t.Fatal("expected an error for an inactive tenant")
	}
}

func TestUnknownTenantIsRejected(t *testing.T) {
	svc := newTestService(&fakeLeadStore{}, &fakeTenantStore{err: tenants.ErrNotFound}, &fakeIdemStore{}, &fakeEnqueuer{})

	if _, err := svc.IngestWebForm(context.Background(), webFormInput()); err == nil {
		t.Fatal("expected an error for an unknown tenant")
	}
}

func rdInput() RDStationInput {
	mobile := "11 98888-7777"
	return RDStationInput{
		TenantSlug:   "acme",
		ExternalUUID: "5408c5a3-4711-4f2e-8d0c-13407a3e30f3",
		Name:         "João Souza",
		MobilePhone:  &mobile,
		CustomFields: map[string]string{"message": "Tenho interesse no serviço"},
	}
}

func TestRDStationCreatesLeadWithExternalID(t *testing.T) {
	store := &fakeLeadStore{}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, &fakeTenantStore{tenant: activeTenant()}, &fakeIdemStore{}, queue)

	input := rdInput()
	lead, err := svc.IngestRDStation(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("created %d leads, want 1", len(store.created))
	}
	params := store.created[0]
	if params.ExternalID == nil || *params.ExternalID != input.ExternalUUID {
		t.Fatal("external id must carry the RD Station contact uuid")
	}
	if params.Message != "Tenho interesse no serviço" {
		t.Fatalf("message = %q", params.Message)
	}
	if params.Source != domain.SourceRDStation {
		t.Fatalf("source = %s, want %s", params.Source, domain.SourceRDStation)
	}
	if lead.Status != domain.StatusReceived {
		t.Fatalf("status = %s", lead.Status)
	}
	if queue.qualifyCalls != 1 {
		t.Fatal("qualification should be enqueued")
	}
}

func TestRDStationReplayIsSuppressed(t *testing.T) {
	existing := domain.Lead{ID: uuid.New(), Status: domain.StatusResponded}
	store := &fakeLeadStore{byExternalID: &existing}
	queue := &fakeEnqueuer{}
	svc := newTestService(store, &fakeTenantStore{tenant: activeTenant()}, &fakeIdemStore{}, queue)

	lead, err := svc.IngestRDStation(context.Background(), rdInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lead.ID != existing.ID {
		t.Fatal("replay should return the existing lead")
	}
	if len(store.created) != 0 || queue.qualifyCalls != 0 {
		t.Fatal("replay must not create or enqueue anything")
	}
}

func TestRDStationMissingUUIDIsRejected(t *testing.T) {
	svc := newTestService(&fakeLeadStore{}, &fakeTenantStore{tenant: activeTenant()}, &fakeIdemStore{}, &fakeEnqueuer{})

	input := rdInput()
	input.ExternalUUID = ""
	if _, err := svc.IngestRDStation(context.Background(), input); err == nil {
		t.Fatal("expected an error for a payload without a contact uuid")
	}
}

func TestRDStationMessageFallsBackToInteresse(t *testing.T) {
	store := &fakeLeadStore{}
	svc := newTestService(store, &fakeTenantStore{tenant: activeTenant()}, &fakeIdemStore{}, &fakeEnqueuer{})

	input := rdInput()
	input.CustomFields = map[string]string{"interesse": "Orçamento de pintura"}
	if _, err := svc.IngestRDStation(context.Background(), input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.created[0].Message != "Orçamento de pintura" {
		t.Fatalf("message = %q", store.created[0].Message)
	}

	store.created = nil
	input.CustomFields = nil
	if _, err := svc.IngestRDStation(context.Background(), input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.created[0].Message != "Lead recebido via RD Station" {
		t.Fatalf("message = %q", store.created[0].Message)
	}
}
