package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadflow_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("lead not found")
	// ErrVersionConflict signals a lost optimistic-concurrency race; the job
	// queue retries the stage, which re-reads the lead.
	ErrVersionConflict = errors.New("lead modified concurrently")
	// ErrDuplicate signals a lost insert race on the tenant/fingerprint
	// unique index; the caller re-reads the winner's row.
	ErrDuplicate = errors.New("lead already exists")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `
	id, tenant_id, name, phone, phone_normalized, email, company, city, state, message,
	source, source_url, utm_source, utm_campaign, utm_medium, utm_content, gclid, fbclid,
	status, dedup_hash, external_id, idempotency_key,
	lead_score, intent, urgency, service_match, key_details, missing_questions, risk_flags,
	recommended_next_step, reply_channel, reply_message, handoff_reason, engine_raw_reply,
	has_responded, responded_at, response_channel,
	is_handed_off, handed_off_at, handed_off_by,
	retry_count, last_error, version, created_at, updated_at`

type CreateLeadParams struct {
	TenantID        uuid.UUID
	Name            string
	Phone           string
	PhoneNormalized *string
	Email           *string
	Company         *string
	City            *string
	State           *string
	Message         string
	Source          domain.Source
	Attribution     domain.Attribution
	DedupHash       string
	ExternalID      *string
	IdempotencyKey  *string
}

func (r *Repository) Create(ctx context.Context, params CreateLeadParams) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			tenant_id, name, phone, phone_normalized, email, company, city, state, message,
			source, source_url, utm_source, utm_campaign, utm_medium, utm_content, gclid, fbclid,
			status, dedup_hash, external_id, idempotency_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		RETURNING `+leadColumns,
		params.TenantID, params.Name, params.Phone, params.PhoneNormalized, params.Email,
		params.Company, params.City, params.State, params.Message,
		string(params.Source), params.Attribution.SourceURL, params.Attribution.UTMSource,
		params.Attribution.UTMCampaign, params.Attribution.UTMMedium, params.Attribution.UTMContent,
		params.Attribution.Gclid, params.Attribution.Fbclid,
		string(domain.StatusReceived), params.DedupHash, params.ExternalID, params.IdempotencyKey,
	)
	lead, err := scanLead(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Lead{}, ErrDuplicate
		}
		return domain.Lead{}, err
	}
	return lead, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	return scanLead(row)
}

// GetByFingerprint returns the current lead for a contact within a tenant.
func (r *Repository) GetByFingerprint(ctx context.Context, dedupHash string, tenantID uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE dedup_hash = $1 AND tenant_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, dedupHash, tenantID)
	return scanLead(row)
}

// GetByExternalID returns the lead a webhook upsert previously created.
func (r *Repository) GetByExternalID(ctx context.Context, externalID string, tenantID uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE external_id = $1 AND tenant_id = $2
	`, externalID, tenantID)
	return scanLead(row)
}

// Reingest mutates an existing lead on a repeat submission from the same
// contact: the message is replaced and the lead re-enters the pipeline.
func (r *Repository) Reingest(ctx context.Context, id uuid.UUID, message string, idempotencyKey *string) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE leads
		SET message = $2,
			status = $3,
			idempotency_key = COALESCE($4, idempotency_key),
			version = version + 1,
			updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns,
		id, message, string(domain.StatusReceived), idempotencyKey,
	)
	return scanLead(row)
}

// UpdateStatus moves the lead to the given status under the version check.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, version int, status domain.Status) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE leads
		SET status = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+leadColumns,
		id, version, string(status),
	)
	return scanLeadCAS(row)
}

// SaveQualification stores the engine's decoded output and advances the lead
// to Qualified, under the version check.
func (r *Repository) SaveQualification(ctx context.Context, id uuid.UUID, version int, q *domain.Qualification, rawReply string) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE leads
		SET lead_score = $3,
			intent = $4,
			urgency = $5,
			service_match = $6,
			key_details = $7,
			missing_questions = $8,
			risk_flags = $9,
			recommended_next_step = $10,
			reply_channel = $11,
			reply_message = $12,
			handoff_reason = $13,
			engine_raw_reply = $14,
			status = $15,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+leadColumns,
		id, version,
		q.Score, string(q.Intent), string(q.Urgency),
		q.ServiceMatch, q.KeyDetails, q.MissingQuestions, q.RiskFlags,
		string(q.NextStep), string(q.ReplyChannel), q.ReplyMessage, q.HandoffReason,
		rawReply, string(domain.StatusQualified),
	)
	return scanLeadCAS(row)
}

// MarkHandoff moves the lead to Handoff and records who takes over.
func (r *Repository) MarkHandoff(ctx context.Context, id uuid.UUID, version int, reason string, handedOffBy *string) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE leads
		SET status = $3,
			is_handed_off = true,
			handed_off_at = now(),
			handed_off_by = $4,
			handoff_reason = $5,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+leadColumns,
		id, version, string(domain.StatusHandoff), handedOffBy, reason,
	)
	return scanLeadCAS(row)
}

// MarkClosed closes the lead without a response (guardrail outcome).
func (r *Repository) MarkClosed(ctx context.Context, id uuid.UUID, version int) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE leads
		SET status = $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+leadColumns,
		id, version, string(domain.StatusClosed),
	)
	return scanLeadCAS(row)
}

// MarkResponded records a successful reply send.
func (r *Repository) MarkResponded(ctx context.Context, id uuid.UUID, version int, channel string, at time.Time) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE leads
		SET status = $3,
			has_responded = true,
			responded_at = $4,
			response_channel = $5,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+leadColumns,
		id, version, string(domain.StatusResponded), at, channel,
	)
	return scanLeadCAS(row)
}

// MarkFailed records a stage failure. This write intentionally skips the
// version check: the failure must land even when the stage lost a race.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, stageErr string) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE leads
		SET status = $2,
			last_error = $3,
			retry_count = retry_count + 1,
			version = version + 1,
			updated_at = now()
		WHERE id = $1
		RETURNING `+leadColumns,
		id, string(domain.StatusFailed), stageErr,
	)
	return scanLead(row)
}

type SearchParams struct {
	TenantID  uuid.UUID
	Query     string
	Status    *domain.Status
	Source    *domain.Source
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}

// Search returns leads matching the filters plus the total match count.
func (r *Repository) Search(ctx context.Context, params SearchParams) ([]domain.Lead, int, error) {
	where, args := buildSearchWhere(params)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	args = append(args, pageSize, (page-1)*pageSize)
	query := fmt.Sprintf(`
		SELECT %s FROM leads %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, leadColumns, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, err
		}
		leads = append(leads, lead)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}

	return leads, total, nil
}

func buildSearchWhere(params SearchParams) (string, []interface{}) {
	clauses := []string{"tenant_id = $1"}
	args := []interface{}{params.TenantID}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if q := strings.TrimSpace(params.Query); q != "" {
		add("(name ILIKE $%[1]d OR phone ILIKE $%[1]d OR email ILIKE $%[1]d OR message ILIKE $%[1]d)", "%"+q+"%")
	}
	if params.Status != nil {
		add("status = $%d", string(*params.Status))
	}
	if params.Source != nil {
		add("source = $%d", string(*params.Source))
	}
	if params.StartDate != nil {
		add("created_at >= $%d", *params.StartDate)
	}
	if params.EndDate != nil {
		add("created_at <= $%d", *params.EndDate)
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

func scanLeadCAS(row pgx.Row) (domain.Lead, error) {
	lead, err := scanLead(row)
	if errors.Is(err, ErrNotFound) {
		return domain.Lead{}, ErrVersionConflict
	}
	return lead, err
}

func scanLead(row pgx.Row) (domain.Lead, error) {
	var (
		lead                                  domain.Lead
		source, status                        string
		score                                 *int
		intent, urgency, nextStep, replyChan  *string
		serviceMatch, keyDetails              []string
		missingQuestions, riskFlags           []string
		replyMessage, handoffReason, rawReply *string
	)

	err := row.Scan(
		&lead.ID, &lead.TenantID, &lead.Name, &lead.Phone, &lead.PhoneNormalized,
		&lead.Email, &lead.Company, &lead.City, &lead.State, &lead.Message,
		&source, &lead.Attribution.SourceURL, &lead.Attribution.UTMSource,
		&lead.Attribution.UTMCampaign, &lead.Attribution.UTMMedium,
		&lead.Attribution.UTMContent, &lead.Attribution.Gclid, &lead.Attribution.Fbclid,
		&status, &lead.DeduplicationHash, &lead.ExternalID, &lead.IdempotencyKey,
		&score, &intent, &urgency, &serviceMatch, &keyDetails, &missingQuestions, &riskFlags,
		&nextStep, &replyChan, &replyMessage, &handoffReason, &rawReply,
		&lead.HasResponded, &lead.RespondedAt, &lead.ResponseChannel,
		&lead.IsHandedOff, &lead.HandedOffAt, &lead.HandedOffBy,
		&lead.RetryCount, &lead.LastError, &lead.Version, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	if err != nil {
		return domain.Lead{}, err
	}

	if parsed, ok := domain.ParseSource(source); ok {
		lead.Source = parsed
	}
	parsedStatus, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Lead{}, err
	}
	lead.Status = parsedStatus
	lead.EngineRawReply = rawReply

	if score != nil && intent != nil && urgency != nil && nextStep != nil && replyChan != nil {
		lead.Qualification = &domain.Qualification{
			Score:            *score,
			Intent:           domain.Intent(*intent),
			Urgency:          domain.Urgency(*urgency),
			ServiceMatch:     serviceMatch,
			KeyDetails:       keyDetails,
			MissingQuestions: missingQuestions,
			RiskFlags:        riskFlags,
			NextStep:         domain.NextStep(*nextStep),
			ReplyChannel:     domain.ReplyChannel(*replyChan),
			HandoffReason:    handoffReason,
		}
		if replyMessage != nil {
			lead.Qualification.ReplyMessage = *replyMessage
		}
	}

	return lead, nil
}
