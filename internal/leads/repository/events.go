package repository

import (
	"context"

	"leadflow_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// AppendEvent writes an audit trail row. Events are append-only.
func (r *Repository) AppendEvent(ctx context.Context, event domain.LeadEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lead_events (lead_id, tenant_id, event_type, from_status, to_status, description, actor)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.LeadID, event.TenantID, event.EventType,
		statusText(event.FromStatus), statusText(event.ToStatus),
		event.Description, event.Actor)
	return err
}

// ListEvents returns a lead's audit trail, oldest first.
func (r *Repository) ListEvents(ctx context.Context, leadID, tenantID uuid.UUID) ([]domain.LeadEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, tenant_id, event_type, from_status, to_status, description, actor, created_at
		FROM lead_events
		WHERE lead_id = $1 AND tenant_id = $2
		ORDER BY created_at ASC
	`, leadID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.LeadEvent, 0)
	for rows.Next() {
		var (
			e        domain.LeadEvent
			from, to *string
		)
		if err := rows.Scan(&e.ID, &e.LeadID, &e.TenantID, &e.EventType, &from, &to, &e.Description, &e.Actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.FromStatus = statusFromText(from)
		e.ToStatus = statusFromText(to)
		events = append(events, e)
	}
	return events, rows.Err()
}

func statusText(s *domain.Status) *string {
	if s == nil {
		return nil
	}
	text := string(*s)
	return &text
}

func statusFromText(s *string) *domain.Status {
	if s == nil {
		return nil
	}
	status := domain.Status(*s)
	return &status
}
