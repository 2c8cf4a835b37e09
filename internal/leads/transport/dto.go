// Package transport defines the wire DTOs for the lead HTTP surface.
package transport

import (
	"time"

	"leadflow_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// WebFormRequest is a lead submission from an embedded web form.
type WebFormRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=200"`
	Phone       string  `json:"phone" validate:"required,min=8,max=30"`
	Email       *string `json:"email" validate:"omitempty,email,max=320"`
	Company     *string `json:"company" validate:"omitempty,max=200"`
	City        *string `json:"city" validate:"omitempty,max=120"`
	State       *string `json:"state" validate:"omitempty,max=60"`
	Message     string  `json:"message" validate:"required,min=1,max=5000"`
	SourceURL   *string `json:"sourceUrl" validate:"omitempty,max=2000"`
	UTMSource   *string `json:"utmSource" validate:"omitempty,max=200"`
	UTMCampaign *string `json:"utmCampaign" validate:"omitempty,max=200"`
	UTMMedium   *string `json:"utmMedium" validate:"omitempty,max=200"`
	UTMContent  *string `json:"utmContent" validate:"omitempty,max=200"`
	Gclid       *string `json:"gclid" validate:"omitempty,max=500"`
	Fbclid      *string `json:"fbclid" validate:"omitempty,max=500"`
}

// RDStationWebhookRequest is the conversion event RD Station posts.
type RDStationWebhookRequest struct {
	EventType   string           `json:"event_type"`
	EventFamily string           `json:"event_family"`
	Payload     RDStationPayload `json:"payload"`
}

// RDStationPayload is the contact inside a webhook event.
type RDStationPayload struct {
	UUID               string            `json:"uuid" validate:"required"`
	Name               string            `json:"name" validate:"required"`
	Email              *string           `json:"email"`
	MobilePhone        *string           `json:"mobile_phone"`
	PersonalPhone      *string           `json:"personal_phone"`
	City               *string           `json:"city"`
	State              *string           `json:"state"`
	Company            *string           `json:"company"`
	CustomFields       map[string]string `json:"custom_fields"`
	UTMSource          *string           `json:"utm_source"`
	UTMCampaign        *string           `json:"utm_campaign"`
	UTMMedium          *string           `json:"utm_medium"`
	UTMContent         *string           `json:"utm_content"`
	LatestSourceOrigin *string           `json:"latest_source_origin"`
}

// IngestResponse acknowledges an accepted submission.
type IngestResponse struct {
	LeadID uuid.UUID `json:"leadId"`
	Status string    `json:"status"`
}

// LeadResponse is the read-model projection of a lead.
type LeadResponse struct {
	ID              uuid.UUID  `json:"id"`
	TenantID        uuid.UUID  `json:"tenantId"`
	Name            string     `json:"name"`
	Phone           string     `json:"phone"`
	Email           *string    `json:"email,omitempty"`
	Company         *string    `json:"company,omitempty"`
	City            *string    `json:"city,omitempty"`
	State           *string    `json:"state,omitempty"`
	Message         string     `json:"message"`
	Source          string     `json:"source"`
	SourceURL       *string    `json:"sourceUrl,omitempty"`
	Status          string     `json:"status"`
	LeadScore       *int       `json:"leadScore,omitempty"`
	Intent          *string    `json:"intent,omitempty"`
	Urgency         *string    `json:"urgency,omitempty"`
	ServiceMatch    []string   `json:"serviceMatch,omitempty"`
	RiskFlags       []string   `json:"riskFlags,omitempty"`
	HasResponded    bool       `json:"hasResponded"`
	RespondedAt     *time.Time `json:"respondedAt,omitempty"`
	ResponseChannel *string    `json:"responseChannel,omitempty"`
	IsHandedOff     bool       `json:"isHandedOff"`
	HandedOffAt     *time.Time `json:"handedOffAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// LeadEventResponse is one audit trail entry.
type LeadEventResponse struct {
	ID          uuid.UUID `json:"id"`
	LeadID      uuid.UUID `json:"leadId"`
	EventType   string    `json:"eventType"`
	FromStatus  *string   `json:"fromStatus,omitempty"`
	ToStatus    *string   `json:"toStatus,omitempty"`
	Description *string   `json:"description,omitempty"`
	Actor       string    `json:"actor"`
	CreatedAt   time.Time `json:"createdAt"`
}

// LeadListResponse is a paged search result.
type LeadListResponse struct {
	Items    []LeadResponse `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// FromLead projects a domain lead into its response DTO.
func FromLead(lead domain.Lead) LeadResponse {
	resp := LeadResponse{
		ID:              lead.ID,
		TenantID:        lead.TenantID,
		Name:            lead.Name,
		Phone:           lead.Phone,
		Email:           lead.Email,
		Company:         lead.Company,
		City:            lead.City,
		State:           lead.State,
		Message:         lead.Message,
		Source:          string(lead.Source),
		SourceURL:       lead.Attribution.SourceURL,
		Status:          string(lead.Status),
		HasResponded:    lead.HasResponded,
		RespondedAt:     lead.RespondedAt,
		ResponseChannel: lead.ResponseChannel,
		IsHandedOff:     lead.IsHandedOff,
		HandedOffAt:     lead.HandedOffAt,
		CreatedAt:       lead.CreatedAt,
		UpdatedAt:       lead.UpdatedAt,
	}

	if q := lead.Qualification; q != nil {
		intent := string(q.Intent)
		urgency := string(q.Urgency)
		resp.LeadScore = &q.Score
		resp.Intent = &intent
		resp.Urgency = &urgency
		resp.ServiceMatch = q.ServiceMatch
		resp.RiskFlags = q.RiskFlags
	}

	return resp
}

// FromEvent projects a domain event into its response DTO.
func FromEvent(event domain.LeadEvent) LeadEventResponse {
	resp := LeadEventResponse{
		ID:          event.ID,
		LeadID:      event.LeadID,
		EventType:   event.EventType,
		Description: event.Description,
		Actor:       event.Actor,
		CreatedAt:   event.CreatedAt,
	}
	if event.FromStatus != nil {
		from := string(*event.FromStatus)
		resp.FromStatus = &from
	}
	if event.ToStatus != nil {
		to := string(*event.ToStatus)
		resp.ToStatus = &to
	}
	return resp
}
