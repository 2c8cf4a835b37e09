package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event types recorded in the audit trail. The column is free-form; these are
// the tags the pipeline itself emits.
const (
	EventLeadReceived        = "LEAD_RECEIVED"
	EventLeadUpdated         = "LEAD_UPDATED"
	EventStatusChanged       = "STATUS_CHANGED"
	EventLLMQualified        = "LLM_QUALIFIED"
	EventAutoHandoff         = "AUTO_HANDOFF"
	EventAutoClosed          = "AUTO_CLOSED"
	EventResponseSent        = "RESPONSE_SENT"
	EventAfterHoursAck       = "AFTER_HOURS_ACK"
	EventQualificationFailed = "QUALIFICATION_FAILED"
	EventResponseFailed      = "RESPONSE_FAILED"
	EventCRMSynced           = "CRM_SYNCED"
	EventCRMSyncFailed       = "CRM_SYNC_FAILED"
)

// ActorSystem is the actor recorded for transitions made by the pipeline
// itself; user-made transitions record the user identifier instead.
const (
	ActorSystem = "system"
	ActorLLM    = "llm"
)

// LeadEvent is an immutable audit record of a single lead state transition.
// Events are appended once and never updated or deleted.
type LeadEvent struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	TenantID    uuid.UUID
	EventType   string
	FromStatus  *Status
	ToStatus    *Status
	Description *string
	Actor       string
	CreatedAt   time.Time
}
