package domain

import (
	"time"

	"github.com/google/uuid"
)

// Source identifies the channel a lead arrived through.
type Source string

const (
	SourceWebForm   Source = "webform"
	SourceRDStation Source = "rdstation"
)

// ParseSource converts a stored string into a Source.
func ParseSource(value string) (Source, bool) {
	switch Source(value) {
	case SourceWebForm, SourceRDStation:
		return Source(value), true
	}
	return "", false
}

// Attribution carries the campaign tracking fields captured at ingestion.
type Attribution struct {
	SourceURL   *string
	UTMSource   *string
	UTMCampaign *string
	UTMMedium   *string
	UTMContent  *string
	Gclid       *string
	Fbclid      *string
}

// Lead is a prospective customer interaction moving through the pipeline.
//
// Version is bumped on every persisted update; stage writes compare-and-swap
// on it so a retried job racing a fresh one fails retryably instead of
// clobbering state.
type Lead struct {
	ID       uuid.UUID
	TenantID uuid.UUID

	Name            string
	Phone           string
	PhoneNormalized *string
	Email           *string
	Company         *string
	City            *string
	State           *string
	Message         string

	Source      Source
	Attribution Attribution

	Status Status

	DeduplicationHash string
	ExternalID        *string
	IdempotencyKey    *string

	Qualification  *Qualification
	EngineRawReply *string

	HasResponded    bool
	RespondedAt     *time.Time
	ResponseChannel *string

	IsHandedOff bool
	HandedOffAt *time.Time
	HandedOffBy *string

	RetryCount int
	LastError  *string

	Version   int
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Destination reports how the lead can be reached on the given channel and
// returns the address to use.
func (l *Lead) Destination(channel ReplyChannel) (string, bool) {
	switch channel {
	case ChannelWhatsApp:
		if l.PhoneNormalized != nil && *l.PhoneNormalized != "" {
			return *l.PhoneNormalized, true
		}
	case ChannelEmail:
		if l.Email != nil && *l.Email != "" {
			return *l.Email, true
		}
	}
	return "", false
}
