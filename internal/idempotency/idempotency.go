// Package idempotency implements the deduplication fingerprint and the
// processed-request marker store backing at-most-once ingestion.
//
// Two different keys guard ingestion. The fingerprint identifies "the same
// contact" (normalized phone + tenant) for the lifetime of the lead; the
// idempotency key identifies "the same submission event" and expires, so a
// later resubmission is a fresh event.
package idempotency

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fingerprint derives the deduplication hash for a contact within a tenant.
// Deterministic: the same normalized phone and tenant always collide.
func Fingerprint(phoneNormalized string, tenantID uuid.UUID) string {
	sum := sha256.Sum256([]byte(phoneNormalized + "|" + tenantID.String()))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Key derives the idempotency key for an ingestion request. The hour bucket
// collapses repeated submissions of the same form within the hour into one
// processing pass while letting a later resubmission through.
func Key(tenantSlug, phone, email, message string, at time.Time) string {
	bucket := at.UTC().Format("2006010215")
	input := fmt.Sprintf("%s|%s|%s|%s|%s", tenantSlug, phone, email, message, bucket)
	sum := sha256.Sum256([]byte(input))
	return base64.StdEncoding.EncodeToString(sum[:])
}
