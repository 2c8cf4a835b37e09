// Package crm mirrors qualified leads into RD Station. Sync is best-effort:
// a failed sync never blocks or fails the lead pipeline.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/tenants"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

// ErrNotConfigured marks a sync that cannot run because CRM is disabled or
// the tenant carries no access token. The caller skips instead of retrying.
var ErrNotConfigured = errors.New("crm not configured")

type RDStationClient struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

func NewRDStationClient(cfg config.CRMConfig, log *logger.Logger) *RDStationClient {
	if !cfg.IsCRMEnabled() {
		return nil
	}

	return &RDStationClient{
		baseURL: strings.TrimRight(cfg.GetCRMBaseURL(), "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type contactPayload struct {
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	MobilePhone   string   `json:"mobile_phone"`
	PersonalPhone string   `json:"personal_phone"`
	City          *string  `json:"city,omitempty"`
	State         *string  `json:"state,omitempty"`
	Company       *string  `json:"company,omitempty"`
	CFLeadScore   *int     `json:"cf_lead_score,omitempty"`
	CFIntent      *string  `json:"cf_intent,omitempty"`
	CFUrgency     *string  `json:"cf_urgency,omitempty"`
	CFLeadID      string   `json:"cf_lead_id"`
	Tags          []string `json:"tags"`
}

// UpsertLead pushes the lead as an RD Station contact. ErrNotConfigured means
// there is nothing to sync for this tenant; any other error is a failed push.
func (c *RDStationClient) UpsertLead(ctx context.Context, lead domain.Lead, tenant tenants.Tenant) error {
	if c == nil {
		return ErrNotConfigured
	}

	token := strings.TrimSpace(tenant.Config.CRMAccessToken)
	if token == "" {
		c.log.Debug("crm sync skipped, tenant has no access token", "tenant_id", tenant.ID)
		return ErrNotConfigured
	}

	email := fmt.Sprintf("%s@leadflow.placeholder.com", lead.ID)
	if lead.Email != nil && *lead.Email != "" {
		email = *lead.Email
	}

	payload := contactPayload{
		Email:         email,
		Name:          lead.Name,
		MobilePhone:   mobilePhone(lead),
		PersonalPhone: lead.Phone,
		City:          lead.City,
		State:         lead.State,
		Company:       lead.Company,
		CFLeadID:      lead.ID.String(),
		Tags:          buildTags(lead),
	}
	if q := lead.Qualification; q != nil {
		intent := string(q.Intent)
		urgency := string(q.Urgency)
		payload.CFLeadScore = &q.Score
		payload.CFIntent = &intent
		payload.CFUrgency = &urgency
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("crm payload marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/platform/contacts", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("crm sync request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("crm sync rejected with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return nil
}

func mobilePhone(lead domain.Lead) string {
	if lead.PhoneNormalized != nil && *lead.PhoneNormalized != "" {
		return *lead.PhoneNormalized
	}
	return lead.Phone
}

func buildTags(lead domain.Lead) []string {
	tags := []string{"leadflow", "source:" + string(lead.Source)}
	if q := lead.Qualification; q != nil {
		tags = append(tags, "intent:"+string(q.Intent), "urgency:"+string(q.Urgency))
	}
	return tags
}
