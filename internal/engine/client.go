// Package engine calls the Gemini API to qualify a lead against the tenant's
// playbook and returns the raw JSON reply for decoding by the caller.
package engine

import (
	"context"
	"fmt"
	"strings"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/tenants"
	"leadflow_backend/platform/config"

	"google.golang.org/genai"
)

// Qualifier produces a raw qualification reply for a lead.
type Qualifier interface {
	Qualify(ctx context.Context, lead domain.Lead, tenant tenants.Tenant) (string, error)
}

type Client struct {
	client *genai.Client
	model  string
}

func NewClient(ctx context.Context, cfg config.EngineConfig) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetEngineAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{client: gc, model: cfg.GetEngineModel()}, nil
}

// Qualify sends the tenant playbook plus the lead context and returns the
// model's reply text. The reply is expected to be the qualification JSON but
// is returned as-is; decoding and enum validation happen in the domain layer.
func (c *Client) Qualify(ctx context.Context, lead domain.Lead, tenant tenants.Tenant) (string, error) {
	systemPrompt := buildSystemPrompt(tenant.Name, tenant.Config)
	userPrompt := buildUserPrompt(lead)

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(userPrompt),
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0.3),
			MaxOutputTokens:   1500,
		},
	)
	if err != nil {
		return "", fmt.Errorf("engine call failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("engine returned empty reply for lead %s", lead.ID)
	}

	return text, nil
}
