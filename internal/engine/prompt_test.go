package engine

import (
	"strings"
	"testing"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/tenants"
)

func TestSystemPromptIncludesPlaybook(t *testing.T) {
	minPrice := 5000.0
	cfg := tenants.Config{
		Playbook:     "Responder em até 5 minutos.",
		Services:     []string{"Instalação solar", "Manutenção"},
		Regions:      []string{"São Paulo", "Campinas"},
		MinimumPrice: &minPrice,
		ToneOfVoice:  "profissional e acolhedor",
		FAQs: []tenants.FAQ{
			{Question: "Qual o prazo de instalação?", Answer: "Até 30 dias."},
		},
	}

	prompt := buildSystemPrompt("Solar Tech", cfg)

	for _, want := range []string{
		"Solar Tech",
		"Instalação solar, Manutenção",
		"São Paulo, Campinas",
		"Responder em até 5 minutos.",
		"Qual o prazo de instalação?",
		"lead_score",
		"recommended_next_step",
		"dados_sensiveis",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestSystemPromptOmitsEmptySections(t *testing.T) {
	prompt := buildSystemPrompt("Acme", tenants.Config{})

	if strings.Contains(prompt, "**PLAYBOOK**") {
		t.Error("expected playbook section to be omitted when empty")
	}
	if strings.Contains(prompt, "**FAQs**") {
		t.Error("expected FAQ section to be omitted when empty")
	}
}

func TestUserPromptFillsDefaults(t *testing.T) {
	lead := domain.Lead{
		Name:    "Maria Silva",
		Phone:   "+5511999999999",
		Message: "Quero um orçamento",
		Source:  domain.SourceWebForm,
	}

	prompt := buildUserPrompt(lead)

	if !strings.Contains(prompt, "Maria Silva") {
		t.Error("user prompt missing lead name")
	}
	if !strings.Contains(prompt, "Email: não informado") {
		t.Error("expected missing email to render placeholder")
	}
	if !strings.Contains(prompt, "Quero um orçamento") {
		t.Error("user prompt missing lead message")
	}
}
