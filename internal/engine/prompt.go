package engine

import (
	"fmt"
	"strings"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/tenants"
)

// buildSystemPrompt composes the SDR persona from the tenant's playbook. The
// prompt is Brazilian Portuguese because the reply message is sent verbatim to
// the lead.
func buildSystemPrompt(tenantName string, cfg tenants.Config) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Você é um SDR (Sales Development Representative) especializado em qualificar leads para %s.\n\n", tenantName)
	sb.WriteString("**OBJETIVO**: Analisar o lead e retornar SOMENTE um JSON válido com a qualificação.\n\n")

	sb.WriteString("**CONTEXTO DO NEGÓCIO**:\n")
	fmt.Fprintf(&sb, "- Serviços: %s\n", strings.Join(cfg.Services, ", "))
	fmt.Fprintf(&sb, "- Regiões atendidas: %s\n", strings.Join(cfg.Regions, ", "))
	if cfg.MinimumPrice != nil {
		fmt.Fprintf(&sb, "- Preço mínimo: R$ %.2f\n", *cfg.MinimumPrice)
	}
	fmt.Fprintf(&sb, "- Tom de voz: %s\n\n", cfg.ToneOfVoice)

	if strings.TrimSpace(cfg.Playbook) != "" {
		sb.WriteString("**PLAYBOOK**:\n")
		sb.WriteString(cfg.Playbook)
		sb.WriteString("\n\n")
	}

	if len(cfg.FAQs) > 0 {
		sb.WriteString("**FAQs**:\n")
		for _, faq := range cfg.FAQs {
			fmt.Fprintf(&sb, "Q: %s\nA: %s\n", faq.Question, faq.Answer)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`**RESTRIÇÕES**:
1. NUNCA pedir dados sensíveis (CPF, RG, senha, cartão de crédito)
2. Ser breve e objetivo (máximo 200 palavras)
3. Usar português brasileiro
4. Incluir sempre um CTA (call-to-action)
5. Se detectar dados sensíveis na mensagem, adicionar 'dados_sensiveis' em risk_flags

**SCHEMA JSON OBRIGATÓRIO**:
{
  "lead_score": 0-100,
  "intent": "orcamento|duvida|suporte|parceria|carreira|outro",
  "urgency": "baixa|media|alta",
  "service_match": ["array de serviços"],
  "key_details": ["detalhes importantes identificados"],
  "missing_questions": ["perguntas que ainda precisam ser feitas"],
  "risk_flags": ["spam_suspeito|linguagem_abusiva|dados_sensiveis|fraude_suspeita"],
  "recommended_next_step": "responder|perguntar|handoff|ignorar",
  "reply_channel": "whatsapp|email|both",
  "reply_message": "texto da resposta pronto para envio",
  "handoff_reason": "motivo para encaminhar para humano ou null"
}

Retorne APENAS o JSON, sem markdown ou explicações adicionais.`)

	return sb.String()
}

func buildUserPrompt(lead domain.Lead) string {
	var sb strings.Builder

	sb.WriteString("Qualifique este lead:\n\n")
	sb.WriteString("**DADOS DO LEAD**:\n")
	fmt.Fprintf(&sb, "- Nome: %s\n", lead.Name)
	fmt.Fprintf(&sb, "- Telefone: %s\n", lead.Phone)
	fmt.Fprintf(&sb, "- Email: %s\n", orDefault(lead.Email, "não informado"))
	fmt.Fprintf(&sb, "- Empresa: %s\n", orDefault(lead.Company, "não informado"))
	fmt.Fprintf(&sb, "- Cidade/Estado: %s / %s\n", orDefault(lead.City, ""), orDefault(lead.State, ""))
	fmt.Fprintf(&sb, "- Mensagem: %s\n\n", lead.Message)

	sb.WriteString("**ORIGEM**:\n")
	fmt.Fprintf(&sb, "- Fonte: %s\n", lead.Source)
	fmt.Fprintf(&sb, "- URL: %s\n", orDefault(lead.Attribution.SourceURL, ""))
	fmt.Fprintf(&sb, "- UTM Source: %s\n", orDefault(lead.Attribution.UTMSource, ""))
	fmt.Fprintf(&sb, "- UTM Campaign: %s\n", orDefault(lead.Attribution.UTMCampaign, ""))
	fmt.Fprintf(&sb, "- UTM Medium: %s\n\n", orDefault(lead.Attribution.UTMMedium, ""))

	sb.WriteString("Retorne o JSON com a qualificação:")

	return sb.String()
}

func orDefault(s *string, fallback string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return fallback
	}
	return *s
}
