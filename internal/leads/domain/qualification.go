package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Intent is the reasoning engine's classification of what the lead wants.
type Intent string

const (
	IntentOrcamento Intent = "orcamento"
	IntentDuvida    Intent = "duvida"
	IntentSuporte   Intent = "suporte"
	IntentParceria  Intent = "parceria"
	IntentCarreira  Intent = "carreira"
	IntentOutro     Intent = "outro"
)

// Urgency is the engine's read of how quickly the lead expects contact.
type Urgency string

const (
	UrgencyBaixa Urgency = "baixa"
	UrgencyMedia Urgency = "media"
	UrgencyAlta  Urgency = "alta"
)

// NextStep is the engine's recommended follow-up action.
type NextStep string

const (
	StepResponder NextStep = "responder"
	StepPerguntar NextStep = "perguntar"
	StepHandoff   NextStep = "handoff"
	StepIgnorar   NextStep = "ignorar"
)

// ReplyChannel selects the channel(s) the reply goes out on.
type ReplyChannel string

const (
	ChannelWhatsApp ReplyChannel = "whatsapp"
	ChannelEmail    ReplyChannel = "email"
	ChannelBoth     ReplyChannel = "both"
)

// Risk flag markers the guardrails key on. The engine may emit other strings;
// only these two gate behavior.
const (
	RiskSensitiveData = "dados_sensiveis"
	RiskSuspectedSpam = "spam_suspeito"
)

// Qualification is the structured output of the reasoning engine after strict
// decoding. Unknown enum values never reach this struct.
type Qualification struct {
	Score            int
	Intent           Intent
	Urgency          Urgency
	ServiceMatch     []string
	KeyDetails       []string
	MissingQuestions []string
	RiskFlags        []string
	NextStep         NextStep
	ReplyChannel     ReplyChannel
	ReplyMessage     string
	HandoffReason    *string
}

// HasRiskFlag reports whether the given marker appears in the risk flags.
func (q *Qualification) HasRiskFlag(marker string) bool {
	for _, f := range q.RiskFlags {
		if strings.EqualFold(strings.TrimSpace(f), marker) {
			return true
		}
	}
	return false
}

// rawQualification mirrors the JSON schema the engine is instructed to emit.
type rawQualification struct {
	LeadScore        int      `json:"lead_score"`
	Intent           string   `json:"intent"`
	Urgency          string   `json:"urgency"`
	ServiceMatch     []string `json:"service_match"`
	KeyDetails       []string `json:"key_details"`
	MissingQuestions []string `json:"missing_questions"`
	RiskFlags        []string `json:"risk_flags"`
	NextStep         string   `json:"recommended_next_step"`
	ReplyChannel     string   `json:"reply_channel"`
	ReplyMessage     string   `json:"reply_message"`
	HandoffReason    *string  `json:"handoff_reason"`
}

// DecodeQualification parses the engine's reply into a Qualification.
// Enum fields are matched against their closed vocabularies and an unknown
// value is a hard error: coercing malformed engine output would let it slip
// past the guardrails. The caller treats any error as a retryable stage
// failure.
func DecodeQualification(raw []byte) (*Qualification, error) {
	var rq rawQualification
	if err := json.Unmarshal(raw, &rq); err != nil {
		salvaged, ok := SalvageJSON(string(raw))
		if !ok {
			return nil, fmt.Errorf("engine reply is not a JSON object: %w", err)
		}
		if err := json.Unmarshal([]byte(salvaged), &rq); err != nil {
			return nil, fmt.Errorf("salvaged engine reply is not a JSON object: %w", err)
		}
	}

	if rq.LeadScore < 0 || rq.LeadScore > 100 {
		return nil, fmt.Errorf("lead_score %d outside 0-100", rq.LeadScore)
	}

	intent, err := parseIntent(rq.Intent)
	if err != nil {
		return nil, err
	}
	urgency, err := parseUrgency(rq.Urgency)
	if err != nil {
		return nil, err
	}
	step, err := parseNextStep(rq.NextStep)
	if err != nil {
		return nil, err
	}
	channel, err := parseReplyChannel(rq.ReplyChannel)
	if err != nil {
		return nil, err
	}

	return &Qualification{
		Score:            rq.LeadScore,
		Intent:           intent,
		Urgency:          urgency,
		ServiceMatch:     emptyIfNil(rq.ServiceMatch),
		KeyDetails:       emptyIfNil(rq.KeyDetails),
		MissingQuestions: emptyIfNil(rq.MissingQuestions),
		RiskFlags:        emptyIfNil(rq.RiskFlags),
		NextStep:         step,
		ReplyChannel:     channel,
		ReplyMessage:     rq.ReplyMessage,
		HandoffReason:    rq.HandoffReason,
	}, nil
}

// SalvageJSON extracts the outermost {...} span from free text, for engine
// replies wrapped in markdown fences or prose.
func SalvageJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func parseIntent(value string) (Intent, error) {
	switch Intent(normalizeEnum(value)) {
	case IntentOrcamento, IntentDuvida, IntentSuporte, IntentParceria, IntentCarreira, IntentOutro:
		return Intent(normalizeEnum(value)), nil
	}
	return "", fmt.Errorf("unknown intent %q", value)
}

func parseUrgency(value string) (Urgency, error) {
	switch Urgency(normalizeEnum(value)) {
	case UrgencyBaixa, UrgencyMedia, UrgencyAlta:
		return Urgency(normalizeEnum(value)), nil
	}
	return "", fmt.Errorf("unknown urgency %q", value)
}

func parseNextStep(value string) (NextStep, error) {
	switch NextStep(normalizeEnum(value)) {
	case StepResponder, StepPerguntar, StepHandoff, StepIgnorar:
		return NextStep(normalizeEnum(value)), nil
	}
	return "", fmt.Errorf("unknown recommended_next_step %q", value)
}

func parseReplyChannel(value string) (ReplyChannel, error) {
	switch ReplyChannel(normalizeEnum(value)) {
	case ChannelWhatsApp, ChannelEmail, ChannelBoth:
		return ReplyChannel(normalizeEnum(value)), nil
	}
	return "", fmt.Errorf("unknown reply_channel %q", value)
}

func normalizeEnum(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// EncodeQualification serializes a Qualification back into the wire schema.
// Decoding its output yields identical field values.
func EncodeQualification(q *Qualification) ([]byte, error) {
	return json.Marshal(rawQualification{
		LeadScore:        q.Score,
		Intent:           string(q.Intent),
		Urgency:          string(q.Urgency),
		ServiceMatch:     q.ServiceMatch,
		KeyDetails:       q.KeyDetails,
		MissingQuestions: q.MissingQuestions,
		RiskFlags:        q.RiskFlags,
		NextStep:         string(q.NextStep),
		ReplyChannel:     string(q.ReplyChannel),
		ReplyMessage:     q.ReplyMessage,
		HandoffReason:    q.HandoffReason,
	})
}
