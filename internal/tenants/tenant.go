// Package tenants owns tenant records and their pipeline configuration.
// The pipeline consumes tenants read-only; editing lives outside this core.
package tenants

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a customer account whose leads flow through the pipeline.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	Domain    string
	IsActive  bool
	Config    Config
	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Config is the tenant-owned knob set the qualification and dispatch stages
// read. It is fetched fresh per stage invocation and passed by value.
type Config struct {
	Playbook            string        `json:"playbook" yaml:"playbook"`
	Services            []string      `json:"services" yaml:"services"`
	Regions             []string      `json:"regions" yaml:"regions"`
	MinimumPrice        *float64      `json:"minimumPrice" yaml:"minimumPrice"`
	ToneOfVoice         string        `json:"toneOfVoice" yaml:"toneOfVoice"`
	ScoreThreshold      int           `json:"scoreThreshold" yaml:"scoreThreshold"`
	BusinessHours       BusinessHours `json:"businessHours" yaml:"businessHours"`
	ResponseTimeMinutes int           `json:"responseTimeMinutes" yaml:"responseTimeMinutes"`
	FAQs                []FAQ         `json:"faqs" yaml:"faqs"`
	CRMAccessToken      string        `json:"crmAccessToken" yaml:"crmAccessToken"`
}

// FAQ is a question/answer pair fed into the engine prompt.
type FAQ struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// BusinessHours is the tenant-local day/time window gating automated replies.
type BusinessHours struct {
	Timezone string         `json:"timezone" yaml:"timezone"`
	Start    string         `json:"start" yaml:"start"` // "15:04"
	End      string         `json:"end" yaml:"end"`
	WorkDays []time.Weekday `json:"workDays" yaml:"workDays"`
}

// DefaultConfig returns the config applied when a tenant carries none.
func DefaultConfig() Config {
	return Config{
		ToneOfVoice:         "profissional",
		ScoreThreshold:      50,
		ResponseTimeMinutes: 15,
		BusinessHours:       DefaultBusinessHours(),
	}
}

// DefaultBusinessHours is Mon-Fri 09:00-18:00 in São Paulo time.
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		Timezone: "America/Sao_Paulo",
		Start:    "09:00",
		End:      "18:00",
		WorkDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	}
}

// Contains reports whether the given instant falls inside the window,
// evaluated in the tenant's timezone. Zero-value fields fall back to the
// defaults so a partially configured tenant still gates sensibly.
func (h BusinessHours) Contains(now time.Time) bool {
	hours := h
	if hours.Start == "" || hours.End == "" {
		def := DefaultBusinessHours()
		hours.Start, hours.End = def.Start, def.End
	}
	if len(hours.WorkDays) == 0 {
		hours.WorkDays = DefaultBusinessHours().WorkDays
	}

	local := now
	if hours.Timezone != "" {
		if loc, err := time.LoadLocation(hours.Timezone); err == nil {
			local = now.In(loc)
		}
	}

	if !containsWeekday(hours.WorkDays, local.Weekday()) {
		return false
	}

	start, err := time.Parse("15:04", hours.Start)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", hours.End)
	if err != nil {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()

	return minutes >= startMin && minutes <= endMin
}

func containsWeekday(days []time.Weekday, day time.Weekday) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
