// Package config loads and validates tenant configuration from a single
// tenants.yaml: environment-variable expansion, YAML parsing, built-in
// defaults filled in code for unset values, then validation — the same
// layered shape as the teacher's pkg/config/loader.go (tarsy.yaml +
// llm-providers.yaml). No routing or triage rule files are read.
package config

import (
	"time"

	"github.com/snarg/fieldops/internal/domain"
)

// TenantYAML is the on-disk shape of one tenant entry in tenants.yaml.
type TenantYAML struct {
	ID                     string                 `yaml:"id"`
	Name                   string                 `yaml:"name"`
	DefaultLanguage        string                 `yaml:"default_language"`
	BusinessHours          map[string]DayHoursYAML `yaml:"business_hours"`
	HQLat                  float64                `yaml:"hq_lat"`
	HQLon                  float64                `yaml:"hq_lon"`
	ServiceRadiusKM        float64                `yaml:"service_radius_km"`
	SessionLimits          *SessionLimitsYAML     `yaml:"session_limits"`
	InferenceTimeouts      *InferenceTimeoutsYAML `yaml:"inference_timeouts"`
	AudioFrameMS           int                    `yaml:"audio_frame_ms"`
	BargeInThresholdMS     int                    `yaml:"barge_in_threshold_ms"`
	TriageRulesVersion     int                    `yaml:"triage_rules_version"`
	RoutingFallbackDeptID  string                 `yaml:"routing_fallback_department_id"`
	ConsentRequiredKinds   []string               `yaml:"consent_required_kinds"`
	WebhookSignatureToleranceS int               `yaml:"webhook_signature_tolerance_s"`
	RetentionDays          map[string]int         `yaml:"retention_days"`
	IndustryProfile        string                 `yaml:"industry_profile"`
}

// DayHoursYAML is the YAML shape of one weekday's business hours.
type DayHoursYAML struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

// SessionLimitsYAML mirrors domain.SessionLimits for YAML decoding.
type SessionLimitsYAML struct {
	MaxConcurrent int `yaml:"max_concurrent"`
	PhoneIdleS    int `yaml:"phone_idle_s"`
	ChatIdleS     int `yaml:"chat_idle_s"`
	PhoneMaxS     int `yaml:"phone_max_s"`
	ChatMaxS      int `yaml:"chat_max_s"`
}

// InferenceTimeoutsYAML mirrors domain.InferenceTimeouts for YAML decoding.
type InferenceTimeoutsYAML struct {
	STTMS           int `yaml:"stt_ms"`
	LLMSoftMS       int `yaml:"llm_soft_ms"`
	LLMHardMS       int `yaml:"llm_hard_ms"`
	TTSFirstFrameMS int `yaml:"tts_first_frame_ms"`
}

// RootYAML is the full on-disk configuration file shape.
type RootYAML struct {
	Tenants []TenantYAML `yaml:"tenants"`
}

var weekdayIndex = map[string]int{
	"sunday": 0, "monday": 1, "tuesday": 2, "wednesday": 3,
	"thursday": 4, "friday": 5, "saturday": 6,
}

func toWeeklyHours(m map[string]DayHoursYAML) domain.WeeklyHours {
	out := make(domain.WeeklyHours, len(m))
	for day, h := range m {
		if idx, ok := weekdayIndex[day]; ok {
			out[idx] = domain.DayHours{Open: h.Open, Close: h.Close}
		}
	}
	return out
}

// toDomain converts the on-disk YAML shape into the domain.Tenant used by
// the rest of the platform.
func (t TenantYAML) toDomain() domain.Tenant {
	kinds := make([]domain.ConsentKind, 0, len(t.ConsentRequiredKinds))
	for _, k := range t.ConsentRequiredKinds {
		kinds = append(kinds, domain.ConsentKind(k))
	}

	settings := domain.TenantSettings{
		DefaultLanguage:       t.DefaultLanguage,
		BusinessHours:         toWeeklyHours(t.BusinessHours),
		HQLocation:            domain.GeoPoint{Lat: t.HQLat, Lon: t.HQLon},
		ServiceRadiusKM:       t.ServiceRadiusKM,
		AudioFrameMS:          defaultInt(t.AudioFrameMS, 20),
		BargeInThresholdMS:    defaultInt(t.BargeInThresholdMS, 300),
		TriageRulesVersion:    t.TriageRulesVersion,
		RoutingFallbackDeptID: t.RoutingFallbackDeptID,
		ConsentRequiredKinds:  kinds,
		WebhookSignatureToleranceS: defaultInt(t.WebhookSignatureToleranceS, 300),
		RetentionDays:         t.RetentionDays,
	}

	if t.SessionLimits != nil {
		settings.SessionLimits = domain.SessionLimits{
			MaxConcurrent: defaultInt(t.SessionLimits.MaxConcurrent, 100),
			PhoneIdleS:    defaultInt(t.SessionLimits.PhoneIdleS, 8),
			ChatIdleS:     defaultInt(t.SessionLimits.ChatIdleS, 45),
			PhoneMaxS:     defaultInt(t.SessionLimits.PhoneMaxS, 20*60),
			ChatMaxS:      defaultInt(t.SessionLimits.ChatMaxS, 2*60*60),
		}
	} else {
		settings.SessionLimits = domain.SessionLimits{100, 8, 45, 20 * 60, 2 * 60 * 60}
	}

	if t.InferenceTimeouts != nil {
		settings.InferenceTimeouts = domain.InferenceTimeouts{
			STTMS:           defaultInt(t.InferenceTimeouts.STTMS, 5000),
			LLMSoftMS:       defaultInt(t.InferenceTimeouts.LLMSoftMS, 2000),
			LLMHardMS:       defaultInt(t.InferenceTimeouts.LLMHardMS, 5000),
			TTSFirstFrameMS: defaultInt(t.InferenceTimeouts.TTSFirstFrameMS, 300),
		}
	} else {
		settings.InferenceTimeouts = domain.InferenceTimeouts{5000, 2000, 5000, 300}
	}

	return domain.Tenant{
		ID:       t.ID,
		Name:     t.Name,
		Status:   domain.TenantActive,
		Settings: settings,
	}
}

func defaultInt(v, d int) int {
	if v == 0 {
		return d
	}
	return v
}

// Duration helpers used by callers that need time.Duration rather than ms/s.
func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
func secs(n int) time.Duration { return time.Duration(n) * time.Second }
