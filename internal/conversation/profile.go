package conversation

import "github.com/snarg/fieldops/internal/domain"

// ActionSpec is the notification fired right after slot-fill confirmation,
// per §4.11's PostConfirmAction() — e.g. confirming a trades job by SMS or
// a hospitality request over the ops Slack channel.
type ActionSpec struct {
	Channel  string // internal/notify.Channel value
	Template string
	Vars     []SlotKey // slot keys copied into the notification vars map
}

// Profile is an industry conversation plug-in: state vocabulary (beyond
// the shared skeleton), prompts, intent rules, slot schema, urgency
// mapping, and a post-confirmation action spec, per §4.4's last paragraph.
//
// This is deliberately a capability set (fields a profile fills in),
// not an inheritance hierarchy (SPEC_FULL.md §9 design note) — profiles
// compose by providing data, not by subclassing a base conversation
// machine.
type Profile struct {
	Name            string
	Language        string
	SystemPrompt    string
	IntentRules     []IntentRule
	EmergencySignals []EmergencySignal
	SlotOrder       []SlotKey
	DefaultTrade    domain.TradeCategory
	Greeting        string
	Farewell        string

	// UrgencyKeywords is the keyword→urgency table behind UrgencyMap(): a
	// lightweight per-turn signal the Machine uses to flag a session as
	// urgent before the full Triage Engine classifies the finished job.
	UrgencyKeywords map[string]domain.Urgency

	// PostConfirm is the action fired once slot-fill confirms, per §4.11.
	PostConfirm ActionSpec
}

// UrgencyMap returns the profile's keyword→urgency table, per §4.11.
func (p *Profile) UrgencyMap() map[string]domain.Urgency { return p.UrgencyKeywords }

// PostConfirmAction returns the profile's post-confirmation notification
// spec, per §4.11.
func (p *Profile) PostConfirmAction() ActionSpec { return p.PostConfirm }

// Registry holds the built-in and tenant-registered industry profiles.
type Registry struct {
	profiles map[string]*Profile
}

// NewRegistry builds a Registry seeded with the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]*Profile)}
	r.Register(TradesProfile())
	r.Register(HospitalityProfile())
	return r
}

// Register adds or replaces a profile by name.
func (r *Registry) Register(p *Profile) {
	r.profiles[p.Name] = p
}

// Get looks up a profile by name.
func (r *Registry) Get(name string) (*Profile, bool) {
	p, ok := r.profiles[name]
	return p, ok
}

// TradesProfile is the built-in profile for plumbing/electrical/general
// trades service calls — the primary scenario in the spec's worked
// examples.
func TradesProfile() *Profile {
	return &Profile{
		Name:     "trades",
		Language: "de",
		SystemPrompt: "You are a dispatch assistant for a home-services company. Keep responses short, " +
			"formal, and focused on gathering the information needed to create a service job.",
		IntentRules: []IntentRule{
			{Intent: IntentCancellation, Patterns: []string{"cancel", "stornieren"}},
			{Intent: IntentNewRequest, Patterns: []string{"broken", "leak", "not working", "kaputt", "defekt"}},
			{Intent: IntentQuery, Patterns: []string{"status", "when will", "wann kommt"}},
		},
		EmergencySignals: []EmergencySignal{
			{
				Patterns:       []string{"gas", "smell gas", "ich rieche gas"},
				CriticalPrompt: "Please leave the premises immediately and call the emergency number. We are dispatching help now.",
				TransferTarget: "emergency",
			},
		},
		SlotOrder: []SlotKey{SlotName, SlotPhone, SlotAddress, SlotProblemDescription, SlotPreferredTime},
		DefaultTrade: domain.TradeGeneral,
		Greeting:     "Thank you for calling. How can I help with your service request today?",
		Farewell:     "Thank you, we'll be in touch shortly. Goodbye.",
		UrgencyKeywords: map[string]domain.Urgency{
			"flooding":    domain.UrgencyEmergency,
			"burst pipe":  domain.UrgencyEmergency,
			"no power":    domain.UrgencyUrgent,
			"no heat":     domain.UrgencyUrgent,
			"leak":        domain.UrgencyUrgent,
			"not working": domain.UrgencyNormal,
		},
		PostConfirm: ActionSpec{
			Channel:  "sms",
			Template: "job_confirmed",
			Vars:     []SlotKey{SlotName, SlotPreferredTime},
		},
	}
}

// HospitalityProfile is the built-in profile for hotel/hospitality guest
// requests (housekeeping, maintenance, concierge).
func HospitalityProfile() *Profile {
	return &Profile{
		Name:     "hospitality",
		Language: "en",
		SystemPrompt: "You are a guest services assistant for a hotel. Keep responses short, warm, and " +
			"focused on resolving the guest's request or routing it to the right department.",
		IntentRules: []IntentRule{
			{Intent: IntentCancellation, Patterns: []string{"cancel", "never mind"}},
			{Intent: IntentNewRequest, Patterns: []string{"towels", "room service", "maintenance", "broken", "clean"}},
			{Intent: IntentQuery, Patterns: []string{"checkout time", "wifi password", "when is"}},
		},
		EmergencySignals: []EmergencySignal{
			{
				Patterns:       []string{"chest pain", "can't breathe", "fire"},
				CriticalPrompt: "Please stay on the line. We are alerting emergency services and staff right now.",
				TransferTarget: "emergency",
			},
		},
		SlotOrder: []SlotKey{SlotName, SlotAddress, SlotProblemDescription, SlotPreferredTime},
		DefaultTrade: domain.TradeGeneral,
		Greeting:     "Front desk, how may I assist you?",
		Farewell:     "Thank you for staying with us. Have a wonderful day.",
		UrgencyKeywords: map[string]domain.Urgency{
			"fire":           domain.UrgencyEmergency,
			"can't breathe":  domain.UrgencyEmergency,
			"no hot water":   domain.UrgencyUrgent,
			"locked out":     domain.UrgencyUrgent,
			"broken":         domain.UrgencyNormal,
		},
		PostConfirm: ActionSpec{
			Channel:  "slack",
			Template: "guest_request_confirmed",
			Vars:     []SlotKey{SlotName, SlotAddress},
		},
	}
}
