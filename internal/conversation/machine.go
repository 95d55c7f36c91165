package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/snarg/fieldops/internal/domain"
	"github.com/snarg/fieldops/internal/pipeline"
)

// LLMSoftTimeout bounds how long Turn waits on Responder.Generate before
// falling back to a templated prompt, per §4.3's soft-timeout/fallback
// gate — distinct from the pipeline.Runner's own hard timeout, which
// governs the underlying provider call.
const LLMSoftTimeout = pipeline.DefaultLLMSoftTimeout

// Machine drives one session's conversation per the §4.4 per-turn
// algorithm. It holds no I/O handles directly — JobService/Routing calls
// are made through the JobCreator hook so this package stays a pure state
// machine plus small side-effecting hooks, testable without a database.
type Machine struct {
	Profile *Profile
	Slots   *Slots
	History []pipeline.Message

	State          State
	Escalated      bool
	TurnsSinceInput int

	// AssessedUrgency is the worst urgency keyword match seen across all
	// turns so far, per §4.11's UrgencyMap(); nil until a keyword matches.
	AssessedUrgency *domain.Urgency

	// Responder drives the LLM fallback path for ambiguous/open-ended
	// turns; nil disables it and Turn falls back to templates only.
	Responder *Responder

	JobCreator func(ctx context.Context, slots *Slots) error
}

// NewMachine starts a fresh conversation in GREETING for the given profile.
func NewMachine(profile *Profile) *Machine {
	return &Machine{
		Profile: profile,
		Slots:   NewSlots(profile.SlotOrder),
		State:   StateGreeting,
	}
}

// TurnResult is what one call to Turn produces.
type TurnResult struct {
	Response   string
	NextState  State
	Escalated  bool
	JobCreated bool
	Action     *ActionSpec
}

// Turn processes one user utterance through the full §4.4 per-turn
// algorithm: history update, intent detection, emergency check,
// slot-filling, response generation, and the confirmation → job-creation
// transition.
func (m *Machine) Turn(ctx context.Context, transcript string, confidence float64, confidenceFloor float64) TurnResult {
	m.TurnsSinceInput = 0
	m.History = append(m.History, pipeline.Message{Role: "user", Content: transcript})

	if pipeline.BelowConfidenceFloor(pipeline.Transcript{Confidence: confidence}, confidenceFloor) {
		return TurnResult{Response: "Could you repeat that?", NextState: m.State}
	}

	if sig, matched := DetectEmergency(transcript, m.Profile.EmergencySignals); matched {
		return m.escalate(sig)
	}

	if u, ok := matchUrgency(transcript, m.Profile.UrgencyMap()); ok {
		if m.AssessedUrgency == nil || urgencyRank[u] < urgencyRank[*m.AssessedUrgency] {
			m.AssessedUrgency = &u
		}
	}

	intent, ruleMatched := DetectIntent(transcript, m.Profile.IntentRules)
	m.advanceSlots(transcript, intent)

	if m.State == StateSlotFill && m.Slots.Complete() {
		m.State = StateConfirmation
	}

	if m.State == StateConfirmation {
		if m.JobCreator != nil {
			if err := m.JobCreator(ctx, m.Slots); err == nil {
				m.State = StateAction
				action := m.Profile.PostConfirmAction()
				return TurnResult{Response: "Your job has been created. " + m.Profile.Farewell, NextState: StateFarewell, JobCreated: true, Action: &action}
			}
		}
	}

	response := m.generateResponse(ctx, intent, ruleMatched, transcript)
	m.History = append(m.History, pipeline.Message{Role: "assistant", Content: response})
	return TurnResult{Response: response, NextState: m.State}
}

// generateResponse produces the next assistant utterance. Rule-matched
// intents and the slot-fill/confirmation states use fixed templates
// (fast path); an unmatched intent in the open INTAKE/CLASSIFICATION states is
// complex/ambiguous enough to route through the LLM, per §4.4 step 6,
// falling back to the template on timeout or provider failure.
func (m *Machine) generateResponse(ctx context.Context, intent Intent, ruleMatched bool, transcript string) string {
	template := m.nextPrompt(intent)
	if m.Responder == nil || ruleMatched || (m.State != StateIntake && m.State != StateClassification) {
		return template
	}

	genCtx, cancel := context.WithTimeout(ctx, LLMSoftTimeout)
	defer cancel()
	text, err := m.Responder.Generate(genCtx, m.Profile.SystemPrompt, m.History, transcript)
	if err != nil {
		slog.Warn("llm response generation fell back to template", "profile", m.Profile.Name, "err", err)
		return template
	}
	return text
}

func (m *Machine) escalate(sig *EmergencySignal) TurnResult {
	m.Escalated = true
	m.State = StateEscalation
	m.History = append(m.History, pipeline.Message{Role: "assistant", Content: sig.CriticalPrompt})
	return TurnResult{Response: sig.CriticalPrompt, NextState: StateEscalation, Escalated: true}
}

// advanceSlots moves the skeleton state forward on a new request and fills
// the next outstanding slot from the raw transcript. Real field extraction
// (name/phone/address parsing) is expected to be layered on by the LLM
// structured-response path; here the whole utterance fills the current
// outstanding slot as a baseline keyword-free strategy.
func (m *Machine) advanceSlots(transcript string, intent Intent) {
	switch m.State {
	case StateGreeting:
		m.State = StateIntake
	case StateIntake:
		if intent == IntentNewRequest {
			m.State = StateClassification
		}
	case StateClassification:
		m.State = StateSlotFill
		fallthrough
	case StateSlotFill:
		if key := m.Slots.NextOutstanding(); key != "" {
			m.Slots.Fill(key, transcript)
		}
	}
}

func (m *Machine) nextPrompt(intent Intent) string {
	switch m.State {
	case StateIntake:
		return "Could you describe the issue you're experiencing?"
	case StateClassification, StateSlotFill:
		if key := m.Slots.NextOutstanding(); key != "" {
			return promptFor(key)
		}
		return "Let me confirm the details."
	case StateFarewell:
		return m.Profile.Farewell
	default:
		return m.Profile.Greeting
	}
}

func promptFor(key SlotKey) string {
	switch key {
	case SlotName:
		return "Could I get your name, please?"
	case SlotPhone:
		return "What's the best phone number to reach you?"
	case SlotAddress:
		return "What's the address for the service visit?"
	case SlotProblemDescription:
		return "Could you describe the problem in a bit more detail?"
	case SlotPreferredTime:
		return "Do you have a preferred day or time for the visit?"
	default:
		return "Could you tell me more?"
	}
}

// CheckTurnTimeout applies the §4.4 re-prompt-then-abandon rule: a first
// timeout re-prompts once, a second ends the session as abandoned.
func (m *Machine) CheckTurnTimeout(sinceLastInput time.Duration, limit time.Duration) (reprompt bool, abandoned bool) {
	if sinceLastInput < limit {
		return false, false
	}
	m.TurnsSinceInput++
	if m.TurnsSinceInput >= 2 {
		return false, true
	}
	return true, false
}
