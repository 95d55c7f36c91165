// Package conversation implements the per-session Conversation State
// Machine from §4.4: intent detection, emergency-signal short-circuiting,
// slot-filling, and templated/LLM response generation, parameterized by a
// pluggable industry Profile (§4.4 last paragraph).
package conversation

import (
	"context"
	"strings"
	"time"

	"github.com/snarg/fieldops/internal/domain"
	"github.com/snarg/fieldops/internal/pipeline"
)

// State is a node of the shared state skeleton every industry profile
// extends.
type State string

const (
	StateGreeting      State = "greeting"
	StateIntake        State = "intake"
	StateClassification State = "classification"
	StateSlotFill      State = "slot_fill"
	StateConfirmation  State = "confirmation"
	StateAction        State = "action"
	StateFarewell      State = "farewell"
	StateEscalation    State = "escalation"
)

// Turn timeouts from §4.4.
const (
	PhoneTurnTimeout = 8 * time.Second
	ChatTurnTimeout  = 45 * time.Second
)

// Intent is a detected user goal, ranked by the fixed tie-break priority
// from §4.4: emergency > cancellation > new_request > query > chitchat.
type Intent string

const (
	IntentEmergency   Intent = "emergency"
	IntentCancellation Intent = "cancellation"
	IntentNewRequest  Intent = "new_request"
	IntentQuery       Intent = "query"
	IntentChitchat    Intent = "chitchat"
)

var intentPriority = map[Intent]int{
	IntentEmergency:    0,
	IntentCancellation: 1,
	IntentNewRequest:   2,
	IntentQuery:        3,
	IntentChitchat:     4,
}

// SlotKey names one of the structured fields slot-filling extracts.
type SlotKey string

const (
	SlotName              SlotKey = "name"
	SlotPhone             SlotKey = "phone"
	SlotAddress            SlotKey = "address"
	SlotProblemDescription SlotKey = "problem_description"
	SlotPreferredTime      SlotKey = "preferred_time"
)

// Slots tracks filled/outstanding structured fields for a session.
type Slots struct {
	values map[SlotKey]string
	order  []SlotKey // declared importance order, most important first
}

// NewSlots builds a Slots tracker with the given importance order.
func NewSlots(order []SlotKey) *Slots {
	return &Slots{values: make(map[SlotKey]string), order: order}
}

// Fill records a value for key.
func (s *Slots) Fill(key SlotKey, value string) {
	s.values[key] = value
}

// Get returns the filled value, if any.
func (s *Slots) Get(key SlotKey) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Complete reports whether every slot in the declared order is filled.
func (s *Slots) Complete() bool {
	for _, k := range s.order {
		if _, ok := s.values[k]; !ok {
			return false
		}
	}
	return true
}

// NextOutstanding returns the most-important unfilled slot, or "" if
// Complete.
func (s *Slots) NextOutstanding() SlotKey {
	for _, k := range s.order {
		if _, ok := s.values[k]; !ok {
			return k
		}
	}
	return ""
}

// IntentRule is a keyword/phrase rule evaluated before the LLM fallback,
// per §4.4 step 3.
type IntentRule struct {
	Intent   Intent
	Patterns []string // lowercase keywords/phrases
}

// EmergencySignal is a trigger phrase that forces immediate ESCALATION,
// per §4.4 step 4.
type EmergencySignal struct {
	Patterns       []string
	CriticalPrompt string
	TransferTarget string
}

// DetectIntent evaluates rules first (short-circuiting the LLM), applying
// the fixed tie-break priority if more than one rule matches.
func DetectIntent(utterance string, rules []IntentRule) (Intent, bool) {
	lower := strings.ToLower(utterance)
	best := Intent("")
	bestPriority := len(intentPriority)
	matched := false
	for _, rule := range rules {
		for _, p := range rule.Patterns {
			if strings.Contains(lower, p) {
				if pr, ok := intentPriority[rule.Intent]; ok && pr < bestPriority {
					best = rule.Intent
					bestPriority = pr
					matched = true
				}
				break
			}
		}
	}
	return best, matched
}

// DetectEmergency checks emergency trigger phrases ahead of normal intent
// rules, per §4.4 step 4.
func DetectEmergency(utterance string, signals []EmergencySignal) (*EmergencySignal, bool) {
	lower := strings.ToLower(utterance)
	for i := range signals {
		for _, p := range signals[i].Patterns {
			if strings.Contains(lower, p) {
				return &signals[i], true
			}
		}
	}
	return nil, false
}

var urgencyRank = map[domain.Urgency]int{
	domain.UrgencyEmergency: 0,
	domain.UrgencyUrgent:    1,
	domain.UrgencyNormal:    2,
	domain.UrgencyRoutine:   3,
}

// matchUrgency scans utterance against a profile's UrgencyMap() keyword
// table, per §4.11, returning the worst (lowest-rank) urgency matched. ok
// is false if no keyword matched.
func matchUrgency(utterance string, urgencyMap map[string]domain.Urgency) (domain.Urgency, bool) {
	lower := strings.ToLower(utterance)
	best := domain.Urgency("")
	bestRank := len(urgencyRank)
	matched := false
	for keyword, urgency := range urgencyMap {
		if strings.Contains(lower, keyword) {
			if rank, ok := urgencyRank[urgency]; ok && rank < bestRank {
				best = urgency
				bestRank = rank
				matched = true
			}
		}
	}
	return best, matched
}

// Responder generates the next assistant utterance, either from a
// template (fast path) or via the LLM (complex/open path), per §4.4 step
// 6. Phone-channel utterances are capped at maxSentences.
type Responder struct {
	Runner       *pipeline.Runner
	MaxSentences int
}

// Template returns a fixed response unchanged (the fast path never calls
// the LLM).
func (r *Responder) Template(text string) string { return text }

// Generate invokes the LLM for the complex/open path and trims the result
// to MaxSentences for phone channels.
func (r *Responder) Generate(ctx context.Context, systemPrompt string, history []pipeline.Message, userMessage string) (string, error) {
	text, err := r.Runner.Generate(ctx, systemPrompt, history, userMessage, 256, 0.4)
	if err != nil {
		return "", err
	}
	if r.MaxSentences > 0 {
		text = truncateSentences(text, r.MaxSentences)
	}
	return text, nil
}

func truncateSentences(text string, max int) string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentences = append(sentences, text[start:i+1])
			start = i + 1
			if len(sentences) >= max {
				return strings.TrimSpace(strings.Join(sentences, " "))
			}
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	if len(sentences) > max {
		sentences = sentences[:max]
	}
	return strings.TrimSpace(strings.Join(sentences, " "))
}
