// Package triage implements the pure rule-engine intake classifier from
// §4.5: tokenize, evaluate an ordered pattern table, accumulate an urgency
// score and category histogram, apply context modifiers, and bucket the
// result. It performs no I/O — rule tables are plain data, versioned per
// tenant by the caller.
package triage

import (
	"sort"
	"strings"

	"github.com/snarg/fieldops/internal/domain"
)

// Rule is one ordered entry in the pattern table: if any pattern matches a
// normalized token, its urgency delta and category vote apply.
type Rule struct {
	Name        string
	Patterns    []string
	UrgencyDelta int
	Category    domain.TradeCategory
}

// Context carries the structured modifiers from §4.5 step 4.
type Context struct {
	VeryYoungOrOld bool
	Pregnancy      bool
	Commercial     bool
	Vulnerability  bool
	OutOfHours     bool
}

// Modifier point values, fixed per §4.5's "fixed table".
const (
	ModVeryYoungOrOld = 10
	ModPregnancy      = 15
	ModVulnerability  = 15
	ModCommercial     = -5
	ModOutOfHours     = 5
)

// Result is the triage outcome.
type Result struct {
	Urgency         domain.Urgency
	TradeCategory   domain.TradeCategory
	RecommendedAction string
	Reasoning       []string
	Score           int
}

// Engine evaluates a rule table against free text, pure and tenant-scoped
// only by the caller passing the right RuleSet.
type Engine struct {
	rules          []Rule
	tenantFallback domain.TradeCategory
}

// NewEngine builds an Engine from an ordered rule table. tenantFallback is
// the tie-break category preference when the histogram is tied, per §4.5
// step 6 ("tie-break by declared tenant preference, then general").
func NewEngine(rules []Rule, tenantFallback domain.TradeCategory) *Engine {
	return &Engine{rules: rules, tenantFallback: tenantFallback}
}

// Classify runs the full §4.5 algorithm over description + ctx.
func (e *Engine) Classify(description string, ctx Context) Result {
	tokens := tokenize(description)
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	score := 0
	histogram := make(map[domain.TradeCategory]int)
	var reasoning []string

	for _, rule := range e.rules {
		if !ruleMatches(rule, tokenSet) {
			continue
		}
		score += rule.UrgencyDelta
		if rule.Category != "" {
			histogram[rule.Category]++
		}
		reasoning = append(reasoning, rule.Name)
	}

	score, reasoning = applyModifiers(score, ctx, reasoning)

	urgency := bucketUrgency(score)
	category := pluralityCategory(histogram, e.tenantFallback)

	return Result{
		Urgency:           urgency,
		TradeCategory:     category,
		RecommendedAction: recommendedAction(urgency),
		Reasoning:         reasoning,
		Score:             score,
	}
}

func ruleMatches(rule Rule, tokenSet map[string]bool) bool {
	for _, p := range rule.Patterns {
		if tokenSet[p] {
			return true
		}
	}
	return false
}

func applyModifiers(score int, ctx Context, reasoning []string) (int, []string) {
	if ctx.VeryYoungOrOld {
		score += ModVeryYoungOrOld
		reasoning = append(reasoning, "modifier:very_young_or_old")
	}
	if ctx.Pregnancy {
		score += ModPregnancy
		reasoning = append(reasoning, "modifier:pregnancy")
	}
	if ctx.Vulnerability {
		score += ModVulnerability
		reasoning = append(reasoning, "modifier:vulnerability")
	}
	if ctx.Commercial {
		score += ModCommercial
		reasoning = append(reasoning, "modifier:commercial")
	}
	if ctx.OutOfHours {
		score += ModOutOfHours
		reasoning = append(reasoning, "modifier:out_of_hours")
	}
	return score, reasoning
}

// bucketUrgency maps a score to the fixed §4.5 thresholds.
func bucketUrgency(score int) domain.Urgency {
	switch {
	case score >= 80:
		return domain.UrgencyEmergency
	case score >= 60:
		return domain.UrgencyUrgent
	case score >= 30:
		return domain.UrgencyNormal
	default:
		return domain.UrgencyRoutine
	}
}

func pluralityCategory(histogram map[domain.TradeCategory]int, tenantFallback domain.TradeCategory) domain.TradeCategory {
	if len(histogram) == 0 {
		if tenantFallback != "" {
			return tenantFallback
		}
		return domain.TradeGeneral
	}

	type entry struct {
		cat   domain.TradeCategory
		count int
	}
	entries := make([]entry, 0, len(histogram))
	for cat, count := range histogram {
		entries = append(entries, entry{cat, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].cat < entries[j].cat // deterministic among equal counts
	})

	top := entries[0]
	allTiedAtTop := len(entries) > 1
	for _, e := range entries {
		if e.count != top.count {
			allTiedAtTop = false
			break
		}
	}
	if allTiedAtTop {
		if tenantFallback != "" {
			for _, e := range entries {
				if e.cat == tenantFallback {
					return tenantFallback
				}
			}
		}
		return domain.TradeGeneral
	}
	return top.cat
}

func recommendedAction(u domain.Urgency) string {
	switch u {
	case domain.UrgencyEmergency:
		return "escalate_immediately"
	case domain.UrgencyUrgent:
		return "schedule_priority"
	case domain.UrgencyNormal:
		return "schedule_standard"
	default:
		return "schedule_routine"
	}
}

// tokenize lowercases and lightly strips diacritics, per §4.5 step 1. This
// is intentionally a simple transliteration table, not a full Unicode
// normalization pass — good enough for the domain vocabulary the rule
// tables encode.
func tokenize(description string) []string {
	lower := strings.ToLower(description)
	lower = stripDiacritics(lower)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return fields
}

var diacriticReplacer = strings.NewReplacer(
	"ä", "a", "ö", "o", "ü", "u", "ß", "ss",
	"é", "e", "è", "e", "ê", "e", "à", "a", "â", "a",
	"ô", "o", "û", "u", "î", "i", "ç", "c",
)

func stripDiacritics(s string) string {
	return diacriticReplacer.Replace(s)
}
