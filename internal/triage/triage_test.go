package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/snarg/fieldops/internal/domain"
)

func plumbingRules() []Rule {
	return []Rule{
		{Name: "gas_leak", Patterns: []string{"gas", "smoke"}, UrgencyDelta: 90, Category: domain.TradePlumbingHeating},
		{Name: "leak", Patterns: []string{"leak", "leaking"}, UrgencyDelta: 50, Category: domain.TradePlumbingHeating},
		{Name: "no_power", Patterns: []string{"power", "outage"}, UrgencyDelta: 40, Category: domain.TradeElectrical},
		{Name: "routine_checkup", Patterns: []string{"checkup", "inspection"}, UrgencyDelta: 10, Category: domain.TradeGeneral},
	}
}

func TestEngine_Classify_Emergency(t *testing.T) {
	e := NewEngine(plumbingRules(), "")
	r := e.Classify("I smell gas in the kitchen", Context{})
	assert.Equal(t, domain.UrgencyEmergency, r.Urgency)
	assert.Equal(t, domain.TradePlumbingHeating, r.TradeCategory)
	assert.Contains(t, r.Reasoning, "gas_leak")
}

func TestEngine_Classify_ModifiersShiftBucket(t *testing.T) {
	e := NewEngine(plumbingRules(), "")
	r := e.Classify("there is a leak under the sink", Context{VeryYoungOrOld: true, Vulnerability: true})
	// base 50 + 10 + 15 = 75 -> urgent
	assert.Equal(t, domain.UrgencyUrgent, r.Urgency)
}

func TestEngine_Classify_RoutineDefault(t *testing.T) {
	e := NewEngine(plumbingRules(), "")
	r := e.Classify("just checking in, nothing wrong", Context{})
	assert.Equal(t, domain.UrgencyRoutine, r.Urgency)
}

func TestEngine_Classify_TieBreaksToTenantFallback(t *testing.T) {
	rules := []Rule{
		{Name: "leak", Patterns: []string{"leak"}, UrgencyDelta: 20, Category: domain.TradePlumbingHeating},
		{Name: "outage", Patterns: []string{"outage"}, UrgencyDelta: 20, Category: domain.TradeElectrical},
	}
	e := NewEngine(rules, domain.TradeElectrical)
	r := e.Classify("leak and outage both happened", Context{})
	assert.Equal(t, domain.TradeElectrical, r.TradeCategory)
}
