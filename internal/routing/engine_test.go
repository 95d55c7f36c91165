package routing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/snarg/fieldops/internal/domain"
)

func job(trade domain.TradeCategory, urgency domain.Urgency, postal string) *domain.Job {
	return &domain.Job{
		Trade:           trade,
		Urgency:         urgency,
		AddressSnapshot: domain.Address{PostalCode: postal},
		Status:          domain.JobNew,
	}
}

func TestEvaluate_FirstMatchWins(t *testing.T) {
	rules := []*domain.RoutingRule{
		{
			Name: "emergency_plumbing", Priority: 1, Active: true,
			Condition: domain.RoutingCondition{Urgencies: []domain.Urgency{domain.UrgencyEmergency}},
			Action:    domain.RoutingAction{DepartmentID: "dept-emergency", EscalationDeadlineMin: 15, Notify: true},
		},
		{
			Name: "catchall", Priority: 99, Active: true, Catchall: true,
			Action: domain.RoutingAction{DepartmentID: "dept-general"},
		},
	}
	j := job(domain.TradePlumbingHeating, domain.UrgencyEmergency, "10115")
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	d := Evaluate(j, rules, now)
	assert.Equal(t, "dept-emergency", d.DepartmentID)
	assert.Equal(t, 1, d.Priority)
	assert.True(t, d.Notify)
	assert.False(t, d.EscalationDeadline.IsZero())
}

func TestEvaluate_FallsThroughToCatchall(t *testing.T) {
	rules := []*domain.RoutingRule{
		{
			Name: "emergency_plumbing", Priority: 1, Active: true,
			Condition: domain.RoutingCondition{Urgencies: []domain.Urgency{domain.UrgencyEmergency}},
			Action:    domain.RoutingAction{DepartmentID: "dept-emergency"},
		},
		{
			Name: "catchall", Priority: 99, Active: true, Catchall: true,
			Action: domain.RoutingAction{DepartmentID: "dept-general"},
		},
	}
	j := job(domain.TradeGeneral, domain.UrgencyRoutine, "10115")
	d := Evaluate(j, rules, time.Now())
	assert.Equal(t, "dept-general", d.DepartmentID)
}

func TestEvaluate_NoRulesUsesUrgencyDefault(t *testing.T) {
	j := job(domain.TradeGeneral, domain.UrgencyUrgent, "10115")
	d := Evaluate(j, nil, time.Now())
	assert.Equal(t, 20, d.Priority)
	assert.Empty(t, d.DepartmentID)
}

func TestEvaluate_IdempotentReEvaluation(t *testing.T) {
	rules := []*domain.RoutingRule{
		{Name: "r1", Priority: 5, Active: true, Action: domain.RoutingAction{DepartmentID: "dept-1"}},
	}
	j := job(domain.TradeElectrical, domain.UrgencyNormal, "10115")
	now := time.Now()

	d1 := Evaluate(j, rules, now)
	d2 := Evaluate(j, rules, now)
	assert.Equal(t, d1, d2)
}

func TestEscalationDue(t *testing.T) {
	deadline := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.True(t, EscalationDue(deadline, domain.JobNew, deadline.Add(time.Minute)))
	assert.False(t, EscalationDue(deadline, domain.JobCompleted, deadline.Add(time.Minute)))
	assert.False(t, EscalationDue(time.Time{}, domain.JobNew, deadline.Add(time.Minute)))
}

func TestEscalatePriority_ClampsAtOne(t *testing.T) {
	assert.Equal(t, 1, EscalatePriority(5))
	assert.Equal(t, 40, EscalatePriority(50))
}
