// Package routing implements the Routing Engine from §4.6: ordered
// first-match-wins rule evaluation over a Job, producing a department/
// worker assignment, a routing priority, and an escalation deadline timer.
// Pure decision logic lives here; persistence and timer scheduling are
// driven by the caller (internal/jobservice).
package routing

import (
	"time"

	"github.com/snarg/fieldops/internal/domain"
)

// Decision is the Routing Engine's output for one evaluation.
type Decision struct {
	DepartmentID        string
	WorkerID            string
	Priority            int
	Reason              string
	EscalationDeadline   time.Time
	Notify              bool
}

// urgencyDefaultPriority is the fallback routing priority when a matching
// rule doesn't declare one explicitly, per §4.6 step 4.
var urgencyDefaultPriority = map[domain.Urgency]int{
	domain.UrgencyEmergency: 1,
	domain.UrgencyUrgent:    20,
	domain.UrgencyNormal:    50,
	domain.UrgencyRoutine:   90,
}

// Evaluate runs the ordered, first-match-wins rule evaluation over job at
// the given wall-clock time (for the rule's time-of-day condition).
// Re-evaluating the same (job, rules) pair always yields the same
// Decision — the engine is pure and idempotent, per §4.6.
func Evaluate(job *domain.Job, rules []*domain.RoutingRule, now time.Time) Decision {
	hour := now.Hour()
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if !rule.Condition.Matches(job, hour) {
			continue
		}
		return decisionFromRule(job, rule, now)
	}
	// No rule matched: fall back to urgency-derived default priority with
	// department/worker left unassigned for manual triage.
	return Decision{
		Priority: urgencyDefaultPriority[job.Urgency],
		Reason:   "no_matching_rule:urgency_default",
	}
}

func decisionFromRule(job *domain.Job, rule *domain.RoutingRule, now time.Time) Decision {
	priority := rule.Priority
	if priority == 0 {
		priority = urgencyDefaultPriority[job.Urgency]
	}

	d := Decision{
		DepartmentID: rule.Action.DepartmentID,
		WorkerID:     rule.Action.WorkerID,
		Priority:     priority,
		Reason:       "rule:" + rule.Name,
		Notify:       rule.Action.Notify,
	}
	if rule.Action.EscalationDeadlineMin > 0 {
		d.EscalationDeadline = now.Add(time.Duration(rule.Action.EscalationDeadlineMin) * time.Minute)
	}
	return d
}

// EscalationDue reports whether a scheduled escalation deadline has passed
// and the job is still in a state eligible for priority escalation, per
// §4.6 step 5.
func EscalationDue(deadline time.Time, status domain.JobStatus, now time.Time) bool {
	if deadline.IsZero() {
		return false
	}
	if status != domain.JobNew && status != domain.JobAssigned {
		return false
	}
	return !now.Before(deadline)
}

// EscalatePriority raises priority by one tier (lower number = higher
// priority), clamped at 1, per §4.6 step 5.
func EscalatePriority(priority int) int {
	next := priority - 10
	if next < 1 {
		return 1
	}
	return next
}
