package domain

import (
	"fmt"
	"time"
)

// TradeCategory classifies the service domain of a Job. The base set from
// §3 is kept open for tenant/domain extensions (plain strings beyond the
// named constants are valid).
type TradeCategory string

const (
	TradePlumbingHeating TradeCategory = "plumbing-heating"
	TradeElectrical      TradeCategory = "electrical"
	TradeSanitary        TradeCategory = "sanitary"
	TradeGeneral         TradeCategory = "general"
)

// Urgency is the triage urgency bucket, ordered worst-first.
type Urgency string

const (
	UrgencyEmergency Urgency = "emergency"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyNormal    Urgency = "normal"
	UrgencyRoutine   Urgency = "routine"
)

// MaxWait returns the urgency-derived scheduling deadline per §4.8.
func (u Urgency) MaxWait() time.Duration {
	switch u {
	case UrgencyEmergency:
		return 2 * time.Hour
	case UrgencyUrgent:
		return 8 * time.Hour
	case UrgencyNormal:
		return 48 * time.Hour
	default:
		return 14 * 24 * time.Hour
	}
}

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobNew        JobStatus = "new"
	JobAssigned   JobStatus = "assigned"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal reports whether the status is a sink state forbidding further
// transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled
}

// validTransitions encodes the status machine from §8.
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobNew:        {JobAssigned: true, JobCancelled: true},
	JobAssigned:   {JobInProgress: true, JobCancelled: true},
	JobInProgress: {JobCompleted: true, JobCancelled: true},
}

// CanTransition reports whether from -> to is a legal status transition.
// from == to is always legal (a no-op update, per §8's idempotence law).
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	return validTransitions[from][to]
}

// JobSource is the channel a Job originated from.
type JobSource string

const (
	SourcePhone     JobSource = "phone"
	SourceEmail     JobSource = "email"
	SourceChat      JobSource = "chat"
	SourceForm      JobSource = "form"
	SourceMessenger JobSource = "messenger"
)

// Job is a service request — the central persisted entity.
type Job struct {
	ID              string
	TenantID        string
	JobNumber       string // "JOB-YYYY-NNNN"
	ContactID       string
	Title           string
	Description     string
	Trade           TradeCategory
	Urgency         Urgency
	Status          JobStatus
	Source          JobSource
	AddressSnapshot Address
	DistanceKM      float64
	RoutingPriority int // 1-99, lower is higher priority
	RoutingReason   string
	EscalationDeadline *time.Time // cleared once the escalation sweep fires, per §4.6 step 5
	Department      string
	AssignedWorker  string
	PreferredWindow *TimeWindow
	ScheduledStart  *time.Time
	ScheduledEnd    *time.Time
	AccessNotes     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// TimeWindow is a customer's preferred day-of-week + time-of-day window.
type TimeWindow struct {
	Weekday   time.Weekday
	StartHour int
	EndHour   int
}

// Validate checks the invariants from §3 that a Job must hold at all times.
func (j *Job) Validate() error {
	if j.Status == JobAssigned && j.AssignedWorker == "" {
		return fmt.Errorf("job %s: status=assigned requires assigned_worker", j.ID)
	}
	if j.Status == JobCompleted && j.CompletedAt == nil {
		return fmt.Errorf("job %s: status=completed requires completed_at", j.ID)
	}
	return nil
}

// JobHistoryEntry is an append-only audit row per job mutation.
type JobHistoryEntry struct {
	ID        string
	JobID     string
	Actor     string // "system" or a user id
	Action    string
	Timestamp time.Time
	Detail    map[string]any
}

// FormatJobNumber renders the "JOB-YYYY-NNNN" format from §3.
func FormatJobNumber(year int, seq int) string {
	return fmt.Sprintf("JOB-%04d-%04d", year, seq)
}
