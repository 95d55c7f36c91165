// Package jobservice materializes Conversation State Machine outcomes into
// persisted Jobs and hands them off to the Routing and Scheduling engines,
// per §4.10.
package jobservice

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/audit"
	"github.com/snarg/fieldops/internal/domain"
	"github.com/snarg/fieldops/internal/notify"
	"github.com/snarg/fieldops/internal/routing"
	"github.com/snarg/fieldops/internal/scheduling"
	"github.com/snarg/fieldops/internal/technician"
)

// Store is the persistence surface JobService needs.
type Store interface {
	CreateJobWithHistory(ctx context.Context, j *domain.Job, actor string) error
	UpdateStatus(ctx context.Context, tenantID, jobID string, newStatus domain.JobStatus, actor string) (*domain.Job, error)
	AssignRouting(ctx context.Context, tenantID, jobID, departmentID, workerID string, priority int, reason string, escalationDeadline *time.Time, actor string) error
	ListRoutingRules(ctx context.Context, tenantID string) ([]*domain.RoutingRule, error)
	ListAvailableWorkers(ctx context.Context, tenantID string) ([]*domain.Worker, error)
	IncrementWorkerLoad(ctx context.Context, tenantID, workerID string) error
	ListEscalationDue(ctx context.Context, now time.Time) ([]*domain.Job, error)
	EscalateJob(ctx context.Context, tenantID, jobID string, newPriority int, actor string) error
}

// Draft is the input the Conversation SM hands to JobService.create, per
// §4.10's operation signature.
type Draft struct {
	ContactID       string
	Title           string
	Description     string
	AddressSnapshot domain.Address
	DistanceKM      float64
	PreferredWindow *domain.TimeWindow
	AccessNotes     string
	Source          domain.JobSource
}

// TriageResult is the Triage Engine output passed alongside the draft.
type TriageResult struct {
	Urgency  domain.Urgency
	Trade    domain.TradeCategory
	Reasoning []string
}

// Service implements the operations in §4.10.
type Service struct {
	store   Store
	ledger  *audit.Ledger
	booker  *scheduling.Booker
	notifier notify.Notifier
}

// New constructs a Service.
func New(store Store, ledger *audit.Ledger, booker *scheduling.Booker, notifier notify.Notifier) *Service {
	return &Service{store: store, ledger: ledger, booker: booker, notifier: notifier}
}

// Create runs the full §4.10 `create` algorithm: assign job number,
// persist, audit, route, optionally schedule, notify, and return the
// canonical Job.
func (s *Service) Create(ctx context.Context, tenantID string, draft Draft, triage TriageResult, sessionActor string) (*domain.Job, error) {
	now := time.Now().UTC()
	job := &domain.Job{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		ContactID:       draft.ContactID,
		Title:           draft.Title,
		Description:     draft.Description,
		Trade:           triage.Trade,
		Urgency:         triage.Urgency,
		Status:          domain.JobNew,
		Source:          draft.Source,
		AddressSnapshot: draft.AddressSnapshot,
		DistanceKM:      draft.DistanceKM,
		RoutingPriority: 50,
		PreferredWindow: draft.PreferredWindow,
		AccessNotes:     draft.AccessNotes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := job.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "", "invalid job draft", err)
	}

	if err := s.store.CreateJobWithHistory(ctx, job, sessionActor); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if _, err := s.ledger.Append(ctx, tenantID, sessionActor, "job_created", "job", job.ID, map[string]any{
		"trade": string(job.Trade), "urgency": string(job.Urgency), "reasoning": triage.Reasoning,
	}); err != nil {
		return nil, fmt.Errorf("audit job creation: %w", err)
	}

	if err := s.route(ctx, tenantID, job, sessionActor); err != nil {
		return nil, err
	}

	if job.AssignedWorker != "" && job.Urgency != domain.UrgencyRoutine && job.Urgency != domain.UrgencyNormal {
		if err := s.scheduleIfPossible(ctx, tenantID, job, sessionActor); err != nil {
			// Scheduling failure does not roll back job creation — the job
			// still exists and can be scheduled manually or retried.
			return job, fmt.Errorf("auto-schedule: %w", err)
		}
	}

	return job, nil
}

func (s *Service) route(ctx context.Context, tenantID string, job *domain.Job, actor string) error {
	rules, err := s.store.ListRoutingRules(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load routing rules: %w", err)
	}
	decision := routing.Evaluate(job, rules, time.Now())

	workerID := decision.WorkerID
	if workerID == "" && decision.DepartmentID != "" {
		workerID = s.pickWorker(ctx, tenantID, job)
	}

	var deadline *time.Time
	if !decision.EscalationDeadline.IsZero() {
		d := decision.EscalationDeadline
		deadline = &d
	}

	if err := s.store.AssignRouting(ctx, tenantID, job.ID, decision.DepartmentID, workerID, decision.Priority, decision.Reason, deadline, actor); err != nil {
		return fmt.Errorf("assign routing: %w", err)
	}
	job.Department = decision.DepartmentID
	job.AssignedWorker = workerID
	job.RoutingPriority = decision.Priority
	job.RoutingReason = decision.Reason
	job.EscalationDeadline = deadline
	if workerID != "" {
		job.Status = domain.JobAssigned
		if err := s.store.IncrementWorkerLoad(ctx, tenantID, workerID); err != nil {
			return fmt.Errorf("increment worker load: %w", err)
		}
	}

	if decision.Notify && s.notifier != nil {
		_ = s.notifier.Send(ctx, tenantID, notify.ChannelOps, "", "job_routed", map[string]any{
			"job_id": job.ID, "department_id": decision.DepartmentID,
		})
	}
	return nil
}

func (s *Service) pickWorker(ctx context.Context, tenantID string, job *domain.Job) string {
	workers, err := s.store.ListAvailableWorkers(ctx, tenantID)
	if err != nil || len(workers) == 0 {
		return ""
	}
	candidates, err := technician.Match(job.Trade, job.Urgency, nil, domain.GeoPoint{}, workers, func(w *domain.Worker) bool {
		return w.HasHeadroom()
	})
	if err != nil || len(candidates) == 0 {
		return ""
	}
	return candidates[0].Worker.ID
}

func (s *Service) scheduleIfPossible(ctx context.Context, tenantID string, job *domain.Job, actor string) error {
	if job.PreferredWindow == nil || s.booker == nil {
		return nil
	}
	now := time.Now().UTC()
	start := now.Add(time.Hour)
	slot := scheduling.Slot{WorkerID: job.AssignedWorker, Start: start, End: start.Add(scheduling.DefaultSlotDuration)}
	if err := s.booker.Book(ctx, tenantID, job.ID, slot, actor); err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			return nil // slot contention: leave unscheduled for manual/retry
		}
		return err
	}
	job.ScheduledStart = &slot.Start
	job.ScheduledEnd = &slot.End
	return nil
}

// UpdateStatus validates and applies a status transition, appending an
// audit row, per §4.10.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, jobID string, newStatus domain.JobStatus, actor string) (*domain.Job, error) {
	job, err := s.store.UpdateStatus(ctx, tenantID, jobID, newStatus, actor)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Append(ctx, tenantID, actor, "status_changed", "job", jobID, map[string]any{"new_status": string(newStatus)}); err != nil {
		return nil, fmt.Errorf("audit status change: %w", err)
	}
	return job, nil
}

// SweepEscalations raises the priority of every job whose routing
// escalation deadline has passed, per §4.6 step 5, appending an
// "escalated" audit row for each. It returns the count escalated, for the
// caller's logging. One sweep pass is cheap and idempotent: a job already
// escalated has its deadline cleared, so it won't be picked up again.
func (s *Service) SweepEscalations(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.ListEscalationDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list escalation-due jobs: %w", err)
	}
	escalated := 0
	for _, job := range due {
		if !routing.EscalationDue(*job.EscalationDeadline, job.Status, now) {
			continue
		}
		newPriority := routing.EscalatePriority(job.RoutingPriority)
		if err := s.store.EscalateJob(ctx, job.TenantID, job.ID, newPriority, "escalation-sweep"); err != nil {
			return escalated, fmt.Errorf("escalate job %s: %w", job.ID, err)
		}
		if _, err := s.ledger.Append(ctx, job.TenantID, "escalation-sweep", "escalated", "job", job.ID, map[string]any{
			"previous_priority": job.RoutingPriority, "new_priority": newPriority,
		}); err != nil {
			return escalated, fmt.Errorf("audit escalation: %w", err)
		}
		escalated++
	}
	return escalated, nil
}
