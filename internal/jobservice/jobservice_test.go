package jobservice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/fieldops/internal/audit"
	"github.com/snarg/fieldops/internal/domain"
	"github.com/snarg/fieldops/internal/notify"
)

type fakeAuditStore struct {
	entries []*domain.AuditEntry
}

func (f *fakeAuditStore) LastChecksum(ctx context.Context, tenantID string) (string, error) {
	if len(f.entries) == 0 {
		return "", nil
	}
	return f.entries[len(f.entries)-1].Checksum, nil
}

func (f *fakeAuditStore) AppendAuditEntry(ctx context.Context, e *domain.AuditEntry) error {
	e.ID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAuditStore) AuditChain(ctx context.Context, tenantID string) ([]*domain.AuditEntry, error) {
	return f.entries, nil
}

type fakeJobStore struct {
	jobs              map[string]*domain.Job
	rules             []*domain.RoutingRule
	workers           []*domain.Worker
	assignedWorkerIDs []string
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*domain.Job)}
}

func (f *fakeJobStore) CreateJobWithHistory(ctx context.Context, j *domain.Job, actor string) error {
	f.jobs[j.ID] = j
	return nil
}

func (f *fakeJobStore) UpdateStatus(ctx context.Context, tenantID, jobID string, newStatus domain.JobStatus, actor string) (*domain.Job, error) {
	j := f.jobs[jobID]
	j.Status = newStatus
	return j, nil
}

func (f *fakeJobStore) AssignRouting(ctx context.Context, tenantID, jobID, departmentID, workerID string, priority int, reason string, escalationDeadline *time.Time, actor string) error {
	f.assignedWorkerIDs = append(f.assignedWorkerIDs, workerID)
	if j, ok := f.jobs[jobID]; ok {
		j.EscalationDeadline = escalationDeadline
	}
	return nil
}

func (f *fakeJobStore) ListRoutingRules(ctx context.Context, tenantID string) ([]*domain.RoutingRule, error) {
	return f.rules, nil
}

func (f *fakeJobStore) ListAvailableWorkers(ctx context.Context, tenantID string) ([]*domain.Worker, error) {
	return f.workers, nil
}

func (f *fakeJobStore) IncrementWorkerLoad(ctx context.Context, tenantID, workerID string) error {
	return nil
}

func (f *fakeJobStore) ListEscalationDue(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	var due []*domain.Job
	for _, j := range f.jobs {
		if j.EscalationDeadline != nil && !now.Before(*j.EscalationDeadline) {
			due = append(due, j)
		}
	}
	return due, nil
}

func (f *fakeJobStore) EscalateJob(ctx context.Context, tenantID, jobID string, newPriority int, actor string) error {
	if j, ok := f.jobs[jobID]; ok {
		j.RoutingPriority = newPriority
		j.EscalationDeadline = nil
	}
	return nil
}

func TestService_Create_RoutesToSpecificWorker(t *testing.T) {
	store := newFakeJobStore()
	store.rules = []*domain.RoutingRule{
		{
			ID: "r1", Active: true, Priority: 1,
			Condition: domain.RoutingCondition{Trades: []domain.TradeCategory{domain.TradeElectrical}},
			Action:    domain.RoutingAction{DepartmentID: "dept-electrical", WorkerID: "w-1", Notify: true},
		},
	}
	ledger := audit.NewLedger(&fakeAuditStore{})
	svc := New(store, ledger, nil, notify.NoOp{})

	job, err := svc.Create(context.Background(), "tenant-1", Draft{
		ContactID:   "contact-1",
		Title:       "Outlet sparking",
		Description: "outlet in kitchen sparking",
	}, TriageResult{Urgency: domain.UrgencyUrgent, Trade: domain.TradeElectrical}, "session-1")

	require.NoError(t, err)
	assert.Equal(t, "w-1", job.AssignedWorker)
	assert.Equal(t, "dept-electrical", job.Department)
	assert.Equal(t, domain.JobAssigned, job.Status)
	assert.Equal(t, []string{"w-1"}, store.assignedWorkerIDs)
}

func TestService_Create_FallsBackToUrgencyPriorityWithoutMatch(t *testing.T) {
	store := newFakeJobStore()
	ledger := audit.NewLedger(&fakeAuditStore{})
	svc := New(store, ledger, nil, notify.NoOp{})

	job, err := svc.Create(context.Background(), "tenant-1", Draft{ContactID: "c1", Title: "t", Description: "d"},
		TriageResult{Urgency: domain.UrgencyRoutine, Trade: domain.TradeGeneral}, "session-1")

	require.NoError(t, err)
	assert.Equal(t, "", job.AssignedWorker)
	assert.Equal(t, domain.JobNew, job.Status)
	assert.Equal(t, 90, job.RoutingPriority)
}

func TestService_UpdateStatus_AppendsAuditRow(t *testing.T) {
	store := newFakeJobStore()
	store.jobs["job-1"] = &domain.Job{ID: "job-1", Status: domain.JobNew}
	auditStore := &fakeAuditStore{}
	ledger := audit.NewLedger(auditStore)
	svc := New(store, ledger, nil, notify.NoOp{})

	job, err := svc.UpdateStatus(context.Background(), "tenant-1", "job-1", domain.JobAssigned, "dispatcher-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobAssigned, job.Status)
	require.Len(t, auditStore.entries, 1)
	assert.Equal(t, "status_changed", auditStore.entries[0].Action)
}

func TestService_SweepEscalations_RaisesPriorityAndAudits(t *testing.T) {
	store := newFakeJobStore()
	past := time.Now().Add(-time.Minute)
	store.jobs["job-1"] = &domain.Job{
		ID: "job-1", TenantID: "tenant-1", Status: domain.JobAssigned,
		RoutingPriority: 40, EscalationDeadline: &past,
	}
	auditStore := &fakeAuditStore{}
	ledger := audit.NewLedger(auditStore)
	svc := New(store, ledger, nil, notify.NoOp{})

	n, err := svc.SweepEscalations(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 30, store.jobs["job-1"].RoutingPriority)
	assert.Nil(t, store.jobs["job-1"].EscalationDeadline)
	require.Len(t, auditStore.entries, 1)
	assert.Equal(t, "escalated", auditStore.entries[0].Action)
}

func TestService_SweepEscalations_SkipsJobsNotYetDue(t *testing.T) {
	store := newFakeJobStore()
	future := time.Now().Add(time.Hour)
	store.jobs["job-1"] = &domain.Job{
		ID: "job-1", TenantID: "tenant-1", Status: domain.JobAssigned,
		RoutingPriority: 40, EscalationDeadline: &future,
	}
	svc := New(store, audit.NewLedger(&fakeAuditStore{}), nil, notify.NoOp{})

	n, err := svc.SweepEscalations(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
