package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/fieldops/internal/audit"
	"github.com/snarg/fieldops/internal/domain"
	"github.com/snarg/fieldops/internal/jobservice"
)

// fakeJobStore is a minimal in-memory jobservice.Store, grounded on the
// same fake used in internal/jobservice's own tests.
type fakeJobStore struct {
	jobs map[string]*domain.Job
}

func newFakeJobStore() *fakeJobStore { return &fakeJobStore{jobs: make(map[string]*domain.Job)} }

func (f *fakeJobStore) CreateJobWithHistory(ctx context.Context, j *domain.Job, actor string) error {
	f.jobs[j.ID] = j
	return nil
}

func (f *fakeJobStore) UpdateStatus(ctx context.Context, tenantID, jobID string, newStatus domain.JobStatus, actor string) (*domain.Job, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, nil
	}
	j.Status = newStatus
	return j, nil
}

func (f *fakeJobStore) AssignRouting(ctx context.Context, tenantID, jobID, departmentID, workerID string, priority int, reason string, escalationDeadline *time.Time, actor string) error {
	if j, ok := f.jobs[jobID]; ok {
		j.EscalationDeadline = escalationDeadline
	}
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

func (f *fakeJobStore) ListRoutingRules(ctx context.Context, tenantID string) ([]*domain.RoutingRule, error) {
	return nil, nil
}

func (f *fakeJobStore) ListAvailableWorkers(ctx context.Context, tenantID string) ([]*domain.Worker, error) {
	return nil, nil
}

func (f *fakeJobStore) IncrementWorkerLoad(ctx context.Context, tenantID, workerID string) error {
	return nil
}

// fakeAuditStore is a minimal in-memory audit.Store.
type fakeAuditStore struct {
	entries []*domain.AuditEntry
	seq     int64
}

func (f *fakeAuditStore) LastChecksum(ctx context.Context, tenantID string) (string, error) {
	if len(f.entries) == 0 {
		return "", nil
	}
	return f.entries[len(f.entries)-1].Checksum, nil
}

func (f *fakeAuditStore) AppendAuditEntry(ctx context.Context, e *domain.AuditEntry) error {
	f.seq++
	e.ID = f.seq
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAuditStore) AuditChain(ctx context.Context, tenantID string) ([]*domain.AuditEntry, error) {
	return f.entries, nil
}

func newTestServer() *Server {
	store := newFakeJobStore()
	ledger := audit.NewLedger(&fakeAuditStore{})
	svc := jobservice.New(store, ledger, nil, nil)
	return &Server{jobs: svc, ledger: ledger}
}

func TestCreateJobHandler_RequiresTenantHeader(t *testing.T) {
	s := newTestServer()
	e := echo.New()
	body := `{"contact_id":"c1","description":"leak"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := s.createJobHandler(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestCreateJobHandler_CreatesAndReturnsJob(t *testing.T) {
	s := newTestServer()
	e := echo.New()
	body := `{"contact_id":"c1","description":"leak under sink","source":"chat"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, s.createJobHandler(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp jobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "c1", resp.ContactID)
	assert.Equal(t, domain.JobNew, resp.Status)
}

func TestUpdateJobStatusHandler_AppendsAuditAndReturnsJob(t *testing.T) {
	s := newTestServer()
	e := echo.New()

	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(`{"contact_id":"c1","description":"leak"}`))
	createReq.Header.Set("Content-Type", "application/json")
	createReq.Header.Set("X-Tenant-ID", "tenant-1")
	createRec := httptest.NewRecorder()
	require.NoError(t, s.createJobHandler(e.NewContext(createReq, createRec)))
	var created jobResponse
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/jobs/"+created.ID+"/status", strings.NewReader(`{"status":"cancelled"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID)

	require.NoError(t, s.updateJobStatusHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var updated jobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, domain.JobCancelled, updated.Status)
}
