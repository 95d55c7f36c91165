package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/domain"
)

// newTestDB starts a disposable Postgres container and returns a *DB with
// migrations already applied (Connect runs the embedded migrations),
// grounded on the teacher's pkg/database/client_test.go newTestClient
// helper — same container image, wait strategy, and wiring shape, adapted
// from ent's Schema.Create auto-migration to our golang-migrate/migrate
// migrations embedded in Connect.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("fieldops_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Connect(ctx, Config{DSN: connStr, MaxConns: 10, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return db
}

// seedWorker inserts a tenant, contact, department and single worker,
// returning ids used by the booking tests below.
func seedWorker(ctx context.Context, t *testing.T, db *DB, tenantID string) (departmentID, workerID, contactID string) {
	t.Helper()
	_, err := db.Pool.Exec(ctx, `INSERT INTO tenants (id) VALUES ($1) ON CONFLICT DO NOTHING`, tenantID)
	require.NoError(t, err)

	contact := &domain.Contact{ID: uuid.NewString(), TenantID: tenantID, Name: "Jane Doe"}
	require.NoError(t, db.UpsertContact(ctx, contact))

	dept := &domain.Department{ID: uuid.NewString(), TenantID: tenantID, Name: "Plumbing"}
	require.NoError(t, db.UpsertDepartment(ctx, dept))

	worker := &domain.Worker{
		ID: uuid.NewString(), TenantID: tenantID, DepartmentID: dept.ID,
		Name: "Worker One", MaxPerDay: 6, Active: true,
	}
	require.NoError(t, db.UpsertWorker(ctx, worker))

	return dept.ID, worker.ID, contact.ID
}

func seedJob(ctx context.Context, t *testing.T, db *DB, tenantID, contactID string) *domain.Job {
	t.Helper()
	now := time.Now()
	j := &domain.Job{
		ID: uuid.NewString(), TenantID: tenantID, ContactID: contactID,
		Title: "Leaking tap", Description: "Leaking tap", Trade: domain.TradeGeneral,
		Urgency: domain.UrgencyNormal, Status: domain.JobNew, Source: domain.SourcePhone,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, db.CreateJobWithHistory(ctx, j, "test-seed"))
	return j
}

func TestDB_ConnectAppliesMigrationsAndPings(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Pool.Ping(context.Background()))
}

// TestBookSlot_ConcurrentBookingsOnlyOneSucceeds exercises the real
// idx_jobs_booking_slot unique-constraint path (not the hand-rolled fake
// in internal/scheduling's test) with genuinely concurrent goroutines
// racing to book the same worker/start against the same Postgres
// instance, per §4.8's at-most-one-booking invariant and §9's "DB unique
// constraint rather than an in-process lock, so the guarantee holds
// across multiple instances too."
func TestBookSlot_ConcurrentBookingsOnlyOneSucceeds(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	tenantID := "tenant-concurrency"

	_, workerID, contactID := seedWorker(ctx, t, db, tenantID)
	jobA := seedJob(ctx, t, db, tenantID, contactID)
	jobB := seedJob(ctx, t, db, tenantID, contactID)

	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	end := start.Add(30 * time.Minute)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	jobIDs := []string{jobA.ID, jobB.ID}

	var ready sync.WaitGroup
	ready.Add(2)
	start2 := make(chan struct{})

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ready.Done()
			<-start2
			errs[i] = db.BookSlot(ctx, tenantID, jobIDs[i], workerID, start, end, "test-actor")
		}(i)
	}
	ready.Wait()
	close(start2)
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case apperr.KindOf(err) == apperr.KindConflict:
			assert.ErrorIs(t, err, apperr.ErrSlotUnavailable)
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent booking should succeed")
	assert.Equal(t, 1, conflicts, "exactly one concurrent booking should conflict")
}
