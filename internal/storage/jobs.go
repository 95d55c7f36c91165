package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/domain"
)

// NextJobNumber atomically increments and returns the next per-tenant,
// per-year sequence number, used to build "JOB-YYYY-NNNN" job numbers. Must
// be called inside the same transaction as the Job insert so the sequence
// and the row are committed together.
func NextJobNumber(ctx context.Context, tx pgx.Tx, tenantID string, year int) (int, error) {
	var seq int
	err := tx.QueryRow(ctx, `
		INSERT INTO job_number_counters (tenant_id, year, next_seq) VALUES ($1, $2, 2)
		ON CONFLICT (tenant_id, year) DO UPDATE SET next_seq = job_number_counters.next_seq + 1
		RETURNING next_seq - 1
	`, tenantID, year).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next job number: %w", err)
	}
	return seq, nil
}

// CreateJobWithHistory inserts a Job and its initial "created" history row
// atomically, per §4.10 step 1-3 and the storage policy in §5 (Job + Job
// history writes MUST be a single transaction).
func (db *DB) CreateJobWithHistory(ctx context.Context, j *domain.Job, actor string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	year := j.CreatedAt.Year()
	seq, err := NextJobNumber(ctx, tx, j.TenantID, year)
	if err != nil {
		return err
	}
	j.JobNumber = domain.FormatJobNumber(year, seq)

	if err := insertJob(ctx, tx, j); err != nil {
		return err
	}
	if err := appendJobHistory(ctx, tx, j.ID, actor, "created", map[string]any{"source": string(j.Source)}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertJob(ctx context.Context, tx pgx.Tx, j *domain.Job) error {
	var weekday, startHour, endHour *int
	if j.PreferredWindow != nil {
		wd := int(j.PreferredWindow.Weekday)
		sh := j.PreferredWindow.StartHour
		eh := j.PreferredWindow.EndHour
		weekday, startHour, endHour = &wd, &sh, &eh
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO jobs (
			id, tenant_id, job_number, contact_id, title, description, trade, urgency, status, source,
			address_street, address_number, address_postal_code, address_city, distance_km,
			routing_priority, routing_reason, department_id, assigned_worker_id,
			preferred_weekday, preferred_start_hour, preferred_end_hour,
			scheduled_start, scheduled_end, access_notes, created_at, updated_at, started_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,
			NULLIF($18,'')::uuid, NULLIF($19,'')::uuid, $20,$21,$22,$23,$24,$25,$26,$27,$28,$29)
	`,
		j.ID, j.TenantID, j.JobNumber, j.ContactID, j.Title, j.Description, string(j.Trade), string(j.Urgency), string(j.Status), string(j.Source),
		j.AddressSnapshot.Street, j.AddressSnapshot.Number, j.AddressSnapshot.PostalCode, j.AddressSnapshot.City, j.DistanceKM,
		j.RoutingPriority, j.RoutingReason, j.Department, j.AssignedWorker,
		weekday, startHour, endHour,
		j.ScheduledStart, j.ScheduledEnd, j.AccessNotes, j.CreatedAt, j.UpdatedAt, j.StartedAt, j.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func appendJobHistory(ctx context.Context, tx pgx.Tx, jobID, actor, action string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal job history detail: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO job_history (job_id, actor, action, timestamp, detail_json) VALUES ($1,$2,$3,$4,$5)
	`, jobID, actor, action, time.Now(), detailJSON)
	if err != nil {
		return fmt.Errorf("append job history: %w", err)
	}
	return nil
}

// GetJob fetches a job scoped to tenantID.
func (db *DB) GetJob(ctx context.Context, tenantID, id string) (*domain.Job, error) {
	row := db.Pool.QueryRow(ctx, jobSelectSQL+" WHERE tenant_id = $1 AND id = $2", tenantID, id)
	j, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "", "job not found")
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// JobFilter narrows ListJobs results; zero-value fields are unfiltered.
type JobFilter struct {
	Status        domain.JobStatus
	Urgency       domain.Urgency
	Trade         domain.TradeCategory
	Source        domain.JobSource
	Search        string
	ContactID     string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
	Offset        int
}

// ListJobs returns a tenant-scoped, paginated, filtered job listing.
func (db *DB) ListJobs(ctx context.Context, tenantID string, f JobFilter) ([]*domain.Job, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := jobSelectSQL + " WHERE tenant_id = $1"
	args := []any{tenantID}
	idx := 2
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.Urgency != "" {
		query += fmt.Sprintf(" AND urgency = $%d", idx)
		args = append(args, string(f.Urgency))
		idx++
	}
	if f.Trade != "" {
		query += fmt.Sprintf(" AND trade = $%d", idx)
		args = append(args, string(f.Trade))
		idx++
	}
	if f.Source != "" {
		query += fmt.Sprintf(" AND source = $%d", idx)
		args = append(args, string(f.Source))
		idx++
	}
	if f.Search != "" {
		query += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}
	if f.ContactID != "" {
		query += fmt.Sprintf(" AND contact_id = $%d", idx)
		args = append(args, f.ContactID)
		idx++
	}
	if !f.CreatedAfter.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, f.CreatedAfter)
		idx++
	}
	if !f.CreatedBefore.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", idx)
		args = append(args, f.CreatedBefore)
		idx++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

const jobSelectSQL = `
	SELECT id, tenant_id, job_number, contact_id, title, description, trade, urgency, status, source,
		address_street, address_number, address_postal_code, address_city, distance_km,
		routing_priority, routing_reason, escalation_deadline, COALESCE(department_id::text, ''), COALESCE(assigned_worker_id::text, ''),
		preferred_weekday, preferred_start_hour, preferred_end_hour,
		scheduled_start, scheduled_end, access_notes, created_at, updated_at, started_at, completed_at
	FROM jobs`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	var trade, urgency, status, source string
	var weekday, startHour, endHour *int
	if err := row.Scan(
		&j.ID, &j.TenantID, &j.JobNumber, &j.ContactID, &j.Title, &j.Description, &trade, &urgency, &status, &source,
		&j.AddressSnapshot.Street, &j.AddressSnapshot.Number, &j.AddressSnapshot.PostalCode, &j.AddressSnapshot.City, &j.DistanceKM,
		&j.RoutingPriority, &j.RoutingReason, &j.EscalationDeadline, &j.Department, &j.AssignedWorker,
		&weekday, &startHour, &endHour,
		&j.ScheduledStart, &j.ScheduledEnd, &j.AccessNotes, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt,
	); err != nil {
		return nil, err
	}
	j.Trade = domain.TradeCategory(trade)
	j.Urgency = domain.Urgency(urgency)
	j.Status = domain.JobStatus(status)
	j.Source = domain.JobSource(source)
	if weekday != nil {
		j.PreferredWindow = &domain.TimeWindow{
			Weekday:   time.Weekday(*weekday),
			StartHour: *startHour,
			EndHour:   *endHour,
		}
	}
	return &j, nil
}

// UpdateStatus validates and applies a status transition, appending a job
// history row, atomically. Returns apperr.ErrIllegalTransition for invalid
// transitions, per §4.10.
func (db *DB) UpdateStatus(ctx context.Context, tenantID, jobID string, newStatus domain.JobStatus, actor string) (*domain.Job, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, jobSelectSQL+" WHERE tenant_id = $1 AND id = $2 FOR UPDATE", tenantID, jobID)
	j, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "", "job not found")
		}
		return nil, fmt.Errorf("load job: %w", err)
	}

	if !domain.CanTransition(j.Status, newStatus) {
		return nil, apperr.Wrap(apperr.KindConflict, "illegal_transition",
			fmt.Sprintf("cannot transition job from %s to %s", j.Status, newStatus), apperr.ErrIllegalTransition)
	}
	if j.Status == newStatus {
		return j, tx.Commit(ctx) // no-op per §8's idempotence law
	}

	now := time.Now()
	switch newStatus {
	case domain.JobInProgress:
		j.StartedAt = &now
	case domain.JobCompleted:
		j.CompletedAt = &now
	}
	j.Status = newStatus
	j.UpdatedAt = now

	_, err = tx.Exec(ctx, `
		UPDATE jobs SET status = $1, updated_at = $2, started_at = $3, completed_at = $4 WHERE id = $5
	`, string(newStatus), now, j.StartedAt, j.CompletedAt, jobID)
	if err != nil {
		return nil, fmt.Errorf("update job status: %w", err)
	}

	if err := appendJobHistory(ctx, tx, jobID, actor, "status_changed", map[string]any{"new_status": string(newStatus)}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit status update: %w", err)
	}
	return j, nil
}

// AssignRouting applies Routing Engine output to a job and appends a
// "routed" history row, atomically, per §4.6 step 6. escalationDeadline is
// nil when the matched rule declared none.
func (db *DB) AssignRouting(ctx context.Context, tenantID, jobID, departmentID, workerID string, priority int, reason string, escalationDeadline *time.Time, actor string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	status := string(domain.JobNew)
	if workerID != "" {
		status = string(domain.JobAssigned)
	}
	_, err = tx.Exec(ctx, `
		UPDATE jobs SET department_id = NULLIF($1,'')::uuid, assigned_worker_id = NULLIF($2,'')::uuid,
			routing_priority = $3, routing_reason = $4, status = $5, escalation_deadline = $6, updated_at = now()
		WHERE tenant_id = $7 AND id = $8
	`, departmentID, workerID, priority, reason, status, escalationDeadline, tenantID, jobID)
	if err != nil {
		return fmt.Errorf("assign routing: %w", err)
	}
	if err := appendJobHistory(ctx, tx, jobID, actor, "routed", map[string]any{
		"department_id": departmentID, "worker_id": workerID, "reason": reason,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListEscalationDue returns every job, across all tenants, whose escalation
// deadline has passed and is still eligible for priority escalation, for
// the periodic sweep in §4.6 step 5.
func (db *DB) ListEscalationDue(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	rows, err := db.Pool.Query(ctx, jobSelectSQL+`
		WHERE escalation_deadline IS NOT NULL AND escalation_deadline <= $1
			AND status IN ($2, $3)
	`, now, string(domain.JobNew), string(domain.JobAssigned))
	if err != nil {
		return nil, fmt.Errorf("list escalation-due jobs: %w", err)
	}
	defer rows.Close()

	var out []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// EscalateJob raises a job's routing priority and clears its escalation
// deadline (a deadline fires at most once), appending an "escalated"
// history row, per §4.6 step 5.
func (db *DB) EscalateJob(ctx context.Context, tenantID, jobID string, newPriority int, actor string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		UPDATE jobs SET routing_priority = $1, escalation_deadline = NULL, updated_at = now()
		WHERE tenant_id = $2 AND id = $3
	`, newPriority, tenantID, jobID)
	if err != nil {
		return fmt.Errorf("escalate job: %w", err)
	}
	if err := appendJobHistory(ctx, tx, jobID, actor, "escalated", map[string]any{
		"new_priority": newPriority,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// BookSlot attempts to assign a scheduled start/end + worker to a job. The
// unique index idx_jobs_booking_slot on (assigned_worker_id, scheduled_start)
// is the source of truth for at-most-one-booking (§4.8, §9): a conflicting
// concurrent booking fails this statement with a unique_violation, which we
// translate to apperr.ErrSlotUnavailable so the caller retries with a fresh
// search instead of silently double-booking.
func (db *DB) BookSlot(ctx context.Context, tenantID, jobID, workerID string, start, end time.Time, actor string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE jobs SET assigned_worker_id = $1, scheduled_start = $2, scheduled_end = $3, updated_at = now()
		WHERE tenant_id = $4 AND id = $5
	`, workerID, start, end, tenantID, jobID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.KindConflict, "slot_unavailable", "slot already booked", apperr.ErrSlotUnavailable)
		}
		return fmt.Errorf("book slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "", "job not found")
	}
	if err := appendJobHistory(ctx, tx, jobID, actor, "scheduled", map[string]any{
		"worker_id": workerID, "start": start, "end": end,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// JobHistory returns the append-only history rows for a job, oldest first.
func (db *DB) JobHistory(ctx context.Context, jobID string) ([]*domain.JobHistoryEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, job_id, actor, action, timestamp, detail_json FROM job_history
		WHERE job_id = $1 ORDER BY id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query job history: %w", err)
	}
	defer rows.Close()

	var out []*domain.JobHistoryEntry
	for rows.Next() {
		var e domain.JobHistoryEntry
		var id int64
		var detailJSON []byte
		if err := rows.Scan(&id, &e.JobID, &e.Actor, &e.Action, &e.Timestamp, &detailJSON); err != nil {
			return nil, err
		}
		e.ID = fmt.Sprintf("%d", id)
		_ = json.Unmarshal(detailJSON, &e.Detail)
		out = append(out, &e)
	}
	return out, rows.Err()
}
