package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/domain"
)

// UpsertDepartment inserts or replaces a department row.
func (db *DB) UpsertDepartment(ctx context.Context, d *domain.Department) error {
	hoursJSON, err := json.Marshal(d.WorkingHours)
	if err != nil {
		return fmt.Errorf("marshal working hours: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO departments (id, tenant_id, name, accepted_trades, accepted_urgency, working_hours_json, contact_channels, fallback_contact)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, accepted_trades = EXCLUDED.accepted_trades, accepted_urgency = EXCLUDED.accepted_urgency,
			working_hours_json = EXCLUDED.working_hours_json, contact_channels = EXCLUDED.contact_channels,
			fallback_contact = EXCLUDED.fallback_contact
		WHERE departments.tenant_id = EXCLUDED.tenant_id
	`, d.ID, d.TenantID, d.Name, tradeStrings(d.AcceptedTrades), urgencyStrings(d.AcceptedUrgency), hoursJSON, d.ContactChannels, d.FallbackContact)
	if err != nil {
		return fmt.Errorf("upsert department: %w", err)
	}
	return nil
}

// ListDepartments returns every department for a tenant.
func (db *DB) ListDepartments(ctx context.Context, tenantID string) ([]*domain.Department, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_id, name, accepted_trades, accepted_urgency, working_hours_json, contact_channels, fallback_contact
		FROM departments WHERE tenant_id = $1 ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDepartment(row pgx.Row) (*domain.Department, error) {
	var d domain.Department
	var trades, urgencies []string
	var hoursJSON []byte
	if err := row.Scan(&d.ID, &d.TenantID, &d.Name, &trades, &urgencies, &hoursJSON, &d.ContactChannels, &d.FallbackContact); err != nil {
		return nil, err
	}
	for _, t := range trades {
		d.AcceptedTrades = append(d.AcceptedTrades, domain.TradeCategory(t))
	}
	for _, u := range urgencies {
		d.AcceptedUrgency = append(d.AcceptedUrgency, domain.Urgency(u))
	}
	d.WorkingHours = make(domain.WeeklyHours)
	_ = json.Unmarshal(hoursJSON, &d.WorkingHours)
	return &d, nil
}

// UpsertWorker inserts or replaces a worker row.
func (db *DB) UpsertWorker(ctx context.Context, w *domain.Worker) error {
	hoursJSON, err := json.Marshal(w.WorkingHours)
	if err != nil {
		return fmt.Errorf("marshal working hours: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO workers (
			id, tenant_id, department_id, name, role, trades, certifications, working_hours_json,
			max_per_day, current_jobs_today, active, geo_lat, geo_lon, service_radius_km
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			department_id = EXCLUDED.department_id, name = EXCLUDED.name, role = EXCLUDED.role,
			trades = EXCLUDED.trades, certifications = EXCLUDED.certifications, working_hours_json = EXCLUDED.working_hours_json,
			max_per_day = EXCLUDED.max_per_day, current_jobs_today = EXCLUDED.current_jobs_today, active = EXCLUDED.active,
			geo_lat = EXCLUDED.geo_lat, geo_lon = EXCLUDED.geo_lon, service_radius_km = EXCLUDED.service_radius_km
		WHERE workers.tenant_id = EXCLUDED.tenant_id
	`, w.ID, w.TenantID, w.DepartmentID, w.Name, string(w.Role), tradeStrings(w.Trades), w.Certifications, hoursJSON,
		w.MaxPerDay, w.CurrentJobsToday, w.Active, w.Geo.Lat, w.Geo.Lon, w.ServiceRadiusKM)
	if err != nil {
		return fmt.Errorf("upsert worker: %w", err)
	}
	return nil
}

// ListWorkers returns every active-or-not worker in a department.
func (db *DB) ListWorkers(ctx context.Context, tenantID, departmentID string) ([]*domain.Worker, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_id, department_id, name, role, trades, certifications, working_hours_json,
			max_per_day, current_jobs_today, active, geo_lat, geo_lon, service_radius_km
		FROM workers WHERE tenant_id = $1 AND department_id = $2
	`, tenantID, departmentID)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListAvailableWorkers returns every active worker across the whole tenant,
// for the Technician Matcher (§4.9) to score directly without a department
// pre-filter.
func (db *DB) ListAvailableWorkers(ctx context.Context, tenantID string) ([]*domain.Worker, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_id, department_id, name, role, trades, certifications, working_hours_json,
			max_per_day, current_jobs_today, active, geo_lat, geo_lon, service_radius_km
		FROM workers WHERE tenant_id = $1 AND active = true
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list available workers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWorker(row pgx.Row) (*domain.Worker, error) {
	var w domain.Worker
	var role string
	var trades []string
	var hoursJSON []byte
	if err := row.Scan(&w.ID, &w.TenantID, &w.DepartmentID, &w.Name, &role, &trades, &w.Certifications, &hoursJSON,
		&w.MaxPerDay, &w.CurrentJobsToday, &w.Active, &w.Geo.Lat, &w.Geo.Lon, &w.ServiceRadiusKM); err != nil {
		return nil, err
	}
	w.Role = domain.WorkerRole(role)
	for _, t := range trades {
		w.Trades = append(w.Trades, domain.TradeCategory(t))
	}
	w.WorkingHours = make(domain.WeeklyHours)
	_ = json.Unmarshal(hoursJSON, &w.WorkingHours)
	return &w, nil
}

// IncrementWorkerLoad bumps current_jobs_today by one, used on assignment.
func (db *DB) IncrementWorkerLoad(ctx context.Context, tenantID, workerID string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE workers SET current_jobs_today = current_jobs_today + 1 WHERE tenant_id = $1 AND id = $2
	`, tenantID, workerID)
	if err != nil {
		return fmt.Errorf("increment worker load: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "", "worker not found")
	}
	return nil
}

// ResetDailyLoads zeroes current_jobs_today for every worker in a tenant,
// intended to run once per tenant-local day boundary.
func (db *DB) ResetDailyLoads(ctx context.Context, tenantID string) error {
	_, err := db.Pool.Exec(ctx, `UPDATE workers SET current_jobs_today = 0 WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("reset daily loads: %w", err)
	}
	return nil
}

func tradeStrings(ts []domain.TradeCategory) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

func urgencyStrings(us []domain.Urgency) []string {
	out := make([]string, len(us))
	for i, u := range us {
		out[i] = string(u)
	}
	return out
}
