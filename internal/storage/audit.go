package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/snarg/fieldops/internal/domain"
)

// LastChecksum returns the checksum of the most recent audit_log row for a
// tenant, or "" if the ledger is empty (the genesis value), so the caller
// can compute the next row's chained checksum before inserting it.
func (db *DB) LastChecksum(ctx context.Context, tenantID string) (string, error) {
	var checksum string
	err := db.Pool.QueryRow(ctx, `
		SELECT checksum FROM audit_log WHERE tenant_id = $1 ORDER BY id DESC LIMIT 1
	`, tenantID).Scan(&checksum)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("last checksum: %w", err)
	}
	return checksum, nil
}

// AppendAuditEntry inserts a pre-computed, already-chained audit row. The
// caller (internal/audit) is responsible for computing Checksum from
// PrevChecksum and the row contents before calling this — storage never
// computes hashes itself, it only persists them.
func (db *DB) AppendAuditEntry(ctx context.Context, e *domain.AuditEntry) error {
	detailJSON, err := json.Marshal(e.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO audit_log (tenant_id, timestamp, actor, action, entity_kind, entity_id, detail_json, prev_checksum, checksum)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id
	`, e.TenantID, e.Timestamp, e.Actor, e.Action, e.EntityKind, e.EntityID, detailJSON, e.PrevChecksum, e.Checksum).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// AuditChain returns the full ledger for a tenant in append order, for
// integrity re-verification (GET /audit/integrity).
func (db *DB) AuditChain(ctx context.Context, tenantID string) ([]*domain.AuditEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_id, timestamp, actor, action, entity_kind, entity_id, detail_json, prev_checksum, checksum
		FROM audit_log WHERE tenant_id = $1 ORDER BY id ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query audit chain: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detailJSON []byte
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Timestamp, &e.Actor, &e.Action, &e.EntityKind, &e.EntityID, &detailJSON, &e.PrevChecksum, &e.Checksum); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(detailJSON, &e.Detail)
		out = append(out, &e)
	}
	return out, rows.Err()
}
