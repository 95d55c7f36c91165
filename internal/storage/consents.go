package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/snarg/fieldops/internal/domain"
)

// InsertConsent appends a new consent record. Consents are never updated in
// place — a revocation is a new row — so this is always an INSERT.
func (db *DB) InsertConsent(ctx context.Context, c *domain.ConsentRecord) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO consents (id, tenant_id, contact_id, kind, granted_at, revoked_at, method, call_id, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, c.ID, c.TenantID, c.ContactID, string(c.Kind), c.GrantedAt, c.RevokedAt, string(c.Method), c.OriginatingCall, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

// ConsentsForContact returns every consent record (including superseded and
// revoked ones) for a contact, newest first.
func (db *DB) ConsentsForContact(ctx context.Context, tenantID, contactID string) ([]*domain.ConsentRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_id, contact_id, kind, granted_at, revoked_at, method, call_id, expires_at
		FROM consents WHERE tenant_id = $1 AND contact_id = $2 ORDER BY created_at DESC
	`, tenantID, contactID)
	if err != nil {
		return nil, fmt.Errorf("query consents: %w", err)
	}
	defer rows.Close()

	var out []*domain.ConsentRecord
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanConsent(row pgx.Row) (*domain.ConsentRecord, error) {
	var c domain.ConsentRecord
	var kind, method string
	if err := row.Scan(&c.ID, &c.TenantID, &c.ContactID, &kind, &c.GrantedAt, &c.RevokedAt, &method, &c.OriginatingCall, &c.ExpiresAt); err != nil {
		return nil, err
	}
	c.Kind = domain.ConsentKind(kind)
	c.Method = domain.ConsentMethod(method)
	return &c, nil
}

// ActiveConsent returns the most recent record for (contact, kind) along
// with whether it currently grants consent. At most one record is
// considered "active" per the §3 invariant — the newest one wins.
func (db *DB) ActiveConsent(ctx context.Context, tenantID, contactID string, kind domain.ConsentKind) (*domain.ConsentRecord, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, contact_id, kind, granted_at, revoked_at, method, call_id, expires_at
		FROM consents WHERE tenant_id = $1 AND contact_id = $2 AND kind = $3
		ORDER BY created_at DESC LIMIT 1
	`, tenantID, contactID, string(kind))
	c, err := scanConsent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query active consent: %w", err)
	}
	return c, nil
}
