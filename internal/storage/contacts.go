package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/domain"
)

// UpsertContact inserts a contact or updates it in place when the id already
// exists, always scoped by tenant_id.
func (db *DB) UpsertContact(ctx context.Context, c *domain.Contact) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO contacts (
			id, tenant_id, name, phone, email,
			address_street, address_number, address_postal_code, address_city,
			geo_lat, geo_lon, property_type, created_at, updated_at, soft_deleted_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, phone = EXCLUDED.phone, email = EXCLUDED.email,
			address_street = EXCLUDED.address_street, address_number = EXCLUDED.address_number,
			address_postal_code = EXCLUDED.address_postal_code, address_city = EXCLUDED.address_city,
			geo_lat = EXCLUDED.geo_lat, geo_lon = EXCLUDED.geo_lon,
			property_type = EXCLUDED.property_type, updated_at = EXCLUDED.updated_at,
			soft_deleted_at = EXCLUDED.soft_deleted_at
		WHERE contacts.tenant_id = EXCLUDED.tenant_id
	`,
		c.ID, c.TenantID, c.Name, c.Phone, c.Email,
		c.Address.Street, c.Address.Number, c.Address.PostalCode, c.Address.City,
		c.Geo.Lat, c.Geo.Lon, string(c.PropertyType), c.CreatedAt, c.UpdatedAt, c.SoftDeletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}

// GetContact fetches a contact scoped to tenantID, enforcing tenant
// isolation at the query level (never trust a bare id).
func (db *DB) GetContact(ctx context.Context, tenantID, id string) (*domain.Contact, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, phone, email,
			address_street, address_number, address_postal_code, address_city,
			geo_lat, geo_lon, property_type, created_at, updated_at, soft_deleted_at
		FROM contacts WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	c, err := scanContact(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "", "contact not found")
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

func scanContact(row pgx.Row) (*domain.Contact, error) {
	var c domain.Contact
	var propertyType string
	if err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Email,
		&c.Address.Street, &c.Address.Number, &c.Address.PostalCode, &c.Address.City,
		&c.Geo.Lat, &c.Geo.Lon, &propertyType, &c.CreatedAt, &c.UpdatedAt, &c.SoftDeletedAt,
	); err != nil {
		return nil, err
	}
	c.PropertyType = domain.PropertyType(propertyType)
	return &c, nil
}

// AnonymizeContact scrubs PII for the right-to-erasure flow while keeping
// the row (and its id) for referential integrity in job_history/audit_log.
func (db *DB) AnonymizeContact(ctx context.Context, tenantID, id string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE contacts SET name = '[erased]', phone = '', email = '',
			address_street = '', address_number = '', address_postal_code = '', address_city = '',
			geo_lat = 0, geo_lon = 0, soft_deleted_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	if err != nil {
		return fmt.Errorf("anonymize contact: %w", err)
	}
	return nil
}
