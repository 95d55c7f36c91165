package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/snarg/fieldops/internal/domain"
)

// UpsertRoutingRule inserts or replaces a routing rule row.
func (db *DB) UpsertRoutingRule(ctx context.Context, r *domain.RoutingRule) error {
	condJSON, err := json.Marshal(r.Condition)
	if err != nil {
		return fmt.Errorf("marshal routing condition: %w", err)
	}
	actionJSON, err := json.Marshal(r.Action)
	if err != nil {
		return fmt.Errorf("marshal routing action: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO routing_rules (id, tenant_id, name, priority, active, catchall, conditions_json, action_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, priority = EXCLUDED.priority, active = EXCLUDED.active,
			catchall = EXCLUDED.catchall, conditions_json = EXCLUDED.conditions_json, action_json = EXCLUDED.action_json
		WHERE routing_rules.tenant_id = EXCLUDED.tenant_id
	`, r.ID, r.TenantID, r.Name, r.Priority, r.Active, r.Catchall, condJSON, actionJSON)
	if err != nil {
		return fmt.Errorf("upsert routing rule: %w", err)
	}
	return nil
}

// ListRoutingRules returns every active rule for a tenant, ordered by
// ascending priority so the Routing Engine can evaluate first-match-wins
// (§4.6) by iterating the slice in order.
func (db *DB) ListRoutingRules(ctx context.Context, tenantID string) ([]*domain.RoutingRule, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, tenant_id, name, priority, active, catchall, conditions_json, action_json
		FROM routing_rules WHERE tenant_id = $1 AND active = true ORDER BY priority ASC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list routing rules: %w", err)
	}
	defer rows.Close()

	var out []*domain.RoutingRule
	for rows.Next() {
		r, err := scanRoutingRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRoutingRule(row pgx.Row) (*domain.RoutingRule, error) {
	var r domain.RoutingRule
	var condJSON, actionJSON []byte
	if err := row.Scan(&r.ID, &r.TenantID, &r.Name, &r.Priority, &r.Active, &r.Catchall, &condJSON, &actionJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(condJSON, &r.Condition); err != nil {
		return nil, fmt.Errorf("unmarshal routing condition: %w", err)
	}
	if err := json.Unmarshal(actionJSON, &r.Action); err != nil {
		return nil, fmt.Errorf("unmarshal routing action: %w", err)
	}
	return &r, nil
}
