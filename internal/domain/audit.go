package domain

import "time"

// AuditEntry is an append-only, hash-chained compliance ledger row. The
// Checksum covers (PrevChecksum XOR row bytes) so tampering anywhere in the
// chain is detectable by rehashing from genesis — see internal/audit.
type AuditEntry struct {
	ID            int64
	TenantID      string
	Timestamp     time.Time
	Actor         string
	Action        string
	EntityKind    string
	EntityID      string
	Detail        map[string]any
	PrevChecksum  string
	Checksum      string
}
