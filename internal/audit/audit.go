// Package audit implements the tenant-wide compliance ledger: an
// append-only log whose rows are chained by a checksum over the previous
// row's checksum XORed with the new row's canonical bytes, so tampering
// anywhere in the chain is detectable by rehashing from genesis (spec
// "Audit Entry" invariant). Writes are serialized per tenant with an
// in-process mutex to match the "single-writer-per-tenant queue" storage
// policy without needing a distributed lock for this single-instance
// deployment.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/snarg/fieldops/internal/domain"
)

// Store is the persistence surface the Ledger needs.
type Store interface {
	LastChecksum(ctx context.Context, tenantID string) (string, error)
	AppendAuditEntry(ctx context.Context, e *domain.AuditEntry) error
	AuditChain(ctx context.Context, tenantID string) ([]*domain.AuditEntry, error)
}

// Ledger appends hash-chained entries and re-verifies the chain on demand.
type Ledger struct {
	store Store

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

// NewLedger constructs a Ledger backed by store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, locks: make(map[string]*sync.Mutex)}
}

func (l *Ledger) tenantLock(tenantID string) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	m, ok := l.locks[tenantID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[tenantID] = m
	}
	return m
}

// Append computes the next chained checksum and persists a new ledger row.
// Per the storage policy, a failed append is treated as fatal by the
// caller: no user-visible side effect should be considered durable without
// a successful audit write.
func (l *Ledger) Append(ctx context.Context, tenantID, actor, action, entityKind, entityID string, detail map[string]any) (*domain.AuditEntry, error) {
	lock := l.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	prev, err := l.store.LastChecksum(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load prior checksum: %w", err)
	}

	e := &domain.AuditEntry{
		TenantID:     tenantID,
		Timestamp:    time.Now().UTC(),
		Actor:        actor,
		Action:       action,
		EntityKind:   entityKind,
		EntityID:     entityID,
		Detail:       detail,
		PrevChecksum: prev,
	}
	checksum, err := computeChecksum(e)
	if err != nil {
		return nil, fmt.Errorf("compute checksum: %w", err)
	}
	e.Checksum = checksum

	if err := l.store.AppendAuditEntry(ctx, e); err != nil {
		return nil, fmt.Errorf("append audit entry: %w", err)
	}
	return e, nil
}

// VerifyChain recomputes checksums for the full tenant ledger from genesis
// and reports the first row (if any) whose stored checksum diverges from
// the recomputed one.
func (l *Ledger) VerifyChain(ctx context.Context, tenantID string) (ok bool, brokenAt int64, err error) {
	entries, err := l.store.AuditChain(ctx, tenantID)
	if err != nil {
		return false, 0, fmt.Errorf("load audit chain: %w", err)
	}
	prev := ""
	for _, e := range entries {
		if e.PrevChecksum != prev {
			return false, e.ID, nil
		}
		want, err := computeChecksum(&domain.AuditEntry{
			TenantID: e.TenantID, Timestamp: e.Timestamp, Actor: e.Actor, Action: e.Action,
			EntityKind: e.EntityKind, EntityID: e.EntityID, Detail: e.Detail, PrevChecksum: e.PrevChecksum,
		})
		if err != nil {
			return false, 0, fmt.Errorf("recompute checksum for entry %d: %w", e.ID, err)
		}
		if want != e.Checksum {
			return false, e.ID, nil
		}
		prev = e.Checksum
	}
	return true, 0, nil
}

// computeChecksum hashes the canonical row bytes XORed with the previous
// checksum bytes, per the "prior checksum ⨁ row bytes" invariant.
func computeChecksum(e *domain.AuditEntry) (string, error) {
	rowBytes, err := canonicalBytes(e)
	if err != nil {
		return "", err
	}
	prevBytes := []byte(e.PrevChecksum)
	mixed := xorExtend(rowBytes, prevBytes)
	sum := sha256.Sum256(mixed)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalBytes produces deterministic bytes for a row: field order is
// fixed and the detail map's keys are sorted, so two processes computing
// the checksum for the same logical row always agree.
func canonicalBytes(e *domain.AuditEntry) ([]byte, error) {
	detailKeys := make([]string, 0, len(e.Detail))
	for k := range e.Detail {
		detailKeys = append(detailKeys, k)
	}
	sort.Strings(detailKeys)
	orderedDetail := make([]struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}, len(detailKeys))
	for i, k := range detailKeys {
		orderedDetail[i].Key = k
		orderedDetail[i].Value = e.Detail[k]
	}

	canonical := struct {
		TenantID   string `json:"tenant_id"`
		Timestamp  string `json:"timestamp"`
		Actor      string `json:"actor"`
		Action     string `json:"action"`
		EntityKind string `json:"entity_kind"`
		EntityID   string `json:"entity_id"`
		Detail     any    `json:"detail"`
	}{
		TenantID:   e.TenantID,
		Timestamp:  e.Timestamp.Format(time.RFC3339Nano),
		Actor:      e.Actor,
		Action:     e.Action,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Detail:     orderedDetail,
	}
	return json.Marshal(canonical)
}

// xorExtend XORs a with b, repeating the shorter slice to cover the longer
// one's length (a hash genesis has an empty prevChecksum, so b may be nil).
func xorExtend(a, b []byte) []byte {
	out := make([]byte, len(a))
	if len(b) == 0 {
		copy(out, a)
		return out
	}
	for i := range a {
		out[i] = a[i] ^ b[i%len(b)]
	}
	return out
}
