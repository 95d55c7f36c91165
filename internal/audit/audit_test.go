package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/fieldops/internal/domain"
)

type fakeStore struct {
	rows map[string][]*domain.AuditEntry
	next int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string][]*domain.AuditEntry)}
}

func (f *fakeStore) LastChecksum(ctx context.Context, tenantID string) (string, error) {
	rows := f.rows[tenantID]
	if len(rows) == 0 {
		return "", nil
	}
	return rows[len(rows)-1].Checksum, nil
}

func (f *fakeStore) AppendAuditEntry(ctx context.Context, e *domain.AuditEntry) error {
	f.next++
	e.ID = f.next
	cp := *e
	f.rows[e.TenantID] = append(f.rows[e.TenantID], &cp)
	return nil
}

func (f *fakeStore) AuditChain(ctx context.Context, tenantID string) ([]*domain.AuditEntry, error) {
	return f.rows[tenantID], nil
}

func TestLedger_AppendChainsChecksums(t *testing.T) {
	store := newFakeStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	e1, err := ledger.Append(ctx, "tenant-a", "system", "job_created", "job", "job-1", map[string]any{"trade": "plumbing-heating"})
	require.NoError(t, err)
	assert.Empty(t, e1.PrevChecksum)
	assert.NotEmpty(t, e1.Checksum)

	e2, err := ledger.Append(ctx, "tenant-a", "system", "routed", "job", "job-1", map[string]any{"department": "dept-1"})
	require.NoError(t, err)
	assert.Equal(t, e1.Checksum, e2.PrevChecksum)
	assert.NotEqual(t, e1.Checksum, e2.Checksum)
}

func TestLedger_VerifyChain_DetectsTampering(t *testing.T) {
	store := newFakeStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	_, err := ledger.Append(ctx, "tenant-a", "system", "job_created", "job", "job-1", nil)
	require.NoError(t, err)
	_, err = ledger.Append(ctx, "tenant-a", "system", "routed", "job", "job-1", nil)
	require.NoError(t, err)

	ok, brokenAt, err := ledger.VerifyChain(ctx, "tenant-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, brokenAt)

	store.rows["tenant-a"][1].Action = "tampered"

	ok, brokenAt, err = ledger.VerifyChain(ctx, "tenant-a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, store.rows["tenant-a"][1].ID, brokenAt)
}

func TestLedger_VerifyChain_Empty(t *testing.T) {
	store := newFakeStore()
	ledger := NewLedger(store)

	ok, _, err := ledger.VerifyChain(context.Background(), "tenant-b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLedger_PerTenantIsolation(t *testing.T) {
	store := newFakeStore()
	ledger := NewLedger(store)
	ctx := context.Background()

	a, err := ledger.Append(ctx, "tenant-a", "system", "job_created", "job", "job-1", nil)
	require.NoError(t, err)
	b, err := ledger.Append(ctx, "tenant-b", "system", "job_created", "job", "job-2", nil)
	require.NoError(t, err)

	assert.Empty(t, a.PrevChecksum)
	assert.Empty(t, b.PrevChecksum) // separate genesis per tenant
}
