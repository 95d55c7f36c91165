package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTenantsYAML = `
tenants:
  - id: acme
    name: Acme Plumbing
    default_language: de-DE
    hq_lat: 52.52
    hq_lon: 13.405
    service_radius_km: 40
    business_hours:
      monday: {open: "08:00", close: "17:00"}
    session_limits:
      max_concurrent: 50
    routing_fallback_department_id: dept-general
    consent_required_kinds: [data_processing, call_recording]
`

func writeTenantsYAML(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tenants.yaml"), []byte(content), 0o644))
}

func TestInitialize_LoadsAndValidatesTenants(t *testing.T) {
	dir := t.TempDir()
	writeTenantsYAML(t, dir, sampleTenantsYAML)

	reg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	tenant, err := reg.Tenant("acme")
	require.NoError(t, err)
	assert.Equal(t, "de-DE", tenant.Settings.DefaultLanguage)
	assert.Equal(t, 50, tenant.Settings.SessionLimits.MaxConcurrent)
	assert.Equal(t, 8, tenant.Settings.SessionLimits.PhoneIdleS, "unset fields fall back to spec defaults")
	assert.Len(t, tenant.Settings.ConsentRequiredKinds, 2)
}

func TestInitialize_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
}

func TestInitialize_RejectsInvalidTenant(t *testing.T) {
	dir := t.TempDir()
	writeTenantsYAML(t, dir, `
tenants:
  - id: ""
    default_language: de-DE
    service_radius_km: 10
`)
	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FIELDOPS_LANG", "en-US")
	out := ExpandEnv([]byte("default_language: ${FIELDOPS_LANG}"))
	assert.Contains(t, string(out), "en-US")
}
