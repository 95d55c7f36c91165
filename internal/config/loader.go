package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/snarg/fieldops/internal/domain"
)

// Registry holds validated, ready-to-use tenant configuration, keyed by
// tenant id. Constructed once at boot and passed by reference through
// dependency injection — never a package-level global, per spec §9.
type Registry struct {
	tenants map[string]domain.Tenant
}

// Tenant looks up a tenant's configuration by id.
func (r *Registry) Tenant(id string) (domain.Tenant, error) {
	t, ok := r.tenants[id]
	if !ok {
		return domain.Tenant{}, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	return t, nil
}

// All returns every configured tenant, for admin/listing endpoints.
func (r *Registry) All() []domain.Tenant {
	out := make([]domain.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	return out
}

// Initialize loads, expands, parses and validates tenant configuration from
// configDir/tenants.yaml. Mirrors the teacher's Initialize(ctx, configDir)
// entry point: load -> expand env -> parse -> validate -> ready.
func Initialize(_ context.Context, configDir string) (*Registry, error) {
	log := slog.With("component", "config", "config_dir", configDir)
	log.Info("loading tenant configuration")

	path := filepath.Join(configDir, "tenants.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(raw)

	var root RootYAML
	if err := yaml.Unmarshal(expanded, &root); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	reg := &Registry{tenants: make(map[string]domain.Tenant, len(root.Tenants))}
	for _, ty := range root.Tenants {
		t := ty.toDomain()
		if err := Validate(t); err != nil {
			return nil, NewValidationError("tenant", t.ID, "", err)
		}
		reg.tenants[t.ID] = t
	}

	log.Info("tenant configuration loaded", "tenants", len(reg.tenants))
	return reg, nil
}

// Validate checks a tenant's configuration invariants.
func Validate(t domain.Tenant) error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing tenant id", ErrValidationFailed)
	}
	if t.Settings.DefaultLanguage == "" {
		return fmt.Errorf("%w: default_language is required", ErrValidationFailed)
	}
	if t.Settings.ServiceRadiusKM <= 0 {
		return fmt.Errorf("%w: service_radius_km must be positive", ErrValidationFailed)
	}
	if t.Settings.SessionLimits.MaxConcurrent <= 0 {
		return fmt.Errorf("%w: session_limits.max_concurrent must be positive", ErrValidationFailed)
	}
	return nil
}
