package httpapi

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/domain"
)

// listConsentHandler handles GET /api/v1/consent/{contact_id}.
func (s *Server) listConsentHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	records, err := s.db.ConsentsForContact(c.Request().Context(), tid, c.Param("contact_id"))
	if err != nil {
		return mapAppError(err)
	}
	out := make([]*consentResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toConsentResponse(r))
	}
	return c.JSON(http.StatusOK, out)
}

// grantConsentHandler handles POST /api/v1/consent/{contact_id} — records a
// new consent grant. Consent is append-only: granting again for the same
// kind adds a fresh row rather than mutating a prior one.
func (s *Server) grantConsentHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	var req grantConsentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Detail: err.Error(), Code: "validation"})
	}
	if req.Kind == "" {
		return mapAppError(apperr.Validation("kind", "kind is required"))
	}
	now := time.Now().UTC()
	record := &domain.ConsentRecord{
		ID: uuid.NewString(), TenantID: tid, ContactID: c.Param("contact_id"), Kind: req.Kind,
		GrantedAt: &now, Method: req.Method, OriginatingCall: req.OriginatingCall, ExpiresAt: req.ExpiresAt,
	}
	if err := s.db.InsertConsent(c.Request().Context(), record); err != nil {
		return mapAppError(err)
	}
	if s.ledger != nil {
		_, _ = s.ledger.Append(c.Request().Context(), tid, actor(c), "consent_granted", "contact", c.Param("contact_id"), map[string]any{"kind": string(req.Kind)})
	}
	return c.JSON(http.StatusCreated, toConsentResponse(record))
}

// revokeConsentHandler handles DELETE /api/v1/consent/{contact_id}/{kind} —
// records a revocation row for the active grant, if any.
func (s *Server) revokeConsentHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	contactID := c.Param("contact_id")
	kind := domain.ConsentKind(c.Param("kind"))

	now := time.Now().UTC()
	active, err := s.db.ActiveConsent(c.Request().Context(), tid, contactID, kind)
	if err != nil {
		return mapAppError(err)
	}
	if active == nil {
		return mapAppError(apperr.New(apperr.KindNotFound, "", "no active consent of this kind"))
	}

	revocation := &domain.ConsentRecord{
		ID: uuid.NewString(), TenantID: tid, ContactID: contactID, Kind: kind,
		GrantedAt: active.GrantedAt, RevokedAt: &now, Method: active.Method,
	}
	if err := s.db.InsertConsent(c.Request().Context(), revocation); err != nil {
		return mapAppError(err)
	}
	if s.ledger != nil {
		_, _ = s.ledger.Append(c.Request().Context(), tid, actor(c), "consent_revoked", "contact", contactID, map[string]any{"kind": string(kind)})
	}
	return c.NoContent(http.StatusNoContent)
}
