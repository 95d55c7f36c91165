package httpapi

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/snarg/fieldops/internal/apperr"
)

// queryAuditHandler handles GET /api/v1/audit — the full tenant ledger,
// newest first.
func (s *Server) queryAuditHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	entries, err := s.db.AuditChain(c.Request().Context(), tid)
	if err != nil {
		return mapAppError(err)
	}
	out := make([]*auditEntryResponse, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, toAuditEntryResponse(entries[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// auditIntegrityHandler handles GET /api/v1/audit/integrity — recomputes
// the hash chain from genesis and reports the first broken row, if any.
func (s *Server) auditIntegrityHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	if s.ledger == nil {
		return mapAppError(apperr.New(apperr.KindInternal, "", "audit ledger not configured"))
	}
	ok, brokenAt, err := s.ledger.VerifyChain(c.Request().Context(), tid)
	if err != nil {
		return mapAppError(err)
	}
	return c.JSON(http.StatusOK, auditIntegrityResponse{OK: ok, BrokenAt: brokenAt})
}
