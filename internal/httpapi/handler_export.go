package httpapi

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/snarg/fieldops/internal/storage"
)

// exportContactHandler handles GET /api/v1/export/{contact_id} — the full
// data-subject access bundle: the contact record, their jobs, and their
// consent history.
func (s *Server) exportContactHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	contactID := c.Param("contact_id")

	contact, err := s.db.GetContact(c.Request().Context(), tid, contactID)
	if err != nil {
		return mapAppError(err)
	}
	jobs, err := s.db.ListJobs(c.Request().Context(), tid, storage.JobFilter{ContactID: contactID, Limit: 200})
	if err != nil {
		return mapAppError(err)
	}
	consents, err := s.db.ConsentsForContact(c.Request().Context(), tid, contactID)
	if err != nil {
		return mapAppError(err)
	}

	if s.ledger != nil {
		_, _ = s.ledger.Append(c.Request().Context(), tid, actor(c), "data_exported", "contact", contactID, nil)
	}
	return c.JSON(http.StatusOK, exportResponse{Contact: contact, Jobs: jobs, Consents: consents})
}

// eraseContactHandler handles DELETE /api/v1/erasure/{contact_id} — the
// right-to-erasure scenario: scrubs PII in place while retaining the
// identifier for referential integrity in job/audit rows.
func (s *Server) eraseContactHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	contactID := c.Param("contact_id")
	if err := s.db.AnonymizeContact(c.Request().Context(), tid, contactID); err != nil {
		return mapAppError(err)
	}
	if s.ledger != nil {
		_, _ = s.ledger.Append(c.Request().Context(), tid, actor(c), "contact_erased", "contact", contactID, nil)
	}
	return c.NoContent(http.StatusNoContent)
}
