package httpapi

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/triage"
)

// triageAssessHandler handles POST /api/v1/triage/assess — a stateless
// classification of free-text intake, useful for dashboards wanting to
// preview triage before creating a job.
func (s *Server) triageAssessHandler(c *echo.Context) error {
	if s.triage == nil {
		return mapAppError(apperr.New(apperr.KindInternal, "", "triage engine not configured"))
	}
	var req triageAssessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Detail: err.Error(), Code: "validation"})
	}
	if req.Description == "" {
		return mapAppError(apperr.Validation("description", "description is required"))
	}

	result := s.triage.Classify(req.Description, triage.Context{
		VeryYoungOrOld: req.VeryYoungOrOld,
		Pregnancy:      req.Pregnancy,
		Commercial:     req.Commercial,
		Vulnerability:  req.Vulnerability,
		OutOfHours:     req.OutOfHours,
	})
	return c.JSON(http.StatusOK, result)
}
