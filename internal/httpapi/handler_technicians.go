package httpapi

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/domain"
	"github.com/snarg/fieldops/internal/technician"
)

// technicianSearchHandler handles POST /api/v1/technicians/search, ranking
// a tenant's available workers for a trade/urgency pair per §4.7.
func (s *Server) technicianSearchHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	var req technicianSearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Detail: err.Error(), Code: "validation"})
	}
	if req.Trade == "" {
		return mapAppError(apperr.Validation("trade", "trade is required"))
	}
	if req.Urgency == "" {
		req.Urgency = domain.UrgencyNormal
	}

	workers, err := s.db.ListAvailableWorkers(c.Request().Context(), tid)
	if err != nil {
		return mapAppError(err)
	}
	candidates, err := technician.Match(req.Trade, req.Urgency, req.RequiredCerts, req.Geo, workers, func(w *domain.Worker) bool {
		return w.HasHeadroom()
	})
	if err != nil {
		return mapAppError(err)
	}

	out := make([]technicianCandidate, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, technicianCandidate{WorkerID: cand.Worker.ID, Name: cand.Worker.Name, Score: cand.Score})
	}
	return c.JSON(http.StatusOK, out)
}
