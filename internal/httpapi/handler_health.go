package httpapi

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
)

// healthHandler handles GET /health. Unauthenticated, checks only this
// service's own database connection, not external telephony/LLM providers
// — an external provider outage should not make an orchestrator restart
// this process.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	if s.db != nil {
		if err := s.db.Health(ctx); err != nil {
			status = "unhealthy"
		}
	}

	var snapshot map[string]uint64
	if s.metrics != nil {
		snapshot = s.metrics.Snapshot()
		if s.wsAdapter != nil {
			snapshot["dropped_frames"] += s.wsAdapter.DroppedFrames()
		}
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, healthResponse{Status: status, Metrics: snapshot})
}
