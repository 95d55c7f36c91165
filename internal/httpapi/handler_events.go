package httpapi

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// eventsWSHandler handles GET /api/v1/events/{tenant_id} — the operations
// dashboard's WebSocket fan-out of job/session lifecycle events, grounded
// on the teacher's wsHandler upgrade-then-delegate pattern.
func (s *Server) eventsWSHandler(c *echo.Context) error {
	if s.eventsMgr == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, errorBody{Detail: "events fan-out not available", Code: "internal"})
	}
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return err
	}
	s.eventsMgr.HandleConnection(c.Request().Context(), conn, c.Param("tenant_id"))
	return nil
}
