package httpapi

import (
	"io"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/telephony"
)

// telephonyWebhookHandler handles POST /api/v1/webhooks/telephony/{tenant_id}.
// Every inbound provider webhook must verify its HMAC signature against the
// tenant's shared secret before any payload is trusted, per §6's webhook
// security requirement — failure is always HTTP 403 regardless of the
// underlying cause (bad signature, stale timestamp, unknown tenant).
func (s *Server) telephonyWebhookHandler(c *echo.Context) error {
	tid := c.Param("tenant_id")
	if s.webhookSecret == nil {
		return mapAppError(apperr.New(apperr.KindInternal, "", "webhook secret lookup not configured"))
	}
	secret := s.webhookSecret(tid)
	if secret == "" {
		return echo.NewHTTPError(http.StatusForbidden, errorBody{Detail: "unknown tenant", Code: "forbidden"})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Detail: "cannot read body", Code: "validation"})
	}

	sig := c.Request().Header.Get("X-Webhook-Signature")
	ts := c.Request().Header.Get("X-Webhook-Timestamp")
	if err := telephony.VerifyWebhook(secret, sig, ts, body, s.webhookTolerance); err != nil {
		return echo.NewHTTPError(http.StatusForbidden, errorBody{Detail: "signature verification failed", Code: "forbidden"})
	}

	// The concrete provider payload shape is adapter-specific; normalizing
	// it into telephony.Event and driving the call through s.adapter is the
	// adapter's own HandleConn/webhook-bridge responsibility (see
	// internal/telephony), not this HTTP-layer concern.
	return c.NoContent(http.StatusAccepted)
}

// telephonyStreamHandler handles GET /api/v1/webhooks/telephony/{tenant_id}/stream
// — the bidirectional audio WebSocket leg for providers that deliver PCM
// over a frame-framed WebSocket rather than an ESL-style socket, per §6's
// "Bidirectional audio" clause.
func (s *Server) telephonyStreamHandler(c *echo.Context) error {
	if s.wsAdapter == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, errorBody{Detail: "telephony stream adapter not configured", Code: "internal"})
	}
	q := c.Request().URL.Query()
	callID, from, to, trunk := q.Get("call_id"), q.Get("from"), q.Get("to"), q.Get("trunk")
	if callID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Detail: "call_id query parameter required", Code: "validation"})
	}
	if err := s.wsAdapter.HandleConn(c.Response(), c.Request(), callID, from, to, trunk); err != nil {
		return err
	}

	// HandleConn upgrades the connection and returns immediately, spawning
	// its own read loop; the call-runner turn loop must itself block here
	// to keep this handler (and the hijacked connection) alive for the
	// lifetime of the call.
	if s.callRunner == nil {
		return nil
	}
	profileName := q.Get("profile")
	if profileName == "" {
		profileName = "trades"
	}
	if err := s.callRunner.Handle(c.Request().Context(), c.Param("tenant_id"), callID, profileName); err != nil {
		slog.Warn("call runner exited with error", "call_id", callID, "error", err)
	}
	return nil
}
