package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	echo "github.com/labstack/echo/v5"

	"github.com/snarg/fieldops/internal/conversation"
	"github.com/snarg/fieldops/internal/domain"
	"github.com/snarg/fieldops/internal/jobservice"
	"github.com/snarg/fieldops/internal/notify"
	"github.com/snarg/fieldops/internal/session"
	"github.com/snarg/fieldops/internal/triage"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// chatFrame is the §6 chat wire protocol: {type: "user"|"assistant"|"end",
// text?, job_id?}.
type chatFrame struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	JobID string `json:"job_id,omitempty"`
}

// chatWSHandler handles GET /api/v1/chat/{tenant_id} — the chat duplex
// transport, grounded on the teacher's websocket upgrade handler and
// driving session.Supervisor + conversation.Machine the way the phone
// adapter drives them from audio frames (here, from JSON text frames).
func (s *Server) chatWSHandler(c *echo.Context) error {
	tid := c.Param("tenant_id")
	profileName := c.QueryParam("profile")
	if profileName == "" {
		profileName = "trades"
	}
	profile, ok := s.profiles.Get(profileName)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Detail: "unknown profile", Code: "validation"})
	}

	conn, err := chatUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sess, err := s.supervisor.Open(session.Descriptor{TenantID: tid, Channel: session.ChannelChat, Profile: profile})
	if err != nil {
		_ = conn.WriteJSON(chatFrame{Type: "end"})
		return nil
	}

	var createdJobID string
	sess.Machine.JobCreator = func(ctx context.Context, slots *conversation.Slots) error {
		if s.jobs == nil {
			return nil
		}
		title, _ := slots.Get(conversation.SlotProblemDescription)
		draft := jobservice.Draft{Title: title, Description: title, Source: "chat"}

		outcome := jobservice.TriageResult{Urgency: domain.UrgencyNormal, Trade: profile.DefaultTrade}
		if s.triage != nil {
			triageCtx := triage.Context{}
			if sess.Machine.AssessedUrgency != nil && *sess.Machine.AssessedUrgency == domain.UrgencyEmergency {
				triageCtx.Vulnerability = true
			}
			result := s.triage.Classify(title, triageCtx)
			outcome = jobservice.TriageResult{Urgency: result.Urgency, Trade: result.TradeCategory, Reasoning: result.Reasoning}
			if outcome.Trade == "" {
				outcome.Trade = profile.DefaultTrade
			}
		}

		job, err := s.jobs.Create(ctx, tid, draft, outcome, "chat:"+sess.ID)
		if err != nil {
			return err
		}
		createdJobID = job.ID
		return nil
	}

	_ = conn.WriteJSON(chatFrame{Type: "assistant", Text: profile.Greeting})

	for {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
		sess.SetCancel(cancel)

		var frame chatFrame
		if err := conn.ReadJSON(&frame); err != nil {
			cancel()
			break
		}
		sess.Touch()

		if frame.Type != "user" {
			cancel()
			continue
		}
		result := sess.Machine.Turn(ctx, frame.Text, 1.0, 0)
		cancel()

		if result.Response != "" {
			if err := conn.WriteJSON(chatFrame{Type: "assistant", Text: result.Response}); err != nil {
				break
			}
		}
		if result.Action != nil && s.notifier != nil {
			go dispatchPostConfirmAction(context.Background(), s.notifier, tid, sess.Machine.Slots, *result.Action)
		}
		if result.JobCreated || result.NextState == conversation.StateFarewell {
			_ = conn.WriteJSON(chatFrame{Type: "end", JobID: createdJobID})
			break
		}
	}

	s.supervisor.Close(sess.ID, session.ReasonNormal)
	slog.Debug("chat session ended", "session_id", sess.ID, "tenant_id", tid)
	return nil
}

// dispatchPostConfirmAction fires the profile's §4.11 PostConfirmAction
// once slot-fill confirms, copying the named slots into the notification
// vars. Run off the turn loop's goroutine so a slow/unavailable notifier
// never delays the next turn; Notifier implementations are fail-open.
func dispatchPostConfirmAction(ctx context.Context, n notify.Notifier, tenantID string, slots *conversation.Slots, action conversation.ActionSpec) {
	vars := make(map[string]any, len(action.Vars))
	for _, key := range action.Vars {
		if v, ok := slots.Get(key); ok {
			vars[string(key)] = v
		}
	}
	if err := n.Send(ctx, tenantID, notify.Channel(action.Channel), "", action.Template, vars); err != nil {
		slog.Warn("post-confirm notification dispatch failed", "tenant_id", tenantID, "template", action.Template, "error", err)
	}
}
