package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"
)

// SlackNotifier posts operational alerts (emergency escalations,
// routing-rule escalation-deadline expiries) to a fixed ops channel. It
// implements Notifier; channel/to arguments are accepted for interface
// conformance but every message lands in the configured channel.
type SlackNotifier struct {
	api       *goslack.Client
	channelID string
	log       *slog.Logger
}

// NewSlackNotifier builds a SlackNotifier. Returns nil if token or
// channelID is empty, matching the nil-safe fail-open pattern used
// throughout this dispatcher.
func NewSlackNotifier(token, channelID string) *SlackNotifier {
	if token == "" || channelID == "" {
		return nil
	}
	return &SlackNotifier{
		api:       goslack.New(token),
		channelID: channelID,
		log:       slog.Default().With("component", "slack-notifier"),
	}
}

// Send posts a message built from template+vars. Fail-open: delivery
// errors are logged, not returned, so a Slack outage never blocks a job
// creation or routing decision.
func (n *SlackNotifier) Send(ctx context.Context, tenantID string, channel Channel, to string, template string, vars map[string]any) error {
	if n == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	text := renderTemplate(template, vars)
	block := goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
		nil, nil,
	)
	if _, _, err := n.api.PostMessageContext(ctx, n.channelID, goslack.MsgOptionBlocks(block)); err != nil {
		n.log.Error("failed to send slack notification",
			"tenant_id", tenantID, "template", template, "error", err)
		return nil
	}
	return nil
}

var templates = map[string]string{
	"job_routed":           ":inbox_tray: Job `{job_id}` routed to department `{department_id}`.",
	"emergency_escalation": ":rotating_light: *Emergency escalation* — call `{call_id}` transferred, caller asked to leave premises.",
	"escalation_deadline":  ":hourglass_flowing_sand: Job `{job_id}` missed its escalation deadline, priority bumped to `{priority}`.",
	"booking_conflict":     ":warning: Slot for job `{job_id}` with worker `{worker_id}` was already booked by another session.",
}

func renderTemplate(name string, vars map[string]any) string {
	tmpl, ok := templates[name]
	if !ok {
		return fmt.Sprintf("%s: %v", name, vars)
	}
	for k, v := range vars {
		tmpl = strings.ReplaceAll(tmpl, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	return tmpl
}
