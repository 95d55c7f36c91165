// Package notify implements the Notification Dispatcher from SPEC_FULL.md
// §4.12: a thin interface invoked by the Routing Engine and JobService,
// with one real adapter (Slack) and a no-op fallback.
package notify

import "context"

// Channel names the audience a notification targets.
type Channel string

const (
	ChannelOps    Channel = "ops"    // internal operational alerts
	ChannelSMS    Channel = "sms"    // customer-facing, SMS credentials required
	ChannelEmail  Channel = "email"  // customer-facing, email credentials required
	ChannelSlack  Channel = "slack"
)

// Notifier dispatches a templated notification. Implementations are
// expected to be fail-open: a delivery failure is logged by the adapter,
// never allowed to roll back the caller's domain operation.
type Notifier interface {
	Send(ctx context.Context, tenantID string, channel Channel, to string, template string, vars map[string]any) error
}

// NoOp is the fallback adapter used where SMS/email/Slack credentials are
// absent. Send always succeeds without doing anything.
type NoOp struct{}

func (NoOp) Send(ctx context.Context, tenantID string, channel Channel, to string, template string, vars map[string]any) error {
	return nil
}
