package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOp_AlwaysSucceeds(t *testing.T) {
	var n Notifier = NoOp{}
	err := n.Send(context.Background(), "tenant-1", ChannelSMS, "+491234", "job_routed", nil)
	require.NoError(t, err)
}

func TestNewSlackNotifier_NilWithoutCredentials(t *testing.T) {
	assert.Nil(t, NewSlackNotifier("", "C123"))
	assert.Nil(t, NewSlackNotifier("xoxb-token", ""))
}

func TestNilSlackNotifier_SendIsNoOp(t *testing.T) {
	var n *SlackNotifier
	err := n.Send(context.Background(), "tenant-1", ChannelOps, "", "job_routed", map[string]any{"job_id": "JOB-2026-0001"})
	require.NoError(t, err)
}

func TestRenderTemplate_SubstitutesVars(t *testing.T) {
	text := renderTemplate("job_routed", map[string]any{"job_id": "JOB-2026-0001", "department_id": "dept-plumbing"})
	assert.Contains(t, text, "JOB-2026-0001")
	assert.Contains(t, text, "dept-plumbing")
}

func TestRenderTemplate_UnknownFallsBackToRawVars(t *testing.T) {
	text := renderTemplate("unknown_template", map[string]any{"x": 1})
	assert.Contains(t, text, "unknown_template")
}
