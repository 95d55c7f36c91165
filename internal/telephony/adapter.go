package telephony

import (
	"context"
	"io"
)

// Adapter is the uniform operation surface the core drives a call through,
// regardless of concrete provider, per §4.1.
type Adapter interface {
	// Events returns the per-call event channel. The adapter closes it on
	// CallEnded or a fatal protocol error.
	Events(callID string) (<-chan Event, error)

	// Answer may fail with apperr.ErrProviderUnavailable (retryable) or
	// apperr.ErrCallGone (fatal).
	Answer(ctx context.Context, callID string) error

	// Hangup is idempotent: repeated calls after the first success are
	// no-ops.
	Hangup(ctx context.Context, callID, reason string) error

	// Transfer may fail with apperr.ErrTransferRejected; the call remains
	// active on failure.
	Transfer(ctx context.Context, callID, destination string) error

	// Play streams synthesized PCM to the call. Canceling ctx stops
	// playback within one frame duration, used for barge-in.
	Play(ctx context.Context, callID string, pcm io.Reader) error
}
