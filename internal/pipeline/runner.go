package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/snarg/fieldops/internal/apperr"
)

// Retry defaults from §7: provider-transient faults are retried with
// exponential backoff, base 200ms, factor 2, max 3 attempts, jitter ±20%.
const (
	DefaultRetryBase       = 200 * time.Millisecond
	DefaultRetryMultiplier = 2.0
	DefaultRetryMaxRetries = 2 // retries after the first call: 3 attempts in all
	DefaultRetryJitter     = 0.2
)

// Runner wraps the three stage interfaces with the timeout/classification
// behavior §4.3 and §7 require, so callers (internal/conversation) see
// apperr kinds instead of raw provider errors.
type Runner struct {
	STT STT
	LLM LLM
	TTS TTS

	ConfidenceFloor float64
	LLMHardTimeout  time.Duration

	RetryBase       time.Duration
	RetryMultiplier float64
	RetryMaxRetries int
	RetryJitter     float64
}

// NewRunner builds a Runner with the §4.3 defaults, overridable per field.
func NewRunner(stt STT, llm LLM, tts TTS) *Runner {
	return &Runner{
		STT:             stt,
		LLM:             llm,
		TTS:             tts,
		ConfidenceFloor: DefaultConfidenceFloor,
		LLMHardTimeout:  DefaultLLMHardTimeout,
		RetryBase:       DefaultRetryBase,
		RetryMultiplier: DefaultRetryMultiplier,
		RetryMaxRetries: DefaultRetryMaxRetries,
		RetryJitter:     DefaultRetryJitter,
	}
}

// withRetry retries fn per §7's provider-transient contract: only errors
// classified as apperr.KindProviderTransient are retried; anything else is
// wrapped backoff.Permanent so backoff.Retry returns immediately.
func (r *Runner) withRetry(ctx context.Context, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.RetryBase
	eb.Multiplier = r.RetryMultiplier
	eb.RandomizationFactor = r.RetryJitter
	eb.MaxElapsedTime = 0

	bo := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.RetryMaxRetries)), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if apperr.KindOf(err) != apperr.KindProviderTransient {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

// Transcribe runs STT and classifies a provider failure as
// apperr.ErrSTTUnavailable, retrying transient faults per §7.
func (r *Runner) Transcribe(ctx context.Context, pcm []byte, languageHint string) (Transcript, error) {
	var t Transcript
	err := r.withRetry(ctx, func() error {
		var innerErr error
		t, innerErr = r.STT.Transcribe(ctx, pcm, languageHint)
		if innerErr != nil {
			return apperr.Wrap(apperr.KindProviderTransient, "", "transcription failed", errJoin(apperr.ErrSTTUnavailable, innerErr))
		}
		return nil
	})
	if err != nil {
		return Transcript{}, err
	}
	return t, nil
}

// Generate runs the LLM bounded by the hard timeout from §4.3, retrying
// non-timeout transient faults per §7; on timeout the caller should fall
// back to a templated response rather than retry further.
func (r *Runner) Generate(ctx context.Context, systemPrompt string, history []Message, userMessage string, maxTokens int, temperature float64) (string, error) {
	timeout := r.LLMHardTimeout
	if timeout <= 0 {
		timeout = DefaultLLMHardTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var text string
	err := r.withRetry(ctx, func() error {
		var innerErr error
		text, innerErr = r.LLM.Generate(ctx, systemPrompt, history, userMessage, maxTokens, temperature)
		if innerErr == nil {
			return nil
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return backoff.Permanent(apperr.Wrap(apperr.KindProviderTransient, "", "llm generation timed out", apperr.ErrLLMTimeout))
		}
		return apperr.Wrap(apperr.KindProviderTransient, "", "llm generation failed", fmt.Errorf("llm generate: %w", innerErr))
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// Synthesize runs TTS and classifies a provider failure as
// apperr.ErrTTSTransient, retrying transient faults per §7.
func (r *Runner) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	var stream io.ReadCloser
	err := r.withRetry(ctx, func() error {
		var innerErr error
		stream, innerErr = r.TTS.Synthesize(ctx, text)
		if innerErr != nil {
			return apperr.Wrap(apperr.KindProviderTransient, "", "synthesis failed", errJoin(apperr.ErrTTSTransient, innerErr))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func errJoin(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}
