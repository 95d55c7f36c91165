package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/fieldops/internal/apperr"
)

type fakeSTT struct {
	result Transcript
	err    error
	calls  int
}

func (f *fakeSTT) Transcribe(ctx context.Context, pcm []byte, languageHint string) (Transcript, error) {
	f.calls++
	return f.result, f.err
}

type slowLLM struct{ delay time.Duration }

func (s *slowLLM) Generate(ctx context.Context, systemPrompt string, history []Message, userMessage string, maxTokens int, temperature float64) (string, error) {
	select {
	case <-time.After(s.delay):
		return "ok", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type fakeTTS struct{ err error }

func (f *fakeTTS) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(text)), nil
}

func TestRunner_Transcribe_ClassifiesFailure(t *testing.T) {
	stt := &fakeSTT{err: errors.New("provider down")}
	r := NewRunner(stt, nil, nil)
	r.RetryBase = time.Millisecond
	_, err := r.Transcribe(context.Background(), []byte{1, 2, 3}, "de")
	assert.ErrorIs(t, err, apperr.ErrSTTUnavailable)
}

func TestRunner_Transcribe_RetriesTransientFailureUpToMax(t *testing.T) {
	stt := &fakeSTT{err: errors.New("provider down")}
	r := NewRunner(stt, nil, nil)
	r.RetryBase = time.Millisecond
	r.RetryMaxRetries = 2
	_, err := r.Transcribe(context.Background(), []byte{1, 2, 3}, "de")
	require.Error(t, err)
	assert.Equal(t, 3, stt.calls) // 1 initial attempt + 2 retries
}

func TestRunner_Generate_HardTimeout(t *testing.T) {
	r := NewRunner(nil, &slowLLM{delay: 50 * time.Millisecond}, nil)
	r.LLMHardTimeout = 10 * time.Millisecond
	_, err := r.Generate(context.Background(), "sys", nil, "hi", 100, 0.2)
	assert.ErrorIs(t, err, apperr.ErrLLMTimeout)
}

func TestRunner_Generate_CompletesWithinTimeout(t *testing.T) {
	r := NewRunner(nil, &slowLLM{delay: time.Millisecond}, nil)
	r.LLMHardTimeout = 50 * time.Millisecond
	text, err := r.Generate(context.Background(), "sys", nil, "hi", 100, 0.2)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestRunner_Synthesize_ClassifiesFailure(t *testing.T) {
	r := NewRunner(nil, nil, &fakeTTS{err: errors.New("tts down")})
	r.RetryBase = time.Millisecond
	_, err := r.Synthesize(context.Background(), "hello")
	assert.ErrorIs(t, err, apperr.ErrTTSTransient)
}

func TestBelowConfidenceFloor(t *testing.T) {
	assert.True(t, BelowConfidenceFloor(Transcript{Confidence: 0.3}, 0.5))
	assert.False(t, BelowConfidenceFloor(Transcript{Confidence: 0.6}, 0.5))
	assert.True(t, BelowConfidenceFloor(Transcript{Confidence: 0.4}, 0)) // defaults to 0.5
}
