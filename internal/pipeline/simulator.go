package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// SimulatorSTT is a no-op STT used in tests and local development when no
// real provider is configured (SPEC_FULL.md Open Question 1), grounded on
// telephony.Simulator's recording-no-op-Adapter pattern. It returns the
// same canned transcript whatever PCM it is handed, so callers exercising
// the full pipeline get a plausible Transcript without a real model.
type SimulatorSTT struct {
	Text       string
	Confidence float64
}

// NewSimulatorSTT builds a SimulatorSTT with reasonable defaults.
func NewSimulatorSTT() *SimulatorSTT {
	return &SimulatorSTT{Text: "simulated transcript", Confidence: 0.9}
}

func (s *SimulatorSTT) Transcribe(ctx context.Context, pcm []byte, languageHint string) (Transcript, error) {
	return Transcript{Text: s.Text, Confidence: s.Confidence, DetectedDialect: languageHint}, nil
}

// SimulatorLLM is a no-op LLM that echoes a fixed acknowledgement rather
// than calling a real model.
type SimulatorLLM struct {
	Response string
}

// NewSimulatorLLM builds a SimulatorLLM with a reasonable default response.
func NewSimulatorLLM() *SimulatorLLM {
	return &SimulatorLLM{Response: "Understood, let me get a few more details."}
}

func (s *SimulatorLLM) Generate(ctx context.Context, systemPrompt string, history []Message, userMessage string, maxTokens int, temperature float64) (string, error) {
	return s.Response, nil
}

// SimulatorTTS is a no-op TTS that synthesizes a short silent PCM buffer
// sized proportionally to the input text, long enough to exercise
// telephony.Adapter.Play's frame-streaming loop without a real model.
type SimulatorTTS struct {
	BytesPerChar int
}

// NewSimulatorTTS builds a SimulatorTTS with a reasonable default.
func NewSimulatorTTS() *SimulatorTTS {
	return &SimulatorTTS{BytesPerChar: 64}
}

func (s *SimulatorTTS) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if text == "" {
		return nil, fmt.Errorf("synthesize: empty text")
	}
	n := len(text) * s.BytesPerChar
	return io.NopCloser(bytes.NewReader(make([]byte, n))), nil
}
