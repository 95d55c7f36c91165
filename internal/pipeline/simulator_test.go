package pipeline

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatorSTT_ReturnsCannedTranscript(t *testing.T) {
	s := NewSimulatorSTT()
	tr, err := s.Transcribe(context.Background(), []byte{1, 2, 3}, "de")
	require.NoError(t, err)
	assert.Equal(t, "simulated transcript", tr.Text)
	assert.Equal(t, "de", tr.DetectedDialect)
}

func TestSimulatorLLM_ReturnsCannedResponse(t *testing.T) {
	l := NewSimulatorLLM()
	text, err := l.Generate(context.Background(), "sys", nil, "hi", 100, 0.2)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}

func TestSimulatorTTS_SynthesizesNonEmptyStream(t *testing.T) {
	tts := NewSimulatorTTS()
	r, err := tts.Synthesize(context.Background(), "hello there")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, len("hello there")*tts.BytesPerChar, len(data))
}

func TestSimulatorTTS_RejectsEmptyText(t *testing.T) {
	tts := NewSimulatorTTS()
	_, err := tts.Synthesize(context.Background(), "")
	assert.Error(t, err)
}
