package audiobridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/fieldops/internal/metrics"
)

func TestBridge_ListeningToThinkingOnSilence(t *testing.T) {
	var utterances []Utterance
	b := New(func(u Utterance) { utterances = append(utterances, u) }, nil)

	base := time.Now()
	b.FeedAudio([]byte{1}, true, base)
	assert.Equal(t, StateListening, b.State())

	b.FeedAudio([]byte{2}, true, base.Add(250*time.Millisecond))
	b.FeedAudio([]byte{3}, false, base.Add(300*time.Millisecond))
	assert.Equal(t, StateListening, b.State()) // silence just started, not yet 700ms

	b.FeedAudio([]byte{4}, false, base.Add(300*time.Millisecond+SilenceToThink))
	require.Len(t, utterances, 1)
	assert.True(t, utterances[0].Final)
	assert.Equal(t, StateThinking, b.State())
}

func TestBridge_ThinkingFlushesEarlyOnContinuedSpeech(t *testing.T) {
	var utterances []Utterance
	b := New(func(u Utterance) { utterances = append(utterances, u) }, nil)
	base := time.Now()

	b.FeedAudio([]byte{1}, true, base)
	b.FeedAudio([]byte{2}, false, base.Add(MinSpeechBefore))
	b.FeedAudio([]byte{2}, false, base.Add(MinSpeechBefore+SilenceToThink))
	require.Len(t, utterances, 1)
	assert.Equal(t, StateThinking, b.State())

	b.FeedAudio([]byte{3}, true, base.Add(MinSpeechBefore+SilenceToThink+10*time.Millisecond))
	b.FeedAudio([]byte{4}, true, base.Add(MinSpeechBefore+SilenceToThink+ThinkingFlushCap+20*time.Millisecond))
	require.Len(t, utterances, 2)
	assert.False(t, utterances[1].Final)
}

func TestBridge_SpeakingBargeIn(t *testing.T) {
	b := New(nil, nil)
	cancelled := false
	b.StartSpeaking(func() { cancelled = true }, false)
	assert.Equal(t, StateSpeaking, b.State())

	base := time.Now()
	b.FeedAudio([]byte{1}, true, base)
	assert.Equal(t, StateSpeaking, b.State()) // not yet past threshold
	b.FeedAudio([]byte{2}, true, base.Add(BargeInThreshold))
	assert.Equal(t, StateListening, b.State())
	assert.True(t, cancelled)
}

func TestBridge_CriticalPromptDisablesBargeIn(t *testing.T) {
	b := New(nil, nil)
	b.StartSpeaking(func() {}, true)

	base := time.Now()
	b.FeedAudio([]byte{1}, true, base)
	b.FeedAudio([]byte{2}, true, base.Add(2*BargeInThreshold))
	assert.Equal(t, StateSpeaking, b.State())
}

func TestBridge_TTSDoneReturnsToListening(t *testing.T) {
	b := New(nil, nil)
	b.StartSpeaking(func() {}, false)
	b.TTSDone()
	assert.Equal(t, StateListening, b.State())
}

func TestBridge_BufferHardCapDiscardsOldestAndIncrementsMetric(t *testing.T) {
	reg := &metrics.Registry{}
	b := New(nil, reg)
	base := time.Now()

	b.FeedAudio([]byte{1}, true, base) // enters LISTENING

	over := make([]byte, BufferHardCap+100)
	b.FeedAudio(over, true, base.Add(time.Millisecond))

	assert.Len(t, b.buffer, BufferHardCap)
	assert.EqualValues(t, 1, reg.DegradedSignals.Load())
}
