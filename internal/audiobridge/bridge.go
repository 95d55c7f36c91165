// Package audiobridge implements the full-duplex audio state machine from
// §4.2: IDLE → LISTENING → THINKING → SPEAKING, with voice-activity
// detection driving turn boundaries and barge-in. Grounded on the
// teacher's pkg/api/websocket.go connection-lifecycle handling, generalized
// from a text-transcript relay to a timed audio state machine.
package audiobridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/snarg/fieldops/internal/metrics"
	"github.com/snarg/fieldops/internal/telephony"
)

// State is one node of the §4.2 state machine.
type State string

const (
	StateIdle     State = "idle"
	StateListening State = "listening"
	StateThinking State = "thinking"
	StateSpeaking State = "speaking"
)

// Timing constants from §4.2.
const (
	SilenceToThink   = 700 * time.Millisecond
	MinSpeechBefore  = 200 * time.Millisecond
	ThinkingFlushCap = 3 * time.Second
	BargeInThreshold = 300 * time.Millisecond

	// BufferHardCap is the per-session audio buffer cap from §4.9 (default
	// 60s of PCM at the §9-resolved 16kHz mono 16-bit media contract).
	BufferHardCap = 60 * telephony.FrameSampleRateHz * telephony.FrameBitsPerSample / 8
)

// Utterance is a flushed buffer of accumulated PCM handed off to STT.
type Utterance struct {
	PCM   []byte
	Final bool // false when flushed early by ThinkingFlushCap (continuation)
}

// Bridge drives one session's audio state machine. It is not safe for
// concurrent use from more than one goroutine feeding frames; VAD updates
// and TTS playback control are expected to be single-threaded per session,
// matching the teacher's one-goroutine-per-connection model.
type Bridge struct {
	mu    sync.Mutex
	state State

	buffer          []byte
	speechStartedAt time.Time
	silenceStartedAt time.Time
	hasSpeech       bool

	bargeInDisabled bool // true while a `critical` prompt is playing

	log     *slog.Logger
	metrics *metrics.Registry

	onUtterance func(Utterance)
	cancelTTS   context.CancelFunc
}

// New constructs a Bridge in the IDLE state. onUtterance is invoked
// (synchronously, from whichever goroutine calls FeedAudio) whenever the
// bridge flushes an utterance to hand off to STT. reg, if non-nil, is
// where the hard-cap overflow "degraded" signal from §5/§4.9 is counted.
func New(onUtterance func(Utterance), reg *metrics.Registry) *Bridge {
	return &Bridge{
		state:       StateIdle,
		onUtterance: onUtterance,
		metrics:     reg,
		log:         slog.With("component", "audiobridge"),
	}
}

// appendCapped appends frame to buffer, discarding the oldest bytes and
// emitting the §5 "degraded" signal if the §4.9 hard cap would otherwise
// be exceeded.
func (b *Bridge) appendCapped(buffer, frame []byte) []byte {
	buffer = append(buffer, frame...)
	if len(buffer) > BufferHardCap {
		overflow := len(buffer) - BufferHardCap
		buffer = buffer[overflow:]
		if b.metrics != nil {
			b.metrics.DegradedSignals.Add(1)
		}
		b.log.Warn("audio buffer exceeded hard cap, discarding oldest frames", "overflow_bytes", overflow)
	}
	return buffer
}

// State returns the bridge's current state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FeedAudio processes one incoming frame with its VAD classification
// (isSpeech). IDLE transitions to LISTENING on the first frame, regardless
// of VAD result, per §4.2.
func (b *Bridge) FeedAudio(frame []byte, isSpeech bool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateIdle {
		b.state = StateListening
		b.buffer = nil
		b.hasSpeech = false
	}

	switch b.state {
	case StateListening:
		b.feedListening(frame, isSpeech, now)
	case StateThinking:
		b.feedThinking(frame, isSpeech, now)
	case StateSpeaking:
		b.feedSpeaking(isSpeech, now)
	}
}

func (b *Bridge) feedListening(frame []byte, isSpeech bool, now time.Time) {
	b.buffer = b.appendCapped(b.buffer, frame)
	if isSpeech {
		if !b.hasSpeech {
			b.speechStartedAt = now
			b.hasSpeech = true
		}
		b.silenceStartedAt = time.Time{}
		return
	}
	if !b.hasSpeech {
		return // still waiting for any speech before silence can end the turn
	}
	if b.silenceStartedAt.IsZero() {
		b.silenceStartedAt = now
	}
	if now.Sub(b.speechStartedAt) < MinSpeechBefore {
		return
	}
	if now.Sub(b.silenceStartedAt) >= SilenceToThink {
		b.flush(true, now)
		b.state = StateThinking
	}
}

func (b *Bridge) feedThinking(frame []byte, isSpeech bool, now time.Time) {
	b.buffer = b.appendCapped(b.buffer, frame)
	if !isSpeech {
		return
	}
	if !b.hasSpeech {
		b.speechStartedAt = now
		b.hasSpeech = true
	}
	if b.hasSpeech && now.Sub(b.speechStartedAt) >= ThinkingFlushCap {
		b.flush(false, now)
	}
}

func (b *Bridge) feedSpeaking(isSpeech bool, now time.Time) {
	if !isSpeech {
		b.silenceStartedAt = time.Time{}
		return
	}
	if b.bargeInDisabled {
		return
	}
	if b.silenceStartedAt.IsZero() {
		b.silenceStartedAt = now
	}
	if now.Sub(b.silenceStartedAt) >= BargeInThreshold {
		b.bargeIn(now)
	}
}

func (b *Bridge) flush(final bool, now time.Time) {
	u := Utterance{PCM: b.buffer, Final: final}
	b.buffer = nil
	b.hasSpeech = false
	b.speechStartedAt = time.Time{}
	b.silenceStartedAt = time.Time{}
	if b.onUtterance != nil {
		b.onUtterance(u)
	}
}

func (b *Bridge) bargeIn(now time.Time) {
	b.log.Debug("barge-in detected")
	if b.cancelTTS != nil {
		b.cancelTTS()
		b.cancelTTS = nil
	}
	b.state = StateListening
	b.buffer = nil
	b.hasSpeech = true
	b.speechStartedAt = now
	b.silenceStartedAt = time.Time{}
}

// StartSpeaking transitions to SPEAKING. cancel is called if barge-in
// occurs; critical disables barge-in entirely for the duration of this
// prompt, per §4.2.
func (b *Bridge) StartSpeaking(cancel context.CancelFunc, critical bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateSpeaking
	b.cancelTTS = cancel
	b.bargeInDisabled = critical
	b.silenceStartedAt = time.Time{}
}

// TTSDone transitions back to LISTENING once playback completes without
// barge-in. Per the §4.2 tie-break rule, if user audio is already pending
// in the same window the caller should instead route that frame through
// FeedAudio after this call — LISTENING always wins the race.
func (b *Bridge) TTSDone() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateListening
	b.cancelTTS = nil
	b.bargeInDisabled = false
	b.buffer = nil
	b.hasSpeech = false
}
