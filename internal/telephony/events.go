// Package telephony normalizes concrete provider protocols into a uniform
// Call Event Stream and exposes symmetric media operations, per §4.1. It is
// grounded on the teacher's pkg/api/websocket.go duplex-connection handling,
// generalized from a single session-transcript stream to the Adapter
// interface below.
package telephony

import "time"

// EventKind discriminates the unified Call Event Stream.
type EventKind string

const (
	EventCallIncoming EventKind = "call_incoming"
	EventCallAnswered EventKind = "call_answered"
	EventCallEnded    EventKind = "call_ended"
	EventDTMF         EventKind = "dtmf"
	EventAudioFrame   EventKind = "audio_frame"
)

// Event is the uniform envelope every adapter emits onto a call's channel.
// A dropped event is a fatal session fault per §4.1 — callers must not
// silently swallow send failures on the event channel.
type Event struct {
	Kind      EventKind
	CallID    string
	From      string
	To        string
	Trunk     string
	Cause     string
	Digit     rune
	PCM       []byte
	Seq       uint64
	Timestamp time.Time
}

// FrameSampleRateHz and FrameDurationMS fix the internal media contract
// resolved in SPEC_FULL.md's Open Question 1: 16kHz mono 16-bit PCM, 20ms
// default frame.
const (
	FrameSampleRateHz = 16000
	FrameBitsPerSample = 16
	FrameDurationMS   = 20
)

// BytesPerFrame is the expected PCM payload size for one default frame.
const BytesPerFrame = FrameSampleRateHz * FrameBitsPerSample / 8 * FrameDurationMS / 1000
