package telephony

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/snarg/fieldops/internal/apperr"
)

// Simulator is a no-op Adapter used in tests and local development when no
// real provider is configured (SPEC_FULL.md Open Question 1). It records
// every operation it was asked to perform instead of talking to a network
// peer.
type Simulator struct {
	mu    sync.Mutex
	calls map[string]chan Event

	HangupCalls   []string
	TransferCalls []struct{ CallID, Destination string }
	PlayedFrames  map[string]int
}

// NewSimulator constructs an empty Simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		calls:        make(map[string]chan Event),
		PlayedFrames: make(map[string]int),
	}
}

// Dial registers a new simulated call and emits CallIncoming, as a real
// adapter's webhook handler would.
func (s *Simulator) Dial(callID, from, to string) <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan Event, 64)
	s.calls[callID] = ch
	ch <- Event{Kind: EventCallIncoming, CallID: callID, From: from, To: to, Timestamp: time.Now()}
	return ch
}

// Feed injects a synthetic audio frame into a dialed call, for driving the
// Audio Bridge state machine in tests.
func (s *Simulator) Feed(callID string, pcm []byte, seq uint64) {
	s.mu.Lock()
	ch, ok := s.calls[callID]
	s.mu.Unlock()
	if !ok {
		return
	}
	ch <- Event{Kind: EventAudioFrame, CallID: callID, PCM: pcm, Seq: seq, Timestamp: time.Now()}
}

func (s *Simulator) Events(callID string) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.calls[callID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "", "call not found")
	}
	return ch, nil
}

func (s *Simulator) Answer(ctx context.Context, callID string) error {
	s.mu.Lock()
	ch, ok := s.calls[callID]
	s.mu.Unlock()
	if !ok {
		return apperr.Wrap(apperr.KindProviderFatal, "", "call no longer exists", apperr.ErrCallGone)
	}
	ch <- Event{Kind: EventCallAnswered, CallID: callID, Timestamp: time.Now()}
	return nil
}

func (s *Simulator) Hangup(ctx context.Context, callID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.calls[callID]
	if !ok {
		return nil // idempotent
	}
	s.HangupCalls = append(s.HangupCalls, callID)
	close(ch)
	delete(s.calls, callID)
	return nil
}

func (s *Simulator) Transfer(ctx context.Context, callID, destination string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if destination == "" {
		return apperr.Wrap(apperr.KindProviderFatal, "transfer_rejected", "missing transfer destination", apperr.ErrTransferRejected)
	}
	s.TransferCalls = append(s.TransferCalls, struct{ CallID, Destination string }{callID, destination})
	return nil
}

func (s *Simulator) Play(ctx context.Context, callID string, pcm io.Reader) error {
	buf := make([]byte, BytesPerFrame)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n, err := pcm.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.PlayedFrames[callID]++
			s.mu.Unlock()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
