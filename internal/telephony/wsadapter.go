package telephony

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/metrics"
)

// wireFrame is the JSON control envelope the wsadapter exchanges with a
// provider as WebSocket text messages. Audio travels separately as binary
// messages: an 8-byte big-endian sequence number followed by raw PCM, per
// the internal frame contract resolved in SPEC_FULL.md's Open Question 1.
type wireFrame struct {
	Kind   string `json:"kind"`
	CallID string `json:"call_id"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	Trunk  string `json:"trunk,omitempty"`
	Cause  string `json:"cause,omitempty"`
	Digit  string `json:"digit,omitempty"`
	Seq    uint64 `json:"seq,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// call tracks the live connection and subscriber channel for one call.
type call struct {
	conn   *websocket.Conn
	events chan Event
	mu     sync.Mutex
	closed bool
}

// WSAdapter is the wsadapter concrete Telephony Adapter: it speaks the
// internal binary frame contract over a gorilla/websocket connection,
// grounded on the teacher's pkg/api/websocket.go duplex handler.
type WSAdapter struct {
	mu    sync.Mutex
	calls map[string]*call
	log   *slog.Logger

	droppedFrames metrics.Counter
}

// NewWSAdapter constructs an empty adapter ready to accept connections via
// HandleConn.
func NewWSAdapter() *WSAdapter {
	return &WSAdapter{
		calls: make(map[string]*call),
		log:   slog.With("component", "telephony.wsadapter"),
	}
}

// HandleConn upgrades an inbound HTTP request to a WebSocket and registers
// it under callID, emitting CallIncoming immediately.
func (a *WSAdapter) HandleConn(w http.ResponseWriter, r *http.Request, callID, from, to, trunk string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	c := &call{conn: conn, events: make(chan Event, 64)}
	a.mu.Lock()
	a.calls[callID] = c
	a.mu.Unlock()

	c.events <- Event{Kind: EventCallIncoming, CallID: callID, From: from, To: to, Trunk: trunk, Timestamp: time.Now()}

	go a.readLoop(callID, c)
	return nil
}

func (a *WSAdapter) readLoop(callID string, c *call) {
	defer a.closeCall(callID, c, "read_loop_exit")
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.BinaryMessage {
			a.handleAudioFrame(callID, c, data)
			continue
		}
		var f wireFrame
		if err := json.Unmarshal(data, &f); err != nil {
			a.log.Warn("malformed control frame", "call_id", callID, "error", err)
			continue
		}
		a.handleControlFrame(callID, c, f)
	}
}

func (a *WSAdapter) handleAudioFrame(callID string, c *call, data []byte) {
	if len(data) < 8 {
		return
	}
	seq := binary.BigEndian.Uint64(data[:8])
	pcm := data[8:]
	select {
	case c.events <- Event{Kind: EventAudioFrame, CallID: callID, PCM: pcm, Seq: seq, Timestamp: time.Now()}:
	default:
		// Downstream is not draining fast enough: drop oldest queued frame
		// per §4.1's overflow rule rather than block past one frame duration.
		select {
		case <-c.events:
		default:
		}
		a.droppedFrames.Add(1)

		select {
		case c.events <- Event{Kind: EventAudioFrame, CallID: callID, PCM: pcm, Seq: seq, Timestamp: time.Now()}:
		default:
		}
	}
}

func (a *WSAdapter) handleControlFrame(callID string, c *call, f wireFrame) {
	switch f.Kind {
	case string(EventCallAnswered):
		c.events <- Event{Kind: EventCallAnswered, CallID: callID, Timestamp: time.Now()}
	case string(EventCallEnded):
		c.events <- Event{Kind: EventCallEnded, CallID: callID, Cause: f.Cause, Timestamp: time.Now()}
	case string(EventDTMF):
		var digit rune
		if len(f.Digit) > 0 {
			digit = rune(f.Digit[0])
		}
		c.events <- Event{Kind: EventDTMF, CallID: callID, Digit: digit, Timestamp: time.Now()}
	}
}

// DroppedFrames reports the cumulative overflow-drop count, surfaced on the
// health endpoint per SPEC_FULL.md §4.13.
func (a *WSAdapter) DroppedFrames() uint64 { return a.droppedFrames.Load() }

func (a *WSAdapter) Events(callID string) (<-chan Event, error) {
	a.mu.Lock()
	c, ok := a.calls[callID]
	a.mu.Unlock()
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "", "call not found")
	}
	return c.events, nil
}

func (a *WSAdapter) Answer(ctx context.Context, callID string) error {
	c, err := a.get(callID)
	if err != nil {
		return err
	}
	return a.sendControl(c, wireFrame{Kind: string(EventCallAnswered), CallID: callID})
}

func (a *WSAdapter) Hangup(ctx context.Context, callID, reason string) error {
	a.mu.Lock()
	c, ok := a.calls[callID]
	a.mu.Unlock()
	if !ok {
		return nil // idempotent: already gone is a no-op, not an error
	}
	_ = a.sendControl(c, wireFrame{Kind: string(EventCallEnded), CallID: callID, Cause: reason})
	a.closeCall(callID, c, reason)
	return nil
}

func (a *WSAdapter) Transfer(ctx context.Context, callID, destination string) error {
	c, err := a.get(callID)
	if err != nil {
		return err
	}
	if destination == "" {
		return apperr.Wrap(apperr.KindProviderFatal, "transfer_rejected", "missing transfer destination", apperr.ErrTransferRejected)
	}
	return a.sendControl(c, wireFrame{Kind: "transfer", CallID: callID, To: destination})
}

func (a *WSAdapter) Play(ctx context.Context, callID string, pcm io.Reader) error {
	c, err := a.get(callID)
	if err != nil {
		return err
	}
	buf := make([]byte, BytesPerFrame)
	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return nil // barge-in cancellation: stop within one frame duration
		default:
		}
		n, err := pcm.Read(buf)
		if n > 0 {
			frame := make([]byte, 8+n)
			binary.BigEndian.PutUint64(frame[:8], seq)
			copy(frame[8:], buf[:n])
			c.mu.Lock()
			writeErr := c.conn.WriteMessage(websocket.BinaryMessage, frame)
			c.mu.Unlock()
			if writeErr != nil {
				return apperr.Wrap(apperr.KindProviderTransient, "", "write audio frame", apperr.ErrProviderUnavailable)
			}
			seq++
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read pcm stream: %w", err)
		}
	}
}

func (a *WSAdapter) get(callID string) (*call, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.calls[callID]
	if !ok {
		return nil, apperr.Wrap(apperr.KindProviderFatal, "", "call no longer exists", apperr.ErrCallGone)
	}
	return c, nil
}

func (a *WSAdapter) sendControl(c *call, f wireFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return apperr.Wrap(apperr.KindProviderTransient, "", "write control frame", apperr.ErrProviderUnavailable)
	}
	return nil
}

func (a *WSAdapter) closeCall(callID string, c *call, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.conn.Close()
	close(c.events)

	a.mu.Lock()
	delete(a.calls, callID)
	a.mu.Unlock()
	a.log.Info("call closed", "call_id", callID, "reason", reason)
}
