// Package session implements the Session Supervisor from §4.9: session
// lifecycle (open/close/periodic sweep), concurrency cap enforcement, and
// idle/max-duration timeouts, grounded on the teacher's in-memory session
// registry (pkg/session/manager.go) generalized from a single-process
// chat registry to a capped, swept, channel-typed one.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/conversation"
	"github.com/snarg/fieldops/internal/metrics"
)

// ChannelKind distinguishes phone from chat sessions for the per-channel
// idle/max timeout pair from §5.
type ChannelKind string

const (
	ChannelPhone ChannelKind = "phone"
	ChannelChat  ChannelKind = "chat"
)

// Limits bundles the resource caps from §4.9/§5/spec §9 `session.limits`.
type Limits struct {
	MaxConcurrent int
	PhoneIdle     time.Duration
	ChatIdle      time.Duration
	PhoneMax      time.Duration
	ChatMax       time.Duration
}

// DefaultLimits matches the defaults named in §4.9 and §5.
var DefaultLimits = Limits{
	MaxConcurrent: 100,
	PhoneIdle:     8 * time.Second,
	ChatIdle:      45 * time.Second,
	PhoneMax:      20 * time.Minute,
	ChatMax:       2 * time.Hour,
}

// Descriptor is the input to Supervisor.Open.
type Descriptor struct {
	TenantID string
	Channel  ChannelKind
	CallID   string // telephony call id, empty for chat
	Profile  *conversation.Profile
}

// Session is the live, in-memory representation of one call or chat from
// open to close, per the glossary's Session entry. Not persisted; a
// summary is written to storage at close.
type Session struct {
	ID        string
	TenantID  string
	Channel   ChannelKind
	CallID    string
	Machine   *conversation.Machine
	StartedAt time.Time

	mu            sync.Mutex
	lastActivity  time.Time
	repromptsSent int
	cancel        context.CancelFunc
	closed        bool
}

// Touch records activity, resetting the idle clock.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
	s.repromptsSent = 0
}

func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

func (s *Session) ageFor(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// SetCancel stores the cancellation function for in-flight pipeline work,
// so the Supervisor can cooperatively cancel it on forced close, per §5.
func (s *Session) SetCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

func (s *Session) cancelInFlight() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// CloseReason names why a session ended, for the persisted summary.
type CloseReason string

const (
	ReasonNormal      CloseReason = "normal"
	ReasonIdleTimeout CloseReason = "idle_timeout"
	ReasonMaxDuration CloseReason = "max_duration"
	ReasonSupervisor  CloseReason = "supervisor_shutdown"
	ReasonError       CloseReason = "error"
)

// Summary is what gets written to storage when a Session ends, per the
// glossary's "not persisted; a summary is written to storage at end."
type Summary struct {
	SessionID string
	TenantID  string
	Channel   ChannelKind
	Reason    CloseReason
	Duration  time.Duration
	Escalated bool
	JobID     string
}

// Supervisor owns the lifecycle of every active Session: open/close,
// the concurrency cap, and the periodic idle/max-duration sweep, per
// §4.9. The registry is a process-wide concurrent map, per §5.
type Supervisor struct {
	limits    Limits
	mu        sync.RWMutex
	byID      map[string]*Session
	onClose   func(Summary)
	metrics   *metrics.Registry
	responder *conversation.Responder
}

// New constructs a Supervisor. onClose, if non-nil, is invoked with each
// session's Summary as it closes (the hook storage.WriteSessionSummary
// would implement). responder, if non-nil, is shared by every Session's
// Machine to drive the LLM fallback path (§4.4 step 6); nil disables it
// and every Session falls back to templates only.
func New(limits Limits, reg *metrics.Registry, responder *conversation.Responder, onClose func(Summary)) *Supervisor {
	return &Supervisor{
		limits:    limits,
		byID:      make(map[string]*Session),
		onClose:   onClose,
		metrics:   reg,
		responder: responder,
	}
}

// Open allocates a Session actor and starts its Conversation SM. Rejects
// with apperr.ErrOverloaded once the registry is at MaxConcurrent, per
// §4.9's invariant — the telephony adapter is expected to issue a busy
// signal on this error.
func (s *Supervisor) Open(desc Descriptor) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.byID) >= s.limits.MaxConcurrent {
		if s.metrics != nil {
			s.metrics.OverloadRejections.Add(1)
		}
		return nil, apperr.Wrap(apperr.KindOverloaded, "session_cap", "session supervisor at capacity", apperr.ErrOverloaded)
	}

	now := time.Now()
	machine := conversation.NewMachine(desc.Profile)
	machine.Responder = s.responder
	sess := &Session{
		ID:           uuid.NewString(),
		TenantID:     desc.TenantID,
		Channel:      desc.Channel,
		CallID:       desc.CallID,
		Machine:      machine,
		StartedAt:    now,
		lastActivity: now,
	}
	s.byID[sess.ID] = sess
	return sess, nil
}

// Get looks up a live session by id. O(1), per §5's registry requirement.
func (s *Supervisor) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.byID[id]
	return sess, ok
}

// Count reports the number of live sessions.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Close sends shutdown, cancels in-flight work, writes the summary, and
// releases the session. The ≤2s drain window from §4.9 is the caller's
// responsibility (e.g. awaiting a final TTS flush) before calling Close;
// Close itself is synchronous and immediate.
func (s *Supervisor) Close(id string, reason CloseReason) {
	s.mu.Lock()
	sess, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	sess.mu.Lock()
	alreadyClosed := sess.closed
	sess.closed = true
	sess.mu.Unlock()
	if alreadyClosed {
		return
	}

	sess.cancelInFlight()

	if s.onClose != nil {
		s.onClose(Summary{
			SessionID: sess.ID,
			TenantID:  sess.TenantID,
			Channel:   sess.Channel,
			Reason:    reason,
			Duration:  time.Since(sess.StartedAt),
			Escalated: sess.Machine.Escalated,
		})
	}
}

// Sweep runs one pass of the periodic idle/max-duration check from §4.9,
// closing any session that has exceeded its channel's thresholds. It
// returns the ids it closed, for logging/testing.
func (s *Supervisor) Sweep(now time.Time) []string {
	s.mu.RLock()
	var expired []string
	for id, sess := range s.byID {
		idle, max := s.thresholds(sess.Channel)
		if sess.idleFor(now) >= idle*2 || sess.ageFor(now) >= max {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range expired {
		s.Close(id, s.reasonFor(id, now))
	}
	return expired
}

func (s *Supervisor) reasonFor(id string, now time.Time) CloseReason {
	s.mu.RLock()
	sess, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return ReasonNormal
	}
	_, max := s.thresholds(sess.Channel)
	if sess.ageFor(now) >= max {
		return ReasonMaxDuration
	}
	return ReasonIdleTimeout
}

// CheckIdle applies the §5 reprompt-then-end rule for one session outside
// the sweep, returning whether to reprompt or end it now. Used by the
// Session's own event loop between inbound events, where the sweep's
// coarser polling cadence would be too slow.
func (s *Supervisor) CheckIdle(sess *Session, now time.Time) (reprompt bool, end bool) {
	idle, _ := s.thresholds(sess.Channel)
	d := sess.idleFor(now)
	if d < idle {
		return false, false
	}
	sess.mu.Lock()
	sess.repromptsSent++
	sent := sess.repromptsSent
	sess.mu.Unlock()
	if sent >= 2 {
		return false, true
	}
	return true, false
}

func (s *Supervisor) thresholds(ch ChannelKind) (idle, max time.Duration) {
	if ch == ChannelChat {
		return s.limits.ChatIdle, s.limits.ChatMax
	}
	return s.limits.PhoneIdle, s.limits.PhoneMax
}

// RunSweep calls Sweep on interval and blocks until ctx is cancelled.
// cmd/fieldops runs it once, in its own goroutine.
func (s *Supervisor) RunSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.Sweep(t)
		}
	}
}
